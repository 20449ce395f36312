package e2e

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TestScenario_EagerFetch walks the demo graph through nested, recursive and
// many-to-many expressions
func TestScenario_EagerFetch(t *testing.T) {
	testServer := SetupE2ETest(t)
	defer testServer.Teardown(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Step 1: Plain fetch
	t.Log("Step 1: Fetching all persons without relations")
	persons := testServer.Fetch(ctx, t, map[string]any{"model": "Person"})
	if len(persons) != 4 {
		t.Fatalf("Expected 4 persons, got %d", len(persons))
	}
	if persons[0]["firstName"] != "Jennifer" {
		t.Errorf("Expected Jennifer first, got %v", persons[0]["firstName"])
	}
	if _, ok := persons[0]["pets"]; ok {
		t.Error("Expected no pets attribute without an expression")
	}

	// Step 2: Nested one-to-many then one-to-one
	t.Log("Step 2: Fetching Jennifer with pets.owner")
	persons = testServer.Fetch(ctx, t, map[string]any{
		"model":      "Person",
		"ids":        []any{1},
		"expression": "pets.owner",
	})
	if len(persons) != 1 {
		t.Fatalf("Expected 1 person, got %d", len(persons))
	}
	pets := persons[0]["pets"].([]any)
	if got := names(pets, "name"); !slices.Equal(got, []string{"Fluffy", "Tom"}) {
		t.Errorf("Expected pets [Fluffy Tom], got %v", got)
	}
	for _, p := range pets {
		owner := p.(map[string]any)["owner"].(map[string]any)
		if owner["firstName"] != "Jennifer" {
			t.Errorf("Expected owner Jennifer, got %v", owner["firstName"])
		}
	}

	// Step 3: Recursive descent
	t.Log("Step 3: Fetching Jennifer's descendants with children.^")
	persons = testServer.Fetch(ctx, t, map[string]any{
		"model":      "Person",
		"ids":        []any{1},
		"expression": "children.^",
	})
	var chain []string
	for level := persons[0]; ; {
		children := level["children"].([]any)
		if len(children) == 0 {
			break
		}
		if len(children) != 1 {
			t.Fatalf("Expected a single child per level, got %d", len(children))
		}
		level = children[0].(map[string]any)
		chain = append(chain, level["firstName"].(string))
	}
	if !slices.Equal(chain, []string{"Bradley", "Margot"}) {
		t.Errorf("Expected descendants [Bradley Margot], got %v", chain)
	}

	// Step 4: Many-to-many with a relation filter and shared relateds
	t.Log("Step 4: Fetching every person with movies and their actors")
	persons = testServer.Fetch(ctx, t, map[string]any{
		"model":      "Person",
		"expression": "[pet, movies.actors]",
	})
	expected := map[string][]string{
		"Jennifer": {"Silver Linings"},
		"Bradley":  {"Silver Linings"},
		"Margot":   {"Barbie"},
		"Ryan":     {"Barbie"},
	}
	for _, p := range persons {
		name := p["firstName"].(string)
		movies := p["movies"].([]any)
		if got := names(movies, "name"); !slices.Equal(got, expected[name]) {
			t.Errorf("%s: expected movies %v, got %v", name, expected[name], got)
		}
		for _, m := range movies {
			actors := m.(map[string]any)["actors"].([]any)
			if len(actors) != 2 {
				t.Errorf("%s: expected 2 actors per movie, got %d", name, len(actors))
			}
		}
	}
	if persons[3]["pet"] != nil {
		t.Errorf("Expected Ryan to have no pet, got %v", persons[3]["pet"])
	}

	// Step 5: Errors map to status codes
	t.Log("Step 5: Checking error status codes")
	_, err := testServer.Client.Fetch(ctx, newRequest(t, map[string]any{"model": "Person", "expression": "pets.["}))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("Expected InvalidArgument for a malformed expression, got %v", err)
	}
	_, err = testServer.Client.Fetch(ctx, newRequest(t, map[string]any{"model": "Person", "expression": "cars"}))
	if status.Code(err) != codes.NotFound {
		t.Errorf("Expected NotFound for an unknown relation, got %v", err)
	}

	// Step 6: Metrics
	t.Log("Step 6: Checking recorded metrics")
	fetches := testServer.Collector.GetFetchMetrics().Fetches
	if fetches["Person.children"] != 3 {
		t.Errorf("Expected 3 Person.children fetches, got %d", fetches["Person.children"])
	}
	n, err := testutil.GatherAndCount(testServer.Registry, "relgraph_relation_fetches_total")
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if n == 0 {
		t.Error("Expected relgraph_relation_fetches_total to be exported")
	}
}

// names collects a string attribute of each record
func names(records []any, attr string) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.(map[string]any)[attr].(string))
	}
	return out
}
