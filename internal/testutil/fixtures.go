// Package testutil provides the demo models, a seeded in-memory executor and
// statement counting shared by package tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/asakaida/relgraph/internal/demo"
	"github.com/asakaida/relgraph/internal/entities"
	"github.com/asakaida/relgraph/internal/repositories"
	"github.com/asakaida/relgraph/internal/repositories/memory"
)

// Models is a name-indexed model set usable as a relation.ModelLookup
type Models map[string]*entities.Model

func (m Models) Model(name string) (*entities.Model, bool) {
	model, ok := m[name]
	return model, ok
}

// Index builds a Models lookup from a list
func Index(models []*entities.Model) Models {
	out := make(Models, len(models))
	for _, m := range models {
		out[m.Name] = m
	}
	return out
}

// DemoModels returns fresh Person, Animal and Movie declarations.
//
//	Person.pet      one_to_one   persons.pet_id    -> animals.id
//	Person.pets     one_to_many  persons.id        -> animals.owner_id
//	Person.parent   one_to_one   persons.parent_id -> persons.id
//	Person.children one_to_many  persons.id        -> persons.parent_id
//	Person.movies   many_to_many persons.id        -> movies.id (not deleted)
//	Animal.owner    one_to_one   animals.owner_id  -> persons.id
//	Movie.actors    many_to_many declared from the person side
func DemoModels() []*entities.Model {
	person := &entities.Model{
		Name:    "Person",
		Table:   "persons",
		Columns: []string{"id", "first_name", "last_name", "parent_id", "pet_id"},
		Mapper:  entities.SnakeCamelMapper{},
		Relations: []*entities.RelationMapping{
			{
				Name:         "pet",
				Kind:         entities.OneToOne,
				RelatedModel: "Animal",
				Join:         &entities.JoinSpec{From: "persons.pet_id", To: "animals.id"},
			},
			{
				Name:         "pets",
				Kind:         entities.OneToMany,
				RelatedModel: "Animal",
				Join:         &entities.JoinSpec{From: "persons.id", To: "animals.owner_id"},
			},
			{
				Name:         "parent",
				Kind:         entities.OneToOne,
				RelatedModel: "Person",
				Join:         &entities.JoinSpec{From: "persons.parent_id", To: "persons.id"},
			},
			{
				Name:         "children",
				Kind:         entities.OneToMany,
				RelatedModel: "Person",
				Join:         &entities.JoinSpec{From: "persons.id", To: "persons.parent_id"},
			},
			{
				Name:         "movies",
				Kind:         entities.ManyToMany,
				RelatedModel: "Movie",
				Join: &entities.JoinSpec{
					From: "persons.id",
					To:   "movies.id",
					Through: &entities.ThroughSpec{
						From: "persons_movies.person_id",
						To:   "persons_movies.movie_id",
					},
				},
				Filter: sq.Eq{"movies.deleted": false},
			},
		},
	}

	animal := &entities.Model{
		Name:    "Animal",
		Table:   "animals",
		Columns: []string{"id", "name", "owner_id"},
		Mapper:  entities.SnakeCamelMapper{},
		Relations: []*entities.RelationMapping{
			{
				Name:         "owner",
				Kind:         entities.OneToOne,
				RelatedModel: "Person",
				Join:         &entities.JoinSpec{From: "animals.owner_id", To: "persons.id"},
			},
		},
	}

	movie := &entities.Model{
		Name:    "Movie",
		Table:   "movies",
		Columns: []string{"id", "name", "deleted"},
		Mapper:  entities.SnakeCamelMapper{},
		Relations: []*entities.RelationMapping{
			{
				Name:         "actors",
				Kind:         entities.ManyToMany,
				RelatedModel: "Person",
				Join: &entities.JoinSpec{
					From: "persons.id",
					To:   "movies.id",
					Through: &entities.ThroughSpec{
						From: "persons_movies.person_id",
						To:   "persons_movies.movie_id",
					},
				},
			},
		},
	}

	return []*entities.Model{person, animal, movie}
}

// DemoTables declares the auto-incremented tables of the demo schema
func DemoTables() []memory.Table {
	return []memory.Table{
		{Name: "persons", IDColumn: "id"},
		{Name: "animals", IDColumn: "id"},
		{Name: "movies", IDColumn: "id"},
	}
}

// SeedDemo inserts the demo graph, see demo.Seed
func SeedDemo(ctx context.Context, ex repositories.Executor) error {
	return demo.Seed(ctx, ex)
}

// NewDemoExecutor returns an in-memory executor holding the seeded demo graph
func NewDemoExecutor(t testing.TB) *memory.Executor {
	t.Helper()

	ex, err := memory.NewExecutor(DemoTables()...)
	if err != nil {
		t.Fatalf("Failed to create memory executor: %v", err)
	}
	if err := SeedDemo(context.Background(), ex); err != nil {
		t.Fatalf("Failed to seed demo data: %v", err)
	}
	return ex
}

// StatementCounter counts executed statements per operation and table.
// Pass its Observe method to repositories.Observe.
type StatementCounter struct {
	mu     sync.Mutex
	counts map[[2]string]int
}

func (c *StatementCounter) Observe(op, table string, _ time.Duration, _ error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counts == nil {
		c.counts = make(map[[2]string]int)
	}
	c.counts[[2]string{op, table}]++
}

// Count returns the number of statements of op across all tables
func (c *StatementCounter) Count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for k, n := range c.counts {
		if k[0] == op {
			total += n
		}
	}
	return total
}

// CountTable returns the number of statements of op on table
func (c *StatementCounter) CountTable(op, table string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[[2]string{op, table}]
}

// Reset clears all counts
func (c *StatementCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = nil
}
