package eager

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/go-cmp/cmp"

	"github.com/asakaida/relgraph/internal/entities"
	"github.com/asakaida/relgraph/internal/repositories"
	"github.com/asakaida/relgraph/internal/services"
	"github.com/asakaida/relgraph/internal/services/parser"
	"github.com/asakaida/relgraph/internal/testutil"
	"github.com/asakaida/relgraph/pkg/cache/memorycache"
)

type fetchCall struct {
	model, relation string
	owners, rows    int
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []fetchCall
}

func (r *fakeRecorder) RecordFetch(model, relation string, owners, rows int, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fetchCall{model, relation, owners, rows})
}

// rowsHook wraps the read of one query against table
type rowsHook func(table string, next func() ([]entities.Row, error)) ([]entities.Row, error)

// hookExecutor passes every read through a hook
type hookExecutor struct {
	repositories.Executor
	hook rowsHook
}

func (h *hookExecutor) Query(table string) repositories.Query {
	return &hookQuery{Query: h.Executor.Query(table), table: table, hook: h.hook}
}

type hookQuery struct {
	repositories.Query
	table string
	hook  rowsHook
}

func (q *hookQuery) wrap(next repositories.Query) repositories.Query {
	return &hookQuery{Query: next, table: q.table, hook: q.hook}
}

func (q *hookQuery) Select(columns ...string) repositories.Query {
	return q.wrap(q.Query.Select(columns...))
}

func (q *hookQuery) Join(table, left, right string) repositories.Query {
	return q.wrap(q.Query.Join(table, left, right))
}

func (q *hookQuery) Where(pred sq.Sqlizer) repositories.Query {
	return q.wrap(q.Query.Where(pred))
}

func (q *hookQuery) WhereIn(column string, values []any) repositories.Query {
	return q.wrap(q.Query.WhereIn(column, values))
}

func (q *hookQuery) OrderBy(columns ...string) repositories.Query {
	return q.wrap(q.Query.OrderBy(columns...))
}

func (q *hookQuery) Rows(ctx context.Context) ([]entities.Row, error) {
	return q.hook(q.table, func() ([]entities.Row, error) { return q.Query.Rows(ctx) })
}

var errBroken = errors.New("broken table")

// failTable fails every read of one table
func failTable(broken string) rowsHook {
	return func(table string, next func() ([]entities.Row, error)) ([]entities.Row, error) {
		if table == broken {
			return nil, errBroken
		}
		return next()
	}
}

// concurrencyTracker records the most reads in flight at once
type concurrencyTracker struct {
	inFlight atomic.Int32
	max      atomic.Int32
}

func (c *concurrencyTracker) hook(_ string, next func() ([]entities.Row, error)) ([]entities.Row, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		m := c.max.Load()
		if n <= m || c.max.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return next()
}

type fixture struct {
	loader   *Loader
	registry *services.Registry
	counter  *testutil.StatementCounter
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	counter := &testutil.StatementCounter{}
	ex := repositories.Observe(testutil.NewDemoExecutor(t), counter.Observe)

	registry := services.NewRegistry(ex)
	if err := registry.Register(testutil.DemoModels()...); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	return &fixture{loader: NewLoader(registry, opts), registry: registry, counter: counter}
}

// makeParentCycle turns the demo chain Jennifer -> Bradley -> Margot into a cycle
func (f *fixture) makeParentCycle(t *testing.T) {
	t.Helper()

	_, err := f.registry.Executor().Query("persons").Where(sq.Eq{"id": 1}).
		Update(context.Background(), entities.Row{"parent_id": int64(3)})
	if err != nil {
		t.Fatalf("failed to link Jennifer to Margot: %v", err)
	}
}

func persons(ids ...int64) []entities.Record {
	out := make([]entities.Record, len(ids))
	for i, id := range ids {
		out[i] = entities.Record{"id": id}
	}
	return out
}

func names(t *testing.T, v any) []string {
	t.Helper()

	list, ok := v.([]entities.Record)
	if !ok {
		t.Fatalf("expected a collection, got %T", v)
	}
	out := make([]string, 0, len(list))
	for _, r := range list {
		if n, ok := r["firstName"]; ok {
			out = append(out, n.(string))
			continue
		}
		out = append(out, r["name"].(string))
	}
	return out
}

func children(t *testing.T, r entities.Record) []entities.Record {
	t.Helper()

	list, ok := r.RelatedList("children")
	if !ok {
		t.Fatalf("%v has no children attached", r["firstName"])
	}
	return list
}

func TestLoader_Load_Nested(t *testing.T) {
	f := newFixture(t, Options{})
	owners := persons(1, 3, 4)

	if err := f.loader.Load(context.Background(), "Person", owners, "pets.owner"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := [][]string{{"Fluffy", "Tom"}, {"Rex"}, {}}
	for i, want := range expected {
		if got := names(t, owners[i]["pets"]); !slices.Equal(got, want) {
			t.Errorf("owner %d pets = %v, want %v", i, got, want)
		}
	}

	for _, pet := range owners[0]["pets"].([]entities.Record) {
		owner, ok := pet.Related("owner")
		if !ok || owner["firstName"] != "Jennifer" {
			t.Errorf("%v owner = %v, want Jennifer", pet["name"], owner)
		}
	}

	// one query per relation, not per owner
	if got := f.counter.CountTable(repositories.OpSelect, "animals"); got != 1 {
		t.Errorf("animals selects = %d, want 1", got)
	}
	if got := f.counter.CountTable(repositories.OpSelect, "persons"); got != 1 {
		t.Errorf("persons selects = %d, want 1", got)
	}
}

func TestLoader_Load_EmptyAndMissing(t *testing.T) {
	f := newFixture(t, Options{})
	owners := persons(1)

	if err := f.loader.Load(context.Background(), "Person", owners, "children.[pets, pet]"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	kids := children(t, owners[0])
	if len(kids) != 1 || kids[0]["firstName"] != "Bradley" {
		t.Fatalf("children = %v, want [Bradley]", kids)
	}

	bradley := kids[0]
	if pets, ok := bradley.RelatedList("pets"); !ok || pets == nil || len(pets) != 0 {
		t.Errorf("Bradley pets = %#v, want an empty list", bradley["pets"])
	}
	if !bradley.Has("pet") || bradley["pet"] != nil {
		t.Errorf("Bradley pet = %v, want attached nil", bradley["pet"])
	}
}

func TestLoader_Load_Recursive(t *testing.T) {
	f := newFixture(t, Options{})
	owners := persons(1)

	if err := f.loader.Load(context.Background(), "Person", owners, "children.^"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	level1 := children(t, owners[0])
	if got := names(t, level1); !slices.Equal(got, []string{"Bradley"}) {
		t.Fatalf("level 1 = %v, want [Bradley]", got)
	}
	level2 := children(t, level1[0])
	if got := names(t, level2); !slices.Equal(got, []string{"Margot"}) {
		t.Fatalf("level 2 = %v, want [Margot]", got)
	}
	if level3 := children(t, level2[0]); len(level3) != 0 {
		t.Errorf("level 3 = %v, want empty", level3)
	}

	// three levels, the last one empty
	if got := f.counter.CountTable(repositories.OpSelect, "persons"); got != 3 {
		t.Errorf("persons selects = %d, want 3", got)
	}
}

func TestLoader_Load_RecursiveWithChildren(t *testing.T) {
	f := newFixture(t, Options{})
	owners := persons(1)

	if err := f.loader.Load(context.Background(), "Person", owners, "[children.^, children.pet]"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	bradley := children(t, owners[0])[0]
	if bradley["pet"] != nil {
		t.Errorf("Bradley pet = %v, want nil", bradley["pet"])
	}

	margot := children(t, bradley)[0]
	if pet, ok := margot.Related("pet"); !ok || pet["name"] != "Rex" {
		t.Errorf("Margot pet = %v, want Rex", margot["pet"])
	}
}

func TestLoader_Load_MaxRecursionDepth(t *testing.T) {
	t.Run("chain as deep as the limit", func(t *testing.T) {
		f := newFixture(t, Options{MaxRecursionDepth: 1})
		owners := persons(1)

		if err := f.loader.Load(context.Background(), "Person", owners, "children.^"); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		margot := children(t, children(t, owners[0])[0])
		if got := names(t, margot); !slices.Equal(got, []string{"Margot"}) {
			t.Errorf("grandchildren = %v, want [Margot]", got)
		}
	})

	t.Run("chain deeper than the limit", func(t *testing.T) {
		f := newFixture(t, Options{MaxRecursionDepth: 1})
		f.makeParentCycle(t)
		owners := persons(1)

		err := f.loader.Load(context.Background(), "Person", owners, "children.^")
		if !errors.Is(err, ErrRecursionDepth) {
			t.Fatalf("Load() error = %v, want ErrRecursionDepth", err)
		}
		if owners[0].Has("children") {
			t.Error("failed Load() attached children")
		}
	})

	t.Run("default bound stops a cycle", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.makeParentCycle(t)

		err := f.loader.Load(context.Background(), "Person", persons(1), "children.^")
		if !errors.Is(err, ErrRecursionDepth) {
			t.Fatalf("Load() error = %v, want ErrRecursionDepth", err)
		}
		// the default bound plus the root fetch and the final empty check
		if got := f.counter.CountTable(repositories.OpSelect, "persons"); got != DefaultMaxRecursionDepth+2 {
			t.Errorf("persons selects = %d, want %d", got, DefaultMaxRecursionDepth+2)
		}
	})

	t.Run("negative disables the bound", func(t *testing.T) {
		f := newFixture(t, Options{MaxRecursionDepth: -1})

		if err := f.loader.Load(context.Background(), "Person", persons(1), "children.^"); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
	})
}

func TestLoader_Load_AllRelations(t *testing.T) {
	f := newFixture(t, Options{})
	owners := persons(4)

	if err := f.loader.Load(context.Background(), "Person", owners, "*"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ryan := owners[0]
	for _, name := range []string{"pet", "pets", "parent", "children", "movies"} {
		if !ryan.Has(name) {
			t.Errorf("missing %s", name)
		}
	}
	if ryan["pet"] != nil || ryan["parent"] != nil {
		t.Errorf("pet = %v, parent = %v, want nil", ryan["pet"], ryan["parent"])
	}
	if got := names(t, ryan["movies"]); !slices.Equal(got, []string{"Barbie"}) {
		t.Errorf("movies = %v, want [Barbie]", got)
	}
}

func TestLoader_Load_Errors(t *testing.T) {
	t.Run("unknown relation fails before any query", func(t *testing.T) {
		f := newFixture(t, Options{})
		owners := persons(1)

		err := f.loader.Load(context.Background(), "Person", owners, "pets.cars")

		var relErr *entities.RelationError
		if !errors.As(err, &relErr) {
			t.Fatalf("Load() error = %v, want *entities.RelationError", err)
		}
		if relErr.Model != "Animal" || relErr.Relation != "cars" {
			t.Errorf("error names %s.%s, want Animal.cars", relErr.Model, relErr.Relation)
		}
		if got := f.counter.Count(repositories.OpSelect); got != 0 {
			t.Errorf("selects = %d, want 0", got)
		}
		if diff := cmp.Diff(entities.Record{"id": int64(1)}, owners[0]); diff != "" {
			t.Errorf("owner changed (-want +got):\n%s", diff)
		}
	})

	t.Run("malformed expression", func(t *testing.T) {
		f := newFixture(t, Options{})

		err := f.loader.Load(context.Background(), "Person", persons(1), "pets.[owner")

		var parseErr *entities.ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("Load() error = %v, want *entities.ParseError", err)
		}
	})

	t.Run("unknown model", func(t *testing.T) {
		f := newFixture(t, Options{})
		err := f.loader.Load(context.Background(), "Car", persons(1), "pets")
		if !errors.Is(err, services.ErrUnknownModel) {
			t.Errorf("Load() error = %v, want ErrUnknownModel", err)
		}
	})

	t.Run("failing level leaves owners untouched", func(t *testing.T) {
		f := newFixture(t, Options{})
		broken := f.loader.WithExecutor(&hookExecutor{Executor: f.registry.Executor(), hook: failTable("movies")})
		owners := persons(1, 2)

		err := broken.Load(context.Background(), "Person", owners, "[pets, children.movies]")
		if !errors.Is(err, errBroken) {
			t.Fatalf("Load() error = %v, want errBroken", err)
		}

		if diff := cmp.Diff(persons(1, 2), owners); diff != "" {
			t.Errorf("owners changed (-want +got):\n%s", diff)
		}
	})
}

func TestLoader_WithExecutor_FetchesSerially(t *testing.T) {
	f := newFixture(t, Options{MaxConcurrency: 4})
	tracker := &concurrencyTracker{}
	bound := f.loader.WithExecutor(&hookExecutor{Executor: f.registry.Executor(), hook: tracker.hook})
	owners := persons(1, 2, 3, 4)

	if err := bound.Load(context.Background(), "Person", owners, "[pet, pets, movies, children.[pets, movies]]"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := tracker.max.Load(); got != 1 {
		t.Errorf("reads in flight at once = %d, want 1", got)
	}
	if got := names(t, owners[0]["pets"]); !slices.Equal(got, []string{"Fluffy", "Tom"}) {
		t.Errorf("Jennifer pets = %v", got)
	}
}

func TestLoader_Load_SharedKeys(t *testing.T) {
	f := newFixture(t, Options{})
	owners := []entities.Record{{"id": int64(1)}, {"id": float64(1)}, {"id": int64(2)}}

	if err := f.loader.Load(context.Background(), "Person", owners, "movies"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if diff := cmp.Diff(owners[0]["movies"], owners[1]["movies"]); diff != "" {
		t.Errorf("owners sharing a key differ (-first +second):\n%s", diff)
	}
	if got := names(t, owners[0]["movies"]); !slices.Equal(got, []string{"Silver Linings"}) {
		t.Errorf("movies = %v, want [Silver Linings]", got)
	}
	if got := f.counter.Count(repositories.OpSelect); got != 1 {
		t.Errorf("selects = %d, want 1", got)
	}
}

func TestLoader_Fetch(t *testing.T) {
	f := newFixture(t, Options{})

	records, err := f.loader.Fetch(context.Background(), "Person", sq.Eq{"persons.id": []any{int64(2), int64(1)}}, "pet")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := names(t, records); !slices.Equal(got, []string{"Jennifer", "Bradley"}) {
		t.Fatalf("Fetch() = %v, want [Jennifer Bradley]", got)
	}

	if pet, ok := records[0].Related("pet"); !ok || pet["name"] != "Fluffy" {
		t.Errorf("Jennifer pet = %v, want Fluffy", records[0]["pet"])
	}
	if records[1]["pet"] != nil {
		t.Errorf("Bradley pet = %v, want nil", records[1]["pet"])
	}

	t.Run("without expression", func(t *testing.T) {
		records, err := f.loader.Fetch(context.Background(), "Animal", nil, "")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if len(records) != 4 {
			t.Fatalf("Fetch() returned %d animals, want 4", len(records))
		}
		if records[0].Has("owner") {
			t.Error("Fetch() without expression attached owner")
		}
	})
}

func TestLoader_Cache(t *testing.T) {
	exprCache := memorycache.New(&memorycache.Config[*parser.EagerNode]{
		MaxSizeBytes:  1 << 20,
		DefaultTTL:    time.Minute,
		EnableMetrics: true,
	})
	f := newFixture(t, Options{Cache: exprCache})

	for i := 0; i < 3; i++ {
		if err := f.loader.Load(context.Background(), "Person", persons(1), "pets.owner"); err != nil {
			t.Fatalf("Load() #%d error = %v", i, err)
		}
	}

	m := exprCache.Metrics()
	if m.Misses != 1 || m.Hits != 2 {
		t.Errorf("cache misses/hits = %d/%d, want 1/2", m.Misses, m.Hits)
	}
}

func TestLoader_Recorder(t *testing.T) {
	recorder := &fakeRecorder{}
	f := newFixture(t, Options{Recorder: recorder, MaxConcurrency: 1})

	if err := f.loader.Load(context.Background(), "Person", persons(1, 3), "pets.owner"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []fetchCall{
		{model: "Person", relation: "pets", owners: 2, rows: 3},
		{model: "Animal", relation: "owner", owners: 3, rows: 2},
	}
	if diff := cmp.Diff(want, recorder.calls, cmp.AllowUnexported(fetchCall{})); diff != "" {
		t.Errorf("recorded fetches (-want +got):\n%s", diff)
	}
}
