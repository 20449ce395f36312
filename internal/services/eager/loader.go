package eager

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/sync/errgroup"

	"github.com/asakaida/relgraph/internal/entities"
	"github.com/asakaida/relgraph/internal/logging"
	"github.com/asakaida/relgraph/internal/repositories"
	"github.com/asakaida/relgraph/internal/services"
	"github.com/asakaida/relgraph/internal/services/parser"
	"github.com/asakaida/relgraph/internal/services/relation"
	"github.com/asakaida/relgraph/pkg/cache"
)

// ErrRecursionDepth is returned when a name.^ expression recurses deeper
// than the configured limit.
var ErrRecursionDepth = errors.New("max recursion depth exceeded")

// DefaultMaxRecursionDepth applies when Options.MaxRecursionDepth is zero
const DefaultMaxRecursionDepth = 32

// Registry is the model and relation lookup the loader runs against
type Registry interface {
	Model(name string) (*entities.Model, bool)
	Relation(model, name string) (*relation.Relation, error)
	Relations(model string) ([]*relation.Relation, error)
	RelatedModel(model, relation string) (string, error)
	Executor() repositories.Executor
}

// Recorder receives one observation per batched relation fetch
type Recorder interface {
	RecordFetch(model, relation string, owners, rows int, d time.Duration, err error)
}

// Options configures a Loader
type Options struct {
	// MaxConcurrency bounds the sibling fetches running at once per level.
	// 0 means unlimited.
	MaxConcurrency int

	// MaxRecursionDepth bounds how often name.^ re-applies its relation
	// and still finds records. 0 means DefaultMaxRecursionDepth, a negative
	// value means unlimited.
	MaxRecursionDepth int

	// Cache memoizes parsed expressions (optional)
	Cache    cache.Cache[*parser.EagerNode]
	CacheTTL time.Duration

	// Recorder observes relation fetches (optional)
	Recorder Recorder
}

// Loader attaches related records to owners following an eager expression.
// Relations on one level are fetched concurrently, one batched query each.
type Loader struct {
	registry  Registry
	validator *parser.Validator
	opts      Options
	executor  repositories.Executor
	serial    bool
}

// NewLoader creates a new Loader
func NewLoader(registry Registry, opts Options) *Loader {
	return &Loader{
		registry:  registry,
		validator: parser.NewValidator(registry),
		opts:      opts,
	}
}

// WithExecutor returns a loader whose queries run against ex, such as a
// transaction. A *sql.Tx runs one statement at a time, so the returned
// loader fetches serially regardless of MaxConcurrency.
func (l *Loader) WithExecutor(ex repositories.Executor) *Loader {
	clone := *l
	clone.executor = ex
	clone.serial = true
	return &clone
}

// Load parses expression and loads it onto owners of model.
// On failure the owners are left untouched.
func (l *Loader) Load(ctx context.Context, model string, owners []entities.Record, expression string) error {
	tree, err := l.parse(ctx, expression)
	if err != nil {
		return err
	}
	return l.LoadTree(ctx, model, owners, tree)
}

// LoadTree loads a parsed tree onto owners of model
func (l *Loader) LoadTree(ctx context.Context, model string, owners []entities.Record, tree *parser.EagerNode) error {
	if _, ok := l.registry.Model(model); !ok {
		return fmt.Errorf("%w: %s", services.ErrUnknownModel, model)
	}
	if err := l.validator.Validate(model, tree); err != nil {
		return err
	}

	clones := make([]entities.Record, len(owners))
	for i, o := range owners {
		if o == nil {
			return fmt.Errorf("owner %d of %s is nil", i, model)
		}
		clones[i] = o.Clone()
	}

	if err := l.load(ctx, model, clones, targetsOf(tree), tree.AllRelations); err != nil {
		return err
	}

	for i, c := range clones {
		for k, v := range c {
			owners[i][k] = v
		}
	}
	return nil
}

// Fetch queries the root records of model matching where, ordered by id,
// and loads expression onto them. An empty expression loads nothing.
func (l *Loader) Fetch(ctx context.Context, model string, where sq.Sqlizer, expression string) ([]entities.Record, error) {
	m, ok := l.registry.Model(model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", services.ErrUnknownModel, model)
	}

	var tree *parser.EagerNode
	if expression != "" {
		var err error
		if tree, err = l.parse(ctx, expression); err != nil {
			return nil, err
		}
		if err := l.validator.Validate(model, tree); err != nil {
			return nil, err
		}
	}

	q := l.exec().Query(m.Table).OrderBy(m.ID())
	if where != nil {
		q = q.Where(where)
	}
	rows, err := q.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", model, err)
	}

	records := make([]entities.Record, len(rows))
	for i, row := range rows {
		records[i] = m.RowToRecord(row)
	}
	if tree == nil {
		return records, nil
	}

	if err := l.load(ctx, model, records, targetsOf(tree), tree.AllRelations); err != nil {
		return nil, err
	}
	return records, nil
}

func (l *Loader) exec() repositories.Executor {
	if l.executor != nil {
		return l.executor
	}
	return l.registry.Executor()
}

func (l *Loader) parse(ctx context.Context, expression string) (*parser.EagerNode, error) {
	if l.opts.Cache != nil {
		if tree, ok := l.opts.Cache.Get(ctx, expression); ok {
			return tree, nil
		}
	}

	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, err
	}

	if l.opts.Cache != nil {
		if err := l.opts.Cache.Set(ctx, expression, tree, l.opts.CacheTTL); err != nil {
			logging.Warn().Err(err).Str("expression", expression).Msg("failed to cache eager expression")
		}
	}
	return tree, nil
}

// target is a node to load on one level. depth counts the re-applications
// of a name.^ node.
type target struct {
	node  *parser.EagerNode
	depth int
}

// step is a planned relation fetch of one level
type step struct {
	target
	rel    *relation.Relation
	result *relation.FetchResult
}

func targetsOf(node *parser.EagerNode) []target {
	out := make([]target, 0, len(node.Children))
	for _, c := range node.Children {
		out = append(out, target{node: c})
	}
	return out
}

// next returns what to load on the records this step fetched.
// A name.^ node is loaded again in place of a child with the same name.
func (s *step) next() ([]target, bool) {
	n := s.node
	out := make([]target, 0, len(n.Children)+1)
	for _, c := range n.Children {
		if n.AllRecursive && c.RelationName == n.RelationName {
			continue
		}
		out = append(out, target{node: c})
	}
	if n.AllRecursive {
		out = append(out, target{node: n, depth: s.depth + 1})
	}
	return out, n.AllRelations
}

func (l *Loader) plan(model string, targets []target, all bool) ([]*step, error) {
	steps := make([]*step, 0, len(targets))
	named := make(map[string]bool, len(targets))
	for _, t := range targets {
		rel, err := l.registry.Relation(model, t.node.RelationName)
		if err != nil {
			return nil, err
		}
		named[t.node.RelationName] = true
		steps = append(steps, &step{target: t, rel: rel})
	}

	if all {
		rels, err := l.registry.Relations(model)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			if named[rel.Name()] {
				continue
			}
			steps = append(steps, &step{target: target{node: &parser.EagerNode{RelationName: rel.Name()}}, rel: rel})
		}
	}

	if l.executor != nil {
		for _, s := range steps {
			s.rel = s.rel.WithExecutor(l.executor)
		}
	}
	return steps, nil
}

func (l *Loader) limit() int {
	if l.serial {
		return 1
	}
	if l.opts.MaxConcurrency <= 0 {
		return -1
	}
	return l.opts.MaxConcurrency
}

func (l *Loader) maxDepth() int {
	if l.opts.MaxRecursionDepth == 0 {
		return DefaultMaxRecursionDepth
	}
	return l.opts.MaxRecursionDepth
}

// load fetches every target of one level, attaches the results and recurses
// into the fetched records.
func (l *Loader) load(ctx context.Context, model string, owners []entities.Record, targets []target, all bool) error {
	if len(owners) == 0 || (len(targets) == 0 && !all) {
		return nil
	}

	steps, err := l.plan(model, targets, all)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.limit())
	for _, s := range steps {
		s := s
		g.Go(func() error {
			start := time.Now()
			result, err := s.rel.Strategy().Fetch(gctx, owners)
			l.observe(model, s.rel.Name(), len(owners), result, time.Since(start), err)
			if err != nil {
				return fmt.Errorf("failed to load %s.%s: %w", model, s.rel.Name(), err)
			}
			s.result = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Attach is serial: owners are shared by every step of the level.
	for _, s := range steps {
		s.rel.Strategy().Attach(owners, s.result)
	}

	// A re-application past the limit may run, but must come back empty.
	if limit := l.maxDepth(); limit > 0 {
		for _, s := range steps {
			if s.node.AllRecursive && s.depth > limit && s.result.Len() > 0 {
				return fmt.Errorf("relation %s.%s: %w (%d)", model, s.rel.Name(), ErrRecursionDepth, limit)
			}
		}
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(l.limit())
	for _, s := range steps {
		s := s
		targets, all := s.next()
		if s.result.Len() == 0 || (len(targets) == 0 && !all) {
			continue
		}
		related := s.rel.RelatedModel().Name
		g.Go(func() error {
			return l.load(gctx, related, s.result.Records, targets, all)
		})
	}
	return g.Wait()
}

func (l *Loader) observe(model, rel string, owners int, result *relation.FetchResult, d time.Duration, err error) {
	rows := 0
	if result != nil {
		rows = result.Len()
	}
	if l.opts.Recorder != nil {
		l.opts.Recorder.RecordFetch(model, rel, owners, rows, d, err)
	}

	if err != nil {
		logging.Debug().Err(err).Str("model", model).Str("relation", rel).Int("owners", owners).Dur("duration", d).Msg("relation fetch failed")
		return
	}
	logging.Debug().Str("model", model).Str("relation", rel).Int("owners", owners).Int("rows", rows).Dur("duration", d).Msg("fetched relation")
}
