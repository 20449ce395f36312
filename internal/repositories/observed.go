package repositories

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/asakaida/relgraph/internal/entities"
)

// Statement operations reported to an Observer
const (
	OpSelect = "select"
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Observer is called once per executed statement
type Observer func(op, table string, duration time.Duration, err error)

// Observe wraps an executor so every executed statement is reported to observer.
// Transactions opened through the wrapper are observed as well.
func Observe(ex Executor, observer Observer) Executor {
	return &observedExecutor{inner: ex, observer: observer}
}

type observedExecutor struct {
	inner    Executor
	observer Observer
}

func (e *observedExecutor) Query(table string) Query {
	return &observedQuery{inner: e.inner.Query(table), observer: e.observer}
}

func (e *observedExecutor) Transaction(ctx context.Context, fn func(tx Executor) error) error {
	return e.inner.Transaction(ctx, func(tx Executor) error {
		return fn(&observedExecutor{inner: tx, observer: e.observer})
	})
}

type observedQuery struct {
	inner    Query
	observer Observer
}

func (q *observedQuery) wrap(inner Query) Query {
	return &observedQuery{inner: inner, observer: q.observer}
}

func (q *observedQuery) report(op string, start time.Time, err error) {
	q.observer(op, q.inner.Table(), time.Since(start), err)
}

func (q *observedQuery) Table() string { return q.inner.Table() }

func (q *observedQuery) Select(columns ...string) Query {
	return q.wrap(q.inner.Select(columns...))
}

func (q *observedQuery) Join(table, left, right string) Query {
	return q.wrap(q.inner.Join(table, left, right))
}

func (q *observedQuery) Where(pred sq.Sqlizer) Query {
	return q.wrap(q.inner.Where(pred))
}

func (q *observedQuery) WhereIn(column string, values []any) Query {
	return q.wrap(q.inner.WhereIn(column, values))
}

func (q *observedQuery) OrderBy(columns ...string) Query {
	return q.wrap(q.inner.OrderBy(columns...))
}

func (q *observedQuery) Rows(ctx context.Context) ([]entities.Row, error) {
	start := time.Now()
	rows, err := q.inner.Rows(ctx)
	q.report(OpSelect, start, err)
	return rows, err
}

func (q *observedQuery) Insert(ctx context.Context, rows ...entities.Row) ([]entities.Row, error) {
	start := time.Now()
	out, err := q.inner.Insert(ctx, rows...)
	q.report(OpInsert, start, err)
	return out, err
}

func (q *observedQuery) Update(ctx context.Context, values entities.Row) (int64, error) {
	start := time.Now()
	n, err := q.inner.Update(ctx, values)
	q.report(OpUpdate, start, err)
	return n, err
}

func (q *observedQuery) Delete(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := q.inner.Delete(ctx)
	q.report(OpDelete, start, err)
	return n, err
}
