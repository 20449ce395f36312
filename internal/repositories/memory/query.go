package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/hashicorp/go-memdb"

	"github.com/asakaida/relgraph/internal/entities"
	"github.com/asakaida/relgraph/internal/repositories"
)

type join struct {
	table string
	left  string
	right string
}

// query is an immutable query context; refinements copy the receiver
type query struct {
	ex      *Executor
	table   string
	columns []string
	joins   []join
	preds   []sq.Sqlizer
	order   []string
}

// tuple maps each table of a joined row to its values
type tuple map[string]entities.Row

func (q *query) Table() string {
	return q.table
}

func (q *query) clone() *query {
	return &query{
		ex:      q.ex,
		table:   q.table,
		columns: slices.Clone(q.columns),
		joins:   slices.Clone(q.joins),
		preds:   slices.Clone(q.preds),
		order:   slices.Clone(q.order),
	}
}

func (q *query) Select(columns ...string) repositories.Query {
	c := q.clone()
	c.columns = slices.Clone(columns)
	return c
}

func (q *query) Join(table, left, right string) repositories.Query {
	c := q.clone()
	c.joins = append(c.joins, join{table: table, left: left, right: right})
	return c
}

func (q *query) Where(pred sq.Sqlizer) repositories.Query {
	c := q.clone()
	c.preds = append(c.preds, pred)
	return c
}

func (q *query) WhereIn(column string, values []any) repositories.Query {
	return q.Where(sq.Eq{column: slices.Clone(values)})
}

func (q *query) OrderBy(columns ...string) repositories.Query {
	c := q.clone()
	c.order = slices.Clone(columns)
	return c
}

func (q *query) Rows(ctx context.Context) ([]entities.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txn, done := q.ex.read()
	defer done()

	tuples, err := q.match(txn)
	if err != nil {
		return nil, fmt.Errorf(errUnableToQueryRows, q.table, err)
	}

	if len(q.order) > 0 {
		q.sort(tuples)
	}

	out := make([]entities.Row, 0, len(tuples))
	for _, t := range tuples {
		row, err := q.project(t)
		if err != nil {
			return nil, fmt.Errorf(errUnableToQueryRows, q.table, err)
		}
		out = append(out, row)
	}
	return out, nil
}

func (q *query) Insert(ctx context.Context, rows ...entities.Row) ([]entities.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]entities.Row, 0, len(rows))
	err := q.ex.write(func(txn *memdb.Txn) error {
		for _, r := range rows {
			values := r.Clone()
			seq := q.ex.seqs.assign(q.table, values)
			if err := txn.Insert(tableRows, &storedRow{Table: q.table, Seq: seq, Values: values}); err != nil {
				return err
			}
			out = append(out, values.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf(errUnableToWriteRows, q.table, err)
	}
	return out, nil
}

func (q *query) Update(ctx context.Context, values entities.Row) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var n int64
	err := q.ex.write(func(txn *memdb.Txn) error {
		targets, err := q.targets(txn)
		if err != nil {
			return err
		}
		for _, s := range targets {
			next := s.Values.Clone()
			for k, v := range values {
				next[k] = v
			}
			if err := txn.Insert(tableRows, &storedRow{Table: s.Table, Seq: s.Seq, Values: next}); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf(errUnableToWriteRows, q.table, err)
	}
	return n, nil
}

func (q *query) Delete(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var n int64
	err := q.ex.write(func(txn *memdb.Txn) error {
		targets, err := q.targets(txn)
		if err != nil {
			return err
		}
		for _, s := range targets {
			if err := txn.Delete(tableRows, s); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf(errUnableToWriteRows, q.table, err)
	}
	return n, nil
}

// targets collects the stored base rows a write applies to, before any mutation
func (q *query) targets(txn *memdb.Txn) ([]*storedRow, error) {
	if len(q.joins) > 0 {
		return nil, fmt.Errorf("joins are not supported on writes")
	}

	stored, err := scan(txn, q.table)
	if err != nil {
		return nil, err
	}

	var out []*storedRow
	for _, s := range stored {
		ok, err := q.accept(tuple{q.table: s.Values})
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// match produces the joined and filtered tuples of a select
func (q *query) match(txn *memdb.Txn) ([]tuple, error) {
	base, err := scan(txn, q.table)
	if err != nil {
		return nil, err
	}

	tuples := make([]tuple, 0, len(base))
	for _, s := range base {
		tuples = append(tuples, tuple{q.table: s.Values})
	}

	for _, j := range q.joins {
		joined, err := scan(txn, j.table)
		if err != nil {
			return nil, err
		}

		var next []tuple
		for _, t := range tuples {
			for _, s := range joined {
				candidate := make(tuple, len(t)+1)
				for k, v := range t {
					candidate[k] = v
				}
				candidate[j.table] = s.Values

				left := q.lookup(candidate, j.left)
				right := q.lookup(candidate, j.right)
				if left == nil || right == nil {
					continue
				}
				if equal(left, right) {
					next = append(next, candidate)
				}
			}
		}
		tuples = next
	}

	out := tuples[:0]
	for _, t := range tuples {
		ok, err := q.accept(t)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (q *query) accept(t tuple) (bool, error) {
	get := func(column string) any { return q.lookup(t, column) }
	for _, p := range q.preds {
		ok, err := evaluate(p, get)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// lookup resolves a qualified or bare column against a tuple.
// Missing columns read as NULL.
func (q *query) lookup(t tuple, column string) any {
	table, col, qualified := strings.Cut(column, ".")
	if !qualified {
		return t[q.table][column]
	}
	row, ok := t[table]
	if !ok {
		return nil
	}
	return row[col]
}

func (q *query) sort(tuples []tuple) {
	sort.SliceStable(tuples, func(i, j int) bool {
		for _, o := range q.order {
			fields := strings.Fields(o)
			if len(fields) == 0 {
				continue
			}
			desc := len(fields) > 1 && strings.EqualFold(fields[1], "DESC")

			c := order(q.lookup(tuples[i], fields[0]), q.lookup(tuples[j], fields[0]))
			if c == 0 {
				continue
			}
			if desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// project applies the select list to a tuple
func (q *query) project(t tuple) (entities.Row, error) {
	if len(q.columns) == 0 {
		return t[q.table].Clone(), nil
	}

	out := make(entities.Row)
	for _, expr := range q.columns {
		source, alias, err := splitAlias(expr)
		if err != nil {
			return nil, err
		}

		switch {
		case source == "*":
			for k, v := range t[q.table] {
				out[k] = v
			}
		case strings.HasSuffix(source, ".*"):
			for k, v := range t[strings.TrimSuffix(source, ".*")] {
				out[k] = v
			}
		default:
			name := alias
			if name == "" {
				if _, col, ok := strings.Cut(source, "."); ok {
					name = col
				} else {
					name = source
				}
			}
			out[name] = q.lookup(t, source)
		}
	}
	return out, nil
}

// splitAlias parses "expr" or "expr AS alias"
func splitAlias(expr string) (string, string, error) {
	fields := strings.Fields(expr)
	switch {
	case len(fields) == 1:
		return fields[0], "", nil
	case len(fields) == 3 && strings.EqualFold(fields[1], "AS"):
		return fields[0], fields[2], nil
	default:
		return "", "", fmt.Errorf("unsupported select expression %q", expr)
	}
}
