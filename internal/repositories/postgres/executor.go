package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/asakaida/relgraph/internal/entities"
	"github.com/asakaida/relgraph/internal/repositories"
)

// runner is the part of *sql.DB and *sql.Tx the executor needs
type runner interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresExecutor implements repositories.Executor using PostgreSQL
type PostgresExecutor struct {
	db  *sql.DB
	run runner
	tx  *sql.Tx
}

// NewPostgresExecutor creates a new PostgreSQL executor
func NewPostgresExecutor(db *sql.DB) *PostgresExecutor {
	return &PostgresExecutor{db: db, run: db}
}

// Query starts a query over the given table
func (e *PostgresExecutor) Query(table string) repositories.Query {
	return &query{ex: e, table: table}
}

// Transaction runs fn inside a database transaction.
func (e *PostgresExecutor) Transaction(ctx context.Context, fn func(tx repositories.Executor) error) error {
	if e.tx != nil {
		return fn(e)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&PostgresExecutor{db: e.db, run: tx, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type join struct {
	table string
	left  string
	right string
}

type query struct {
	ex      *PostgresExecutor
	table   string
	columns []string
	joins   []join
	preds   []sq.Sqlizer
	order   []string
}

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

// selectBuilder renders the select statement of the query
func (q *query) selectBuilder() (sq.SelectBuilder, error) {
	columns := q.columns
	if len(columns) == 0 {
		columns = []string{q.table + ".*"}
	}

	projection := make([]string, 0, len(columns))
	for _, c := range columns {
		rendered, err := quoteSelect(c)
		if err != nil {
			return sq.SelectBuilder{}, err
		}
		projection = append(projection, rendered)
	}

	b := psql.Select(projection...).From(pq.QuoteIdentifier(q.table))
	for _, j := range q.joins {
		b = b.Join(fmt.Sprintf("%s ON %s = %s", pq.QuoteIdentifier(j.table), quoteRef(j.left), quoteRef(j.right)))
	}
	for _, p := range q.preds {
		b = b.Where(p)
	}
	for _, o := range q.order {
		fields := strings.Fields(o)
		if len(fields) == 0 {
			continue
		}
		clause := quoteRef(fields[0])
		if len(fields) > 1 && strings.EqualFold(fields[1], "DESC") {
			clause += " DESC"
		}
		b = b.OrderBy(clause)
	}
	return b, nil
}

func (q *query) Rows(ctx context.Context) ([]entities.Row, error) {
	b, err := q.selectBuilder()
	if err != nil {
		return nil, fmt.Errorf("failed to build query on %s: %w", q.table, err)
	}

	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query on %s: %w", q.table, err)
	}

	rows, err := q.ex.run.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.table, err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// insertStatement renders one INSERT ... RETURNING * per row; rows may carry different columns
func (q *query) insertStatement(row entities.Row) (string, []any, error) {
	if len(row) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", pq.QuoteIdentifier(q.table)), nil, nil
	}

	columns := make([]string, 0, len(row))
	for c := range row {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	quoted := make([]string, len(columns))
	values := make([]any, len(columns))
	for i, c := range columns {
		quoted[i] = pq.QuoteIdentifier(c)
		values[i] = row[c]
	}

	return psql.Insert(pq.QuoteIdentifier(q.table)).
		Columns(quoted...).
		Values(values...).
		Suffix("RETURNING *").
		ToSql()
}

func (q *query) Insert(ctx context.Context, rows ...entities.Row) ([]entities.Row, error) {
	out := make([]entities.Row, 0, len(rows))
	for _, row := range rows {
		stmt, args, err := q.insertStatement(row)
		if err != nil {
			return nil, fmt.Errorf("failed to build insert into %s: %w", q.table, err)
		}

		result, err := q.ex.run.QueryContext(ctx, stmt, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to insert into %s: %w", q.table, err)
		}
		stored, err := scanRows(result)
		result.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to insert into %s: %w", q.table, err)
		}
		out = append(out, stored...)
	}
	return out, nil
}

func (q *query) updateBuilder(values entities.Row) (sq.UpdateBuilder, error) {
	if len(q.joins) > 0 {
		return sq.UpdateBuilder{}, fmt.Errorf("joins are not supported on writes")
	}

	set := make(map[string]any, len(values))
	for c, v := range values {
		set[pq.QuoteIdentifier(c)] = v
	}

	b := psql.Update(pq.QuoteIdentifier(q.table)).SetMap(set)
	for _, p := range q.preds {
		b = b.Where(p)
	}
	return b, nil
}

func (q *query) Update(ctx context.Context, values entities.Row) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}

	b, err := q.updateBuilder(values)
	if err != nil {
		return 0, fmt.Errorf("failed to build update of %s: %w", q.table, err)
	}
	stmt, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build update of %s: %w", q.table, err)
	}

	return q.exec(ctx, "update", stmt, args)
}

func (q *query) deleteBuilder() (sq.DeleteBuilder, error) {
	if len(q.joins) > 0 {
		return sq.DeleteBuilder{}, fmt.Errorf("joins are not supported on writes")
	}

	b := psql.Delete(pq.QuoteIdentifier(q.table))
	for _, p := range q.preds {
		b = b.Where(p)
	}
	return b, nil
}

func (q *query) Delete(ctx context.Context) (int64, error) {
	b, err := q.deleteBuilder()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete from %s: %w", q.table, err)
	}
	stmt, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete from %s: %w", q.table, err)
	}

	return q.exec(ctx, "delete", stmt, args)
}

func (q *query) exec(ctx context.Context, op, stmt string, args []any) (int64, error) {
	result, err := q.ex.run.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s %s: %w", op, q.table, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// scanRows reads every row into a column-keyed map; text columns come back as strings
func scanRows(rows *sql.Rows) ([]entities.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []entities.Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(entities.Row, len(columns))
		for i, c := range columns {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// quoteRef quotes "table.column", "table.*" or a bare column
func quoteRef(ref string) string {
	table, column, ok := strings.Cut(ref, ".")
	if !ok {
		return pq.QuoteIdentifier(ref)
	}
	if column == "*" {
		return pq.QuoteIdentifier(table) + ".*"
	}
	return pq.QuoteIdentifier(table) + "." + pq.QuoteIdentifier(column)
}

// quoteSelect quotes a projection entry: "*", a reference, or "ref AS alias"
func quoteSelect(expr string) (string, error) {
	fields := strings.Fields(expr)
	switch {
	case len(fields) == 1 && fields[0] == "*":
		return "*", nil
	case len(fields) == 1:
		return quoteRef(fields[0]), nil
	case len(fields) == 3 && strings.EqualFold(fields[1], "AS"):
		return quoteRef(fields[0]) + " AS " + pq.QuoteIdentifier(fields[2]), nil
	default:
		return "", fmt.Errorf("unsupported select expression %q", expr)
	}
}
