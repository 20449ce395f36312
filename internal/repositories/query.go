package repositories

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/asakaida/relgraph/internal/entities"
)

// Executor is the query-execution capability relations run against.
// Implementations: postgres (database/sql) and memory (go-memdb).
type Executor interface {
	// Query starts a query context over the given table
	Query(table string) Query

	// Transaction runs fn with an executor bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	// Calling Transaction on a transactional executor reuses the outer transaction.
	Transaction(ctx context.Context, fn func(tx Executor) error) error
}

// Query is an immutable query context over one table.
// Every refinement returns a new Query and leaves the receiver untouched.
type Query interface {
	// Table returns the base table of the query
	Table() string

	// Select sets the projection: "*", "t.*", "t.c", "t.c AS alias" or a bare column
	Select(columns ...string) Query

	// Join adds an inner join on left = right, both table-qualified
	Join(table, left, right string) Query

	// Where adds a predicate; multiple predicates are combined with AND
	Where(pred sq.Sqlizer) Query

	// WhereIn restricts column to the given values
	WhereIn(column string, values []any) Query

	// OrderBy sets the ordering columns ("col" or "col DESC")
	OrderBy(columns ...string) Query

	// Rows executes the select and returns the matching rows
	Rows(ctx context.Context) ([]entities.Row, error)

	// Insert stores rows in the base table and returns them as stored,
	// including generated identifiers
	Insert(ctx context.Context, rows ...entities.Row) ([]entities.Row, error)

	// Update sets values on every matching row of the base table
	Update(ctx context.Context, values entities.Row) (int64, error)

	// Delete removes every matching row of the base table
	Delete(ctx context.Context) (int64, error)
}
