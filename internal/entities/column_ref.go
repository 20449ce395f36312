package entities

import (
	"fmt"
	"strings"
)

// ColumnRef represents a table-qualified column reference
// Example: "persons.parent_id"
type ColumnRef struct {
	Table  string // Table name (e.g., "persons")
	Column string // Column name (e.g., "parent_id")
}

// ParseColumnRef parses a "Table.column" string into a ColumnRef
func ParseColumnRef(ref string) (ColumnRef, error) {
	table, column, ok := strings.Cut(ref, ".")
	if !ok {
		return ColumnRef{}, fmt.Errorf("invalid column reference %q: expected Table.column", ref)
	}
	if table == "" || column == "" || strings.Contains(column, ".") {
		return ColumnRef{}, fmt.Errorf("invalid column reference %q: expected Table.column", ref)
	}
	return ColumnRef{Table: table, Column: column}, nil
}

// String returns the reference in "Table.column" form
func (c ColumnRef) String() string {
	return c.Table + "." + c.Column
}
