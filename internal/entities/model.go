package entities

import (
	"github.com/ettle/strcase"
)

// ColumnMapper converts between database column names and record property names
type ColumnMapper interface {
	ToProperty(column string) string
	ToColumn(property string) string
}

// IdentityMapper uses column names as property names
type IdentityMapper struct{}

func (IdentityMapper) ToProperty(column string) string { return column }
func (IdentityMapper) ToColumn(property string) string { return property }

// SnakeCamelMapper maps snake_case columns to camelCase properties
// Example: "parent_id" <-> "parentId"
type SnakeCamelMapper struct{}

func (SnakeCamelMapper) ToProperty(column string) string { return strcase.ToCamel(column) }
func (SnakeCamelMapper) ToColumn(property string) string { return strcase.ToSnake(property) }

// Model represents a record type backed by a table
// Example: Person stored in "persons" with relations "pets" and "movies"
type Model struct {
	Name      string             // Model name (e.g., "Person")
	Table     string             // Table name (e.g., "persons")
	IDColumn  string             // Identifier column (defaults to "id")
	Columns   []string           // Declared columns (optional, used by full updates)
	Mapper    ColumnMapper       // Column/property mapping (defaults to IdentityMapper)
	Relations []*RelationMapping // Declared relations in declaration order
}

// ID returns the identifier column of the model
func (m *Model) ID() string {
	if m.IDColumn == "" {
		return "id"
	}
	return m.IDColumn
}

// IDProperty returns the property holding the identifier
func (m *Model) IDProperty() string {
	return m.mapper().ToProperty(m.ID())
}

// ColumnMapper returns the mapper of the model, never nil
func (m *Model) ColumnMapper() ColumnMapper {
	return m.mapper()
}

func (m *Model) mapper() ColumnMapper {
	if m.Mapper == nil {
		return IdentityMapper{}
	}
	return m.Mapper
}

// GetRelation returns the relation mapping by name
func (m *Model) GetRelation(name string) *RelationMapping {
	for _, r := range m.Relations {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// RowToRecord converts a database row into a record
func (m *Model) RowToRecord(row Row) Record {
	mapper := m.mapper()
	rec := make(Record, len(row))
	for col, v := range row {
		rec[mapper.ToProperty(col)] = v
	}
	return rec
}

// RecordToRow converts a record into a database row.
// Attached relations are skipped.
func (m *Model) RecordToRow(rec Record) Row {
	mapper := m.mapper()
	row := make(Row, len(rec))
	for prop, v := range rec {
		if m.GetRelation(prop) != nil {
			continue
		}
		switch v.(type) {
		case Record, []Record:
			continue
		}
		row[mapper.ToColumn(prop)] = v
	}
	return row
}

// Validate checks if the model is valid
func (m *Model) Validate() error {
	if m.Name == "" {
		return &ConfigurationError{Reason: "model name is required"}
	}
	if m.Table == "" {
		return &ConfigurationError{Model: m.Name, Reason: "table is required"}
	}
	seen := make(map[string]bool, len(m.Relations))
	for _, r := range m.Relations {
		if r.Name == "" {
			return &ConfigurationError{Model: m.Name, Reason: "relation name is required"}
		}
		if seen[r.Name] {
			return &ConfigurationError{Model: m.Name, Relation: r.Name, Reason: "duplicate relation"}
		}
		seen[r.Name] = true
	}
	return nil
}
