package entities

import (
	"errors"
	"testing"
)

func TestSnakeCamelMapper(t *testing.T) {
	tests := []struct {
		column   string
		property string
	}{
		{"id", "id"},
		{"parent_id", "parentId"},
		{"first_name", "firstName"},
	}

	mapper := SnakeCamelMapper{}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			if got := mapper.ToProperty(tt.column); got != tt.property {
				t.Errorf("ToProperty(%q) = %q, want %q", tt.column, got, tt.property)
			}
			if got := mapper.ToColumn(tt.property); got != tt.column {
				t.Errorf("ToColumn(%q) = %q, want %q", tt.property, got, tt.column)
			}
		})
	}
}

func TestModel_RowToRecord(t *testing.T) {
	model := &Model{Name: "Person", Table: "persons", Mapper: SnakeCamelMapper{}}

	rec := model.RowToRecord(Row{"id": 1, "first_name": "Jennifer", "parent_id": nil})

	if rec["firstName"] != "Jennifer" {
		t.Errorf("expected firstName 'Jennifer', got %v", rec["firstName"])
	}
	if !rec.Has("parentId") {
		t.Error("expected parentId to be present")
	}
	if rec["id"] != 1 {
		t.Errorf("expected id 1, got %v", rec["id"])
	}
}

func TestModel_RecordToRow(t *testing.T) {
	model := &Model{
		Name:   "Person",
		Table:  "persons",
		Mapper: SnakeCamelMapper{},
		Relations: []*RelationMapping{
			{Name: "pets", Kind: OneToMany, RelatedModel: "Animal"},
		},
	}

	row := model.RecordToRow(Record{
		"id":        1,
		"firstName": "Jennifer",
		"pets":      []Record{{"id": 10}},
		"parent":    Record{"id": 2},
	})

	if len(row) != 2 {
		t.Fatalf("expected 2 columns, got %d: %v", len(row), row)
	}
	if row["first_name"] != "Jennifer" {
		t.Errorf("expected first_name 'Jennifer', got %v", row["first_name"])
	}
}

func TestModel_IDDefaults(t *testing.T) {
	model := &Model{Name: "Person", Table: "persons"}
	if model.ID() != "id" {
		t.Errorf("expected default id column, got %s", model.ID())
	}

	model = &Model{Name: "Movie", Table: "movies", IDColumn: "movie_id", Mapper: SnakeCamelMapper{}}
	if model.IDProperty() != "movieId" {
		t.Errorf("expected movieId, got %s", model.IDProperty())
	}
}

func TestModel_Validate(t *testing.T) {
	tests := []struct {
		name    string
		model   *Model
		wantErr bool
	}{
		{
			name:  "valid model",
			model: &Model{Name: "Person", Table: "persons"},
		},
		{
			name:    "missing name",
			model:   &Model{Table: "persons"},
			wantErr: true,
		},
		{
			name:    "missing table",
			model:   &Model{Name: "Person"},
			wantErr: true,
		},
		{
			name: "duplicate relation",
			model: &Model{Name: "Person", Table: "persons", Relations: []*RelationMapping{
				{Name: "pets"}, {Name: "pets"},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.model.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Errorf("expected ConfigurationError, got %T", err)
				}
			}
		})
	}
}
