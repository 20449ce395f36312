package entities

import "testing"

func TestParseColumnRef(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ColumnRef
		wantErr bool
	}{
		{
			name:  "table and column",
			input: "persons.id",
			want:  ColumnRef{Table: "persons", Column: "id"},
		},
		{
			name:  "join table column",
			input: "persons_movies.movie_id",
			want:  ColumnRef{Table: "persons_movies", Column: "movie_id"},
		},
		{
			name:    "missing dot",
			input:   "persons",
			wantErr: true,
		},
		{
			name:    "empty table",
			input:   ".id",
			wantErr: true,
		},
		{
			name:    "empty column",
			input:   "persons.",
			wantErr: true,
		},
		{
			name:    "too many parts",
			input:   "public.persons.id",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseColumnRef(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseColumnRef(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want {
				t.Errorf("ParseColumnRef(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
			if got.String() != tt.input {
				t.Errorf("ColumnRef.String() = %q, want %q", got.String(), tt.input)
			}
		})
	}
}
