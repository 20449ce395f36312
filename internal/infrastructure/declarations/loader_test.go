package declarations

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/relgraph/internal/entities"
	"github.com/asakaida/relgraph/internal/services"
	"github.com/asakaida/relgraph/internal/testutil"
)

func TestLoad_ProjectModels(t *testing.T) {
	models, err := Load("../../../models.hcl")
	require.NoError(t, err)
	require.Len(t, models, 3)

	person := models[0]
	assert.Equal(t, "Person", person.Name)
	assert.Equal(t, "persons", person.Table)
	assert.Equal(t, entities.SnakeCamelMapper{}, person.Mapper)
	assert.Equal(t, []string{"id", "first_name", "last_name", "parent_id", "pet_id"}, person.Columns)

	movies := person.GetRelation("movies")
	require.NotNil(t, movies)
	assert.Equal(t, entities.ManyToMany, movies.Kind)
	assert.Equal(t, "Movie", movies.RelatedModel)
	assert.Equal(t, "persons_movies.person_id", movies.Join.Through.From)
	assert.Equal(t, sq.Eq{"movies.deleted": false}, movies.Filter)

	// the declarations match the fixtures the unit tests use
	registry := services.NewRegistry(nil)
	require.NoError(t, registry.Register(models...))
	names, err := registry.RelationNames("Person")
	require.NoError(t, err)
	assert.Equal(t, []string{"pet", "pets", "parent", "children", "movies"}, names)

	for _, want := range testutil.DemoModels() {
		got, ok := registry.Model(want.Name)
		require.True(t, ok)
		assert.Equal(t, want.Table, got.Table)
		assert.Len(t, got.Relations, len(want.Relations))
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		check func(t *testing.T, models []*entities.Model)
	}{
		{
			name: "defaults",
			src: `
model "Tag" {
  table = "tags"
}`,
			check: func(t *testing.T, models []*entities.Model) {
				require.Len(t, models, 1)
				assert.Equal(t, entities.IdentityMapper{}, models[0].Mapper)
				assert.Equal(t, "id", models[0].ID())
				assert.Empty(t, models[0].Relations)
			},
		},
		{
			name: "custom id column",
			src: `
model "Tag" {
  table     = "tags"
  id_column = "tag_id"
}`,
			check: func(t *testing.T, models []*entities.Model) {
				assert.Equal(t, "tag_id", models[0].ID())
			},
		},
		{
			name: "filter values",
			src: `
model "Shelf" {
  table = "shelves"
  relation "books" {
    kind  = "one_to_many"
    model = "Book"
    from  = "shelves.id"
    to    = "books.shelf_id"
    filter = {
      status      = ["new", "used"]
      archived_at = null
      pages       = 120
      rating      = 4.5
      "books.x"   = "y"
    }
  }
}
model "Book" {
  table = "books"
}`,
			check: func(t *testing.T, models []*entities.Model) {
				rel := models[0].GetRelation("books")
				require.NotNil(t, rel)
				assert.Equal(t, sq.Eq{
					"books.status":      []any{"new", "used"},
					"books.archived_at": nil,
					"books.pages":       int64(120),
					"books.rating":      4.5,
					"books.x":           "y",
				}, rel.Filter)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			models, err := Parse([]byte(tt.src), "test.hcl")
			require.NoError(t, err)
			tt.check(t, models)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		config bool
	}{
		{name: "syntax error", src: `model "A" {`},
		{name: "missing table", src: `model "A" {}`},
		{
			name: "unknown attribute",
			src: `
model "A" {
  table = "a"
  color = "red"
}`,
		},
		{
			name:   "unknown mapper",
			src: `
model "A" {
  table  = "a"
  mapper = "kebab"
}`,
			config: true,
		},
		{
			name: "unknown kind",
			src: `
model "A" {
  table = "a"
  relation "b" {
    kind  = "one_to_few"
    model = "A"
    from  = "a.id"
    to    = "a.b_id"
  }
}`,
			config: true,
		},
		{
			name: "filter is not an object",
			src: `
model "A" {
  table = "a"
  relation "b" {
    kind   = "one_to_one"
    model  = "A"
    from   = "a.b_id"
    to     = "a.id"
    filter = "deleted = false"
  }
}`,
			config: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "test.hcl")
			require.Error(t, err)

			var cfgErr *entities.ConfigurationError
			assert.Equal(t, tt.config, errors.As(err, &cfgErr))
		})
	}
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.hcl"), []byte(`model "B" { table = "bs" }`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hcl"), []byte(`model "A" { table = "as" }`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`ignored`), 0o600))

	models, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "A", models[0].Name)
	assert.Equal(t, "B", models[1].Name)

	_, err = Load(filepath.Join(dir, "missing.hcl"))
	require.Error(t, err)
}
