package declarations

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/asakaida/relgraph/internal/entities"
)

// Mapper names accepted by the mapper attribute
const (
	MapperIdentity   = "identity"
	MapperSnakeCamel = "snake_camel"
)

type fileRoot struct {
	Models []*modelBlock `hcl:"model,block"`
	Remain hcl.Body      `hcl:",remain"`
}

type modelBlock struct {
	Name      string           `hcl:"name,label"`
	Table     string           `hcl:"table"`
	IDColumn  *string          `hcl:"id_column,optional"`
	Columns   []string         `hcl:"columns,optional"`
	Mapper    *string          `hcl:"mapper,optional"`
	Relations []*relationBlock `hcl:"relation,block"`
}

type relationBlock struct {
	Name    string        `hcl:"name,label"`
	Kind    string        `hcl:"kind"`
	Model   string        `hcl:"model"`
	From    string        `hcl:"from"`
	To      string        `hcl:"to"`
	Through *throughBlock `hcl:"through,block"`
	Filter  cty.Value     `hcl:"filter,optional"`
}

type throughBlock struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

// Load reads model declarations from .hcl files. Directories are walked.
// Models are returned in file order, then declaration order.
func Load(paths ...string) ([]*entities.Model, error) {
	files, err := findHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %s", strings.Join(paths, ", "))
	}

	parser := hclparse.NewParser()
	var blocks []*modelBlock
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		decoded, err := decode(file, f)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, decoded...)
	}
	return translate(blocks)
}

// Parse reads model declarations from HCL source
func Parse(src []byte, filename string) ([]*entities.Model, error) {
	f, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	blocks, err := decode(filename, f)
	if err != nil {
		return nil, err
	}
	return translate(blocks)
}

func decode(filename string, f *hcl.File) ([]*modelBlock, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(f.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}
	return root.Models, nil
}

func findHCLFiles(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			files = append(files, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}

		var found []string
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(p) == ".hcl" {
				found = append(found, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		for _, p := range found {
			add(p)
		}
	}
	return files, nil
}

func translate(blocks []*modelBlock) ([]*entities.Model, error) {
	tables := make(map[string]string, len(blocks))
	for _, b := range blocks {
		tables[b.Name] = b.Table
	}

	models := make([]*entities.Model, 0, len(blocks))
	for _, b := range blocks {
		m := &entities.Model{
			Name:    b.Name,
			Table:   b.Table,
			Columns: b.Columns,
		}
		if b.IDColumn != nil {
			m.IDColumn = *b.IDColumn
		}

		mapper := MapperIdentity
		if b.Mapper != nil {
			mapper = *b.Mapper
		}
		switch mapper {
		case MapperIdentity:
			m.Mapper = entities.IdentityMapper{}
		case MapperSnakeCamel:
			m.Mapper = entities.SnakeCamelMapper{}
		default:
			return nil, &entities.ConfigurationError{Model: b.Name, Reason: fmt.Sprintf("unknown mapper %q", mapper)}
		}

		for _, r := range b.Relations {
			mapping, err := translateRelation(b.Name, r, tables[r.Model])
			if err != nil {
				return nil, err
			}
			m.Relations = append(m.Relations, mapping)
		}
		models = append(models, m)
	}
	return models, nil
}

func translateRelation(model string, r *relationBlock, relatedTable string) (*entities.RelationMapping, error) {
	fail := func(format string, args ...any) error {
		return &entities.ConfigurationError{Model: model, Relation: r.Name, Reason: fmt.Sprintf(format, args...)}
	}

	kind, err := entities.ParseRelationKind(r.Kind)
	if err != nil {
		return nil, fail("%v", err)
	}

	mapping := &entities.RelationMapping{
		Name:         r.Name,
		Kind:         kind,
		RelatedModel: r.Model,
		Join:         &entities.JoinSpec{From: r.From, To: r.To},
	}
	if r.Through != nil {
		mapping.Join.Through = &entities.ThroughSpec{From: r.Through.From, To: r.Through.To}
	}

	if !r.Filter.IsNull() {
		filter, err := filterOf(r.Filter, relatedTable)
		if err != nil {
			return nil, fail("invalid filter: %v", err)
		}
		mapping.Filter = filter
	}
	return mapping, nil
}

// filterOf turns { column = value } into an equality predicate. Bare column
// names are qualified with the related table so they stay unambiguous in joins.
// A list value means IN, null means IS NULL.
func filterOf(v cty.Value, relatedTable string) (sq.Eq, error) {
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("filter must be a constant")
	}
	t := v.Type()
	if !t.IsObjectType() && !t.IsMapType() {
		return nil, fmt.Errorf("filter must be an object, got %s", t.FriendlyName())
	}

	eq := sq.Eq{}
	for it := v.ElementIterator(); it.Next(); {
		k, ev := it.Element()
		column := k.AsString()
		if relatedTable != "" && !strings.Contains(column, ".") {
			column = relatedTable + "." + column
		}

		value, err := goValue(ev)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k.AsString(), err)
		}
		eq[column] = value
	}
	return eq, nil
}

func goValue(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}

	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString(), nil
	case t == cty.Bool:
		return v.True(), nil
	case t == cty.Number:
		bf := v.AsBigFloat()
		if i, acc := bf.Int64(); acc == big.Exact {
			return i, nil
		}
		f, _ := bf.Float64()
		return f, nil
	case t.IsListType() || t.IsTupleType() || t.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			x, err := goValue(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, x)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value of type %s", t.FriendlyName())
}
