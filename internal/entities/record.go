package entities

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// Row is a database row keyed by column name
type Row map[string]any

// Record is an in-memory model instance keyed by property name.
// Relation results are attached under the relation name: a missing key means
// the relation was not requested, nil or an empty []Record means it was
// requested and nothing matched.
type Record map[string]any

// Clone returns a shallow copy of the row
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Has reports whether the property (or relation) is present on the record
func (r Record) Has(property string) bool {
	_, ok := r[property]
	return ok
}

// Related returns the single related record attached under name
func (r Record) Related(name string) (Record, bool) {
	rec, ok := r[name].(Record)
	return rec, ok
}

// RelatedList returns the related collection attached under name
func (r Record) RelatedList(name string) ([]Record, bool) {
	list, ok := r[name].([]Record)
	return list, ok
}

// KeyString normalizes a join key so that values of different numeric types
// address the same row (1, int64(1) and float64(1) all become "1").
// The second result is false for nil keys.
func KeyString(v any) (string, bool) {
	switch k := v.(type) {
	case nil:
		return "", false
	case *int64:
		if k == nil {
			return "", false
		}
	case *string:
		if k == nil {
			return "", false
		}
	case time.Time:
		return k.UTC().Format(time.RFC3339Nano), true
	}

	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v), true
	}
	return s, true
}
