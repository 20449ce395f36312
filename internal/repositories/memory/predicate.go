package memory

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/spf13/cast"

	"github.com/asakaida/relgraph/internal/entities"
)

// evaluate interprets the squirrel predicate types relations and callers build.
// Other Sqlizers have no in-memory meaning and are rejected.
func evaluate(pred sq.Sqlizer, get func(column string) any) (bool, error) {
	switch p := pred.(type) {
	case nil:
		return true, nil
	case sq.Eq:
		for col, want := range p {
			if !matches(get(col), want) {
				return false, nil
			}
		}
		return true, nil
	case sq.NotEq:
		for col, want := range p {
			have := get(col)
			if want == nil {
				if have == nil {
					return false, nil
				}
				continue
			}
			if have == nil || matches(have, want) {
				return false, nil
			}
		}
		return true, nil
	case sq.Lt:
		return compareAll(p, get, func(c int) bool { return c < 0 }), nil
	case sq.LtOrEq:
		return compareAll(p, get, func(c int) bool { return c <= 0 }), nil
	case sq.Gt:
		return compareAll(p, get, func(c int) bool { return c > 0 }), nil
	case sq.GtOrEq:
		return compareAll(p, get, func(c int) bool { return c >= 0 }), nil
	case sq.And:
		for _, sub := range p {
			ok, err := evaluate(sub, get)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case sq.Or:
		for _, sub := range p {
			ok, err := evaluate(sub, get)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported predicate %T", pred)
	}
}

// matches reports SQL equality: nil wants NULL, slices mean IN
func matches(have, want any) bool {
	if want == nil {
		return have == nil
	}
	if have == nil {
		return false
	}

	if _, isBytes := want.([]byte); !isBytes {
		v := reflect.ValueOf(want)
		if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
			for i := 0; i < v.Len(); i++ {
				if equal(have, v.Index(i).Interface()) {
					return true
				}
			}
			return false
		}
	}
	return equal(have, want)
}

// equal compares two non-nil values by their normalized key form
func equal(a, b any) bool {
	ka, okA := entities.KeyString(a)
	kb, okB := entities.KeyString(b)
	return okA && okB && ka == kb
}

func compareAll[M ~map[string]any](p M, get func(string) any, accept func(int) bool) bool {
	for col, want := range p {
		have := get(col)
		if have == nil || want == nil {
			return false
		}
		if !accept(order(have, want)) {
			return false
		}
	}
	return true
}

// order compares two values numerically when both are numbers, chronologically
// for times and lexically otherwise. NULL sorts first.
func order(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}

	fa, errA := cast.ToFloat64E(a)
	fb, errB := cast.ToFloat64E(b)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(cast.ToString(a), cast.ToString(b))
}
