package handlers

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/relgraph/internal/entities"
)

// === Request decoding ===

func requiredString(req *structpb.Struct, field string) (string, error) {
	s, err := optionalString(req, field)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", field)
	}
	return s, nil
}

func optionalString(req *structpb.Struct, field string) (string, error) {
	v, ok := req.GetFields()[field]
	if !ok {
		return "", nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return "", nil
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", status.Errorf(codes.InvalidArgument, "%s must be a string", field)
	}
	return s.StringValue, nil
}

func requiredID(req *structpb.Struct, field string) (any, error) {
	v, ok := req.GetFields()[field]
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "%s is required", field)
	}
	id, err := idOf(v)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%s: %v", field, err)
	}
	return id, nil
}

// optionalList decodes a list of identifiers. The second result reports
// whether the field was present.
func optionalList(req *structpb.Struct, field string) ([]any, bool, error) {
	v, ok := req.GetFields()[field]
	if !ok {
		return nil, false, nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false, nil
	}
	list, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, false, status.Errorf(codes.InvalidArgument, "%s must be a list", field)
	}

	ids := make([]any, 0, len(list.ListValue.GetValues()))
	for i, item := range list.ListValue.GetValues() {
		id, err := idOf(item)
		if err != nil {
			return nil, false, status.Errorf(codes.InvalidArgument, "invalid %s at index %d: %v", field, i, err)
		}
		ids = append(ids, id)
	}
	return ids, true, nil
}

// idOf accepts integral numbers and strings. JSON numbers arrive as float64
// and are narrowed to int64 so they bind to integer columns.
func idOf(v *structpb.Value) (any, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("identifier must be an integer, got %v", n)
		}
		// float64(math.MaxInt64) rounds up to 2^63, which is out of range
		if n >= float64(math.MaxInt64) || n < float64(math.MinInt64) {
			return nil, fmt.Errorf("identifier %v is out of the int64 range", n)
		}
		return int64(n), nil
	case *structpb.Value_StringValue:
		if k.StringValue == "" {
			return nil, fmt.Errorf("identifier must not be empty")
		}
		return k.StringValue, nil
	default:
		return nil, fmt.Errorf("identifier must be a number or a string")
	}
}

// === Response encoding ===

func recordsToList(records []entities.Record) (*structpb.ListValue, error) {
	values := make([]*structpb.Value, 0, len(records))
	for _, r := range records {
		v, err := toValue(r)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return &structpb.ListValue{Values: values}, nil
}

func toValue(v any) (*structpb.Value, error) {
	switch x := v.(type) {
	case entities.Record:
		fields := make(map[string]*structpb.Value, len(x))
		for k, fv := range x {
			pv, err := toValue(fv)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			fields[k] = pv
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: fields}), nil
	case []entities.Record:
		values := make([]*structpb.Value, 0, len(x))
		for _, r := range x {
			pv, err := toValue(r)
			if err != nil {
				return nil, err
			}
			values = append(values, pv)
		}
		return structpb.NewListValue(&structpb.ListValue{Values: values}), nil
	case time.Time:
		return structpb.NewStringValue(x.UTC().Format(time.RFC3339Nano)), nil
	case *time.Time:
		if x == nil {
			return structpb.NewNullValue(), nil
		}
		return structpb.NewStringValue(x.UTC().Format(time.RFC3339Nano)), nil
	default:
		return structpb.NewValue(v)
	}
}
