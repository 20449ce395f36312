package handlers

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/relgraph/internal/entities"
	"github.com/asakaida/relgraph/internal/logging"
	"github.com/asakaida/relgraph/internal/services"
	"github.com/asakaida/relgraph/internal/services/eager"
	"github.com/asakaida/relgraph/internal/services/relation"
)

// GraphHandler serves the graph service over a registry and an eager loader
type GraphHandler struct {
	registry *services.Registry
	loader   *eager.Loader
}

var _ GraphServer = (*GraphHandler)(nil)

// NewGraphHandler creates a new GraphHandler
func NewGraphHandler(registry *services.Registry, loader *eager.Loader) *GraphHandler {
	return &GraphHandler{registry: registry, loader: loader}
}

// Fetch returns the records of a model, optionally restricted to ids,
// with the eager expression loaded onto them
func (h *GraphHandler) Fetch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	model, err := requiredString(req, "model")
	if err != nil {
		return nil, err
	}
	m, ok := h.registry.Model(model)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown model: %s", model)
	}

	var where sq.Sqlizer
	if ids, ok, err := optionalList(req, "ids"); err != nil {
		return nil, err
	} else if ok {
		where = sq.Eq{m.Table + "." + m.ID(): ids}
	}

	expression, err := optionalString(req, "expression")
	if err != nil {
		return nil, err
	}

	records, err := h.loader.Fetch(ctx, model, where, expression)
	if err != nil {
		return nil, toStatus(ctx, FetchMethod, err)
	}

	list, err := recordsToList(records)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode records: %v", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"records": structpb.NewListValue(list),
	}}, nil
}

// Relate links existing related records to one owner
func (h *GraphHandler) Relate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	target, err := h.relationTarget(ctx, req)
	if err != nil {
		return nil, err
	}

	ids, ok, err := optionalList(req, "related_ids")
	if err != nil {
		return nil, err
	}
	if !ok || len(ids) == 0 {
		return nil, status.Error(codes.InvalidArgument, "related_ids is required")
	}

	if err := target.rel.Strategy().Relate(ctx, target.owner, ids...); err != nil {
		return nil, toStatus(ctx, RelateMethod, err)
	}
	return &structpb.Struct{}, nil
}

// Unrelate removes links between one owner and its related records.
// Without related_ids every link of the relation is removed.
func (h *GraphHandler) Unrelate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	target, err := h.relationTarget(ctx, req)
	if err != nil {
		return nil, err
	}

	ids, _, err := optionalList(req, "related_ids")
	if err != nil {
		return nil, err
	}

	if err := target.rel.Strategy().Unrelate(ctx, target.owner, ids...); err != nil {
		return nil, toStatus(ctx, UnrelateMethod, err)
	}
	return &structpb.Struct{}, nil
}

type relationTarget struct {
	owner entities.Record
	rel   *relation.Relation
}

// relationTarget loads the owner record and resolves the relation a
// Relate or Unrelate request addresses
func (h *GraphHandler) relationTarget(ctx context.Context, req *structpb.Struct) (*relationTarget, error) {
	model, err := requiredString(req, "model")
	if err != nil {
		return nil, err
	}
	name, err := requiredString(req, "relation")
	if err != nil {
		return nil, err
	}
	id, err := requiredID(req, "id")
	if err != nil {
		return nil, err
	}

	m, ok := h.registry.Model(model)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown model: %s", model)
	}
	rel, err := h.registry.Relation(model, name)
	if err != nil {
		return nil, toStatus(ctx, "", err)
	}

	owners, err := h.loader.Fetch(ctx, model, sq.Eq{m.Table + "." + m.ID(): id}, "")
	if err != nil {
		return nil, toStatus(ctx, "", err)
	}
	if len(owners) == 0 {
		return nil, status.Errorf(codes.NotFound, "%s %v not found", model, id)
	}
	return &relationTarget{owner: owners[0], rel: rel}, nil
}

// toStatus maps domain errors onto gRPC status codes
func toStatus(ctx context.Context, method string, err error) error {
	code := codes.Internal
	var (
		parseErr       *entities.ParseError
		relationErr    *entities.RelationError
		cardinalityErr *entities.CardinalityError
		configErr      *entities.ConfigurationError
	)
	switch {
	case errors.As(err, &parseErr):
		code = codes.InvalidArgument
	case errors.As(err, &relationErr), errors.Is(err, services.ErrUnknownModel):
		code = codes.NotFound
	case errors.As(err, &cardinalityErr), errors.As(err, &configErr):
		code = codes.FailedPrecondition
	case errors.Is(err, eager.ErrRecursionDepth):
		code = codes.ResourceExhausted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}

	logging.Ctx(ctx).Warn().Err(err).Str("method", method).Str("code", code.String()).Msg("request failed")
	return status.Error(code, err.Error())
}
