package handlers

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "relgraph.v1.GraphService"

const (
	FetchMethod    = "/" + ServiceName + "/Fetch"
	RelateMethod   = "/" + ServiceName + "/Relate"
	UnrelateMethod = "/" + ServiceName + "/Unrelate"
)

// GraphServer is the server API of the graph service.
// Requests and responses are google.protobuf.Struct messages.
type GraphServer interface {
	// Fetch: {model, ids?, expression?} -> {records}
	Fetch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	// Relate: {model, id, relation, related_ids} -> {}
	Relate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	// Unrelate: {model, id, relation, related_ids?} -> {}
	Unrelate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// GraphServiceDesc describes the graph service for grpc.Server registration
var GraphServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GraphServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Fetch", Handler: unaryHandler(FetchMethod, GraphServer.Fetch)},
		{MethodName: "Relate", Handler: unaryHandler(RelateMethod, GraphServer.Relate)},
		{MethodName: "Unrelate", Handler: unaryHandler(UnrelateMethod, GraphServer.Unrelate)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "relgraph/v1/graph.proto",
}

// RegisterGraphServer registers srv on s
func RegisterGraphServer(s grpc.ServiceRegistrar, srv GraphServer) {
	s.RegisterService(&GraphServiceDesc, srv)
}

type method func(srv GraphServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call method) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(GraphServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(GraphServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// GraphClient is the client API of the graph service
type GraphClient struct {
	cc grpc.ClientConnInterface
}

// NewGraphClient creates a client on cc
func NewGraphClient(cc grpc.ClientConnInterface) *GraphClient {
	return &GraphClient{cc: cc}
}

func (c *GraphClient) Fetch(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, FetchMethod, req, opts)
}

func (c *GraphClient) Relate(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, RelateMethod, req, opts)
}

func (c *GraphClient) Unrelate(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, UnrelateMethod, req, opts)
}

func (c *GraphClient) invoke(ctx context.Context, method string, req *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
