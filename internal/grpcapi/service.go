// Package grpcapi exposes the guard-facing gate operations as the gRPC
// service gatehouse.v1.Gate.  Every method takes and returns a
// google.protobuf.Struct carrying the same fields as the HTTP JSON bodies, so
// no generated stubs are needed.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "gatehouse.v1.Gate"

// GateServer is the server API of gatehouse.v1.Gate.
type GateServer interface {
	Entry(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExitWithPass(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestApproval(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Approve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Deny(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckOut(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(GateServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts a GateServer method to grpc.MethodHandler the way
// protoc-gen-go-grpc output does.
func unaryHandler(name string, call unaryMethod) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(GateServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(GateServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// GateServiceDesc is the grpc.ServiceDesc for gatehouse.v1.Gate.
var GateServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GateServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Entry", Handler: unaryHandler("Entry", GateServer.Entry)},
		{MethodName: "ExitWithPass", Handler: unaryHandler("ExitWithPass", GateServer.ExitWithPass)},
		{MethodName: "RequestApproval", Handler: unaryHandler("RequestApproval", GateServer.RequestApproval)},
		{MethodName: "Approve", Handler: unaryHandler("Approve", GateServer.Approve)},
		{MethodName: "Deny", Handler: unaryHandler("Deny", GateServer.Deny)},
		{MethodName: "CheckIn", Handler: unaryHandler("CheckIn", GateServer.CheckIn)},
		{MethodName: "CheckOut", Handler: unaryHandler("CheckOut", GateServer.CheckOut)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gatehouse/v1/gate.proto",
}

func RegisterGateServer(s grpc.ServiceRegistrar, srv GateServer) {
	s.RegisterService(&GateServiceDesc, srv)
}

// GateClient calls gatehouse.v1.Gate.
type GateClient struct {
	cc grpc.ClientConnInterface
}

func NewGateClient(cc grpc.ClientConnInterface) *GateClient {
	return &GateClient{cc: cc}
}

func (c *GateClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GateClient) Entry(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Entry", in, opts...)
}

func (c *GateClient) ExitWithPass(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ExitWithPass", in, opts...)
}

func (c *GateClient) RequestApproval(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "RequestApproval", in, opts...)
}

func (c *GateClient) Approve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Approve", in, opts...)
}

func (c *GateClient) Deny(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Deny", in, opts...)
}

func (c *GateClient) CheckIn(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CheckIn", in, opts...)
}

func (c *GateClient) CheckOut(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CheckOut", in, opts...)
}
