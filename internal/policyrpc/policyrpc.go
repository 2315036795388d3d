// Package policyrpc is the boundary call surface between a decision agent and the policy
// runtime process. Messages are structpb.Struct values so the service needs no generated
// code; the descriptor below mirrors what protoc-gen-go-grpc would emit for
//
//	service PolicyRuntime {
//	  rpc Import(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc Create(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc Init(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc SelectAction(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc Release(google.protobuf.Struct) returns (google.protobuf.Struct);
//	}
package policyrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "agentbridge.policy.v1.PolicyRuntime"

const (
	importMethod       = "/" + ServiceName + "/Import"
	createMethod       = "/" + ServiceName + "/Create"
	initMethod         = "/" + ServiceName + "/Init"
	selectActionMethod = "/" + ServiceName + "/SelectAction"
	releaseMethod      = "/" + ServiceName + "/Release"
)

// PolicyRuntimeClient is the untyped client API.
type PolicyRuntimeClient interface {
	Import(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Create(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Init(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	SelectAction(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Release(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type policyRuntimeClient struct {
	cc grpc.ClientConnInterface
}

// NewPolicyRuntimeClient wraps a client connection.
func NewPolicyRuntimeClient(cc grpc.ClientConnInterface) PolicyRuntimeClient {
	return &policyRuntimeClient{cc}
}

func (c *policyRuntimeClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *policyRuntimeClient) Import(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, importMethod, in, opts...)
}

func (c *policyRuntimeClient) Create(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, createMethod, in, opts...)
}

func (c *policyRuntimeClient) Init(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, initMethod, in, opts...)
}

func (c *policyRuntimeClient) SelectAction(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, selectActionMethod, in, opts...)
}

func (c *policyRuntimeClient) Release(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, releaseMethod, in, opts...)
}

// PolicyRuntimeServer is the untyped server API.
type PolicyRuntimeServer interface {
	Import(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Create(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Init(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SelectAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Release(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedPolicyRuntimeServer can be embedded for forward compatibility.
type UnimplementedPolicyRuntimeServer struct{}

func (UnimplementedPolicyRuntimeServer) Import(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Import not implemented")
}

func (UnimplementedPolicyRuntimeServer) Create(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Create not implemented")
}

func (UnimplementedPolicyRuntimeServer) Init(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Init not implemented")
}

func (UnimplementedPolicyRuntimeServer) SelectAction(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SelectAction not implemented")
}

func (UnimplementedPolicyRuntimeServer) Release(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Release not implemented")
}

// RegisterPolicyRuntimeServer registers srv on s.
func RegisterPolicyRuntimeServer(s grpc.ServiceRegistrar, srv PolicyRuntimeServer) {
	s.RegisterService(&PolicyRuntime_ServiceDesc, srv)
}

// methodHandler is the signature of grpc.MethodDesc.Handler.
type methodHandler = func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error)

func unaryHandler(method string, call func(PolicyRuntimeServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) methodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PolicyRuntimeServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(PolicyRuntimeServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// PolicyRuntime_ServiceDesc is the grpc.ServiceDesc for the PolicyRuntime service.
var PolicyRuntime_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PolicyRuntimeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Import", Handler: unaryHandler(importMethod, PolicyRuntimeServer.Import)},
		{MethodName: "Create", Handler: unaryHandler(createMethod, PolicyRuntimeServer.Create)},
		{MethodName: "Init", Handler: unaryHandler(initMethod, PolicyRuntimeServer.Init)},
		{MethodName: "SelectAction", Handler: unaryHandler(selectActionMethod, PolicyRuntimeServer.SelectAction)},
		{MethodName: "Release", Handler: unaryHandler(releaseMethod, PolicyRuntimeServer.Release)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "agentbridge/policy/v1/policy.proto",
}
