package perimeter

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "perimeter.v1.ControlService"

// Method names.
const (
	MethodArm         = "Arm"
	MethodDisarm      = "Disarm"
	MethodReset       = "Reset"
	MethodGetStatus   = "GetStatus"
	MethodApplyConfig = "ApplyConfig"
)

// ControlServer is the server API of the control service.
type ControlServer interface {
	Arm(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	Disarm(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	Reset(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	GetStatus(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	ApplyConfig(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
}

// ControlServiceDesc describes the control service for grpc.Server.
//
//nolint:gochecknoglobals // Service descriptors are package-level by convention.
var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodArm, Handler: unaryHandler(MethodArm, ControlServer.Arm)},
		{MethodName: MethodDisarm, Handler: unaryHandler(MethodDisarm, ControlServer.Disarm)},
		{MethodName: MethodReset, Handler: unaryHandler(MethodReset, ControlServer.Reset)},
		{MethodName: MethodGetStatus, Handler: unaryHandler(MethodGetStatus, ControlServer.GetStatus)},
		{MethodName: MethodApplyConfig, Handler: unaryHandler(MethodApplyConfig, ControlServer.ApplyConfig)},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ControlServiceDesc, srv)
}

// FullMethod returns the /service/method path of a method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unaryHandler adapts a typed server method to grpc.MethodHandler.
func unaryHandler[Req any](
	method string,
	call func(ControlServer, context.Context, *Req) (*structpb.Struct, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}

		server, _ := srv.(ControlServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(method),
		}

		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			typed, _ := req.(*Req)

			return call(server, ctx, typed)
		})
	}
}

// ControlClient is the client API of the control service.
type ControlClient struct {
	cc grpc.ClientConnInterface
}

// NewControlClient returns a client bound to cc.
func NewControlClient(cc grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{cc: cc}
}

// Arm requests DISARMED -> ARMING.
func (c *ControlClient) Arm(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodArm, new(emptypb.Empty), opts...)
}

// Disarm requests a return to DISARMED.
func (c *ControlClient) Disarm(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodDisarm, new(emptypb.Empty), opts...)
}

// Reset forces DISARMED.
func (c *ControlClient) Reset(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodReset, new(emptypb.Empty), opts...)
}

// GetStatus returns the controller status.
func (c *ControlClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetStatus, new(emptypb.Empty), opts...)
}

// ApplyConfig sends a YAML topology document.
func (c *ControlClient) ApplyConfig(ctx context.Context, document string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodApplyConfig, wrapperspb.String(document), opts...)
}

func (c *ControlClient) invoke(ctx context.Context, method string, in any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}
