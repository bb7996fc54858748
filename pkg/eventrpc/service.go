package eventrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/iotcloud/iotcloud/pkg/types"
)

const (
	serviceName     = "iotcloud.v1.EventService"
	sendEventMethod = "/" + serviceName + "/SendEvent"
)

// EventServiceServer is implemented by the server-side event receiver.
type EventServiceServer interface {
	SendEvent(context.Context, *types.Event) (*types.Ack, error)
}

// RegisterEventServiceServer registers srv on s.
func RegisterEventServiceServer(s grpc.ServiceRegistrar, srv EventServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*EventServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendEvent",
			Handler:    sendEventHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "iotcloud/v1/event.proto",
}

func sendEventHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(types.Event)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventServiceServer).SendEvent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: sendEventMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EventServiceServer).SendEvent(ctx, req.(*types.Event))
	}
	return interceptor(ctx, in, info, handler)
}

// EventServiceClient sends events to an EventService.
type EventServiceClient interface {
	SendEvent(ctx context.Context, in *types.Event, opts ...grpc.CallOption) (*types.Ack, error)
}

type eventServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewEventServiceClient returns a client bound to cc.
func NewEventServiceClient(cc grpc.ClientConnInterface) EventServiceClient {
	return &eventServiceClient{cc: cc}
}

func (c *eventServiceClient) SendEvent(ctx context.Context, in *types.Event, opts ...grpc.CallOption) (*types.Ack, error) {
	out := new(types.Ack)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, sendEventMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
