package eventrpc_test

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/iotcloud/iotcloud/pkg/eventrpc"
	"github.com/iotcloud/iotcloud/pkg/types"
)

type echoServer struct{}

func (echoServer) SendEvent(_ context.Context, ev *types.Event) (*types.Ack, error) {
	return &types.Ack{Message: "echo", Device: ev.Device, Status: ev.Status}, nil
}

func TestSendEvent_RoundTrip(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := grpc.NewServer()
	eventrpc.RegisterEventServiceServer(srv, echoServer{})
	go srv.Serve(lis) //nolint:errcheck
	t.Cleanup(srv.Stop)

	conn, err := grpc.Dial(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	) //nolint:staticcheck
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	ack, err := eventrpc.NewEventServiceClient(conn).SendEvent(context.Background(),
		&types.Event{Device: "esp32-1", Status: "on"})
	if err != nil {
		t.Fatalf("SendEvent: %v", err)
	}
	if ack.Message != "echo" || ack.Device != "esp32-1" || ack.Status != "on" {
		t.Errorf("ack: got %+v", ack)
	}
}
