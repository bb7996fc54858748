package receiver

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/iotcloud/iotcloud/pkg/eventrpc"
	"github.com/iotcloud/iotcloud/pkg/types"
	"github.com/iotcloud/iotcloud/server/internal/metrics"
	"github.com/iotcloud/iotcloud/server/internal/store"
)

// Receiver implements eventrpc.EventServiceServer.
// It records every incoming event in the device store.
type Receiver struct {
	store   *store.Store
	metrics *metrics.Registry
}

var _ eventrpc.EventServiceServer = (*Receiver)(nil)

// New creates a Receiver that writes accepted events to st. reg may be nil.
func New(st *store.Store, reg *metrics.Registry) *Receiver {
	return &Receiver{store: st, metrics: reg}
}

// SendEvent is the unary RPC handler called by reporting devices and agents.
// Like the HTTP gateway it never rejects an event: missing fields are
// normalized by the store and echoed back in the ack.
func (r *Receiver) SendEvent(ctx context.Context, ev *types.Event) (*types.Ack, error) {
	rec := r.store.RecordStatus(ev.Device, ev.Status)
	r.metrics.IncEvent(metrics.TransportGRPC)

	slog.Debug("receiver: event recorded",
		"device", rec.DeviceID,
		"status", rec.Status,
	)

	return &types.Ack{
		Message: "event received",
		EventID: uuid.NewString(),
		Device:  rec.DeviceID,
		Status:  rec.Status,
	}, nil
}
