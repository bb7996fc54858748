package reporter

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/iotcloud/iotcloud/agent/internal/config"
	"github.com/iotcloud/iotcloud/pkg/eventrpc"
	"github.com/iotcloud/iotcloud/pkg/types"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second
)

// Reporter buffers status events and sends them to iotcloud-server via gRPC.
// Report is non-blocking; when the buffer is full the oldest event is evicted.
// Run must be called in a goroutine to drain the buffer and handle reconnection.
type Reporter struct {
	endpoint string
	buf      chan types.Event
	dialFn   dialFunc // injectable for tests

	// retry holds an event whose send failed transiently. It is resent before
	// anything newer in buf, so a device's reports reach the server in order.
	// Only the Run goroutine touches it.
	retry    *types.Event
	retrying atomic.Bool
}

// dialFunc opens a gRPC connection to endpoint.
type dialFunc func(ctx context.Context, endpoint string) (*grpc.ClientConn, error)

// New creates a Reporter using the given agent config.
func New(cfg config.AgentConfig) *Reporter {
	return &Reporter{
		endpoint: cfg.ServerEndpoint,
		buf:      make(chan types.Event, cfg.BufferSize),
		dialFn:   defaultDial,
	}
}

// Report enqueues one status event. If the buffer is full the oldest entry is
// evicted; a device's newest status matters more than its history.
func (r *Reporter) Report(deviceID, deviceStatus string) {
	ev := types.Event{Device: deviceID, Status: deviceStatus}
	for {
		select {
		case r.buf <- ev:
			return
		default:
		}
		select {
		case old := <-r.buf:
			slog.Warn("reporter: buffer full, evicted oldest event",
				"device", old.Device, "buffer_cap", cap(r.buf))
		default:
		}
	}
}

// Pending returns the number of events not yet delivered, including one
// held for retry.
func (r *Reporter) Pending() int {
	n := len(r.buf)
	if r.retrying.Load() {
		n++
	}
	return n
}

// Run drains the buffer, sending events to the server.
// It reconnects with exponential backoff when the connection is lost.
// Run blocks until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := r.dialFn(ctx, r.endpoint)
		if err != nil {
			wait := bo.next()
			slog.Error("reporter: dial failed, will retry",
				"endpoint", r.endpoint, "err", err, "retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		slog.Info("reporter: connected", "endpoint", r.endpoint)

		err = r.drain(ctx, conn, bo)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("reporter: connection lost, will reconnect",
			"endpoint", r.endpoint, "err", err, "retry_in", wait)
		if !sleep(ctx, wait) {
			return
		}
	}
}

// drain sends the held retry event, then events from the buffer, until a
// transient send error occurs or ctx is cancelled. The backoff is reset
// after each delivery.
func (r *Reporter) drain(ctx context.Context, conn *grpc.ClientConn, bo *backoff) error {
	client := eventrpc.NewEventServiceClient(conn)

	for {
		ev, ok := r.next(ctx)
		if !ok {
			return nil
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		ack, err := client.SendEvent(sendCtx, &ev)
		cancel()

		if err != nil {
			if isPermanentError(err) {
				slog.Error("reporter: permanent send error, discarding event",
					"device", ev.Device, "err", err)
				continue
			}
			r.hold(ev)
			return fmt.Errorf("send: %w", err)
		}

		bo.reset()
		slog.Debug("reporter: event delivered",
			"device", ack.Device, "status", ack.Status, "event_id", ack.EventID)
	}
}

// next returns the held retry event if there is one, otherwise blocks on the
// buffer. ok is false once ctx is cancelled.
func (r *Reporter) next(ctx context.Context) (types.Event, bool) {
	if r.retry != nil {
		ev := *r.retry
		r.retry = nil
		r.retrying.Store(false)
		return ev, true
	}
	select {
	case <-ctx.Done():
		return types.Event{}, false
	case ev := <-r.buf:
		return ev, true
	}
}

func (r *Reporter) hold(ev types.Event) {
	r.retry = &ev
	r.retrying.Store(true)
}

// isPermanentError returns true for gRPC errors that indicate the event
// itself is unacceptable and should not be retried.
func isPermanentError(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

// defaultDial opens a plaintext gRPC connection to endpoint. The connection
// is established lazily on the first call.
func defaultDial(ctx context.Context, endpoint string) (*grpc.ClientConn, error) {
	return grpc.DialContext(ctx, endpoint, //nolint:staticcheck
		grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// sleep waits for d or until ctx is done. It reports whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration with ±25% jitter and advances
// the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
