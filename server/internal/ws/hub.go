package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iotcloud/iotcloud/server/internal/api"
	"github.com/iotcloud/iotcloud/server/internal/store"
)

// Event names carried in Message.Event.
const (
	// EventDevices carries the full api.DeviceListResponse. Sent on connect
	// and every interval, which is how online→offline transitions surface.
	EventDevices = "devices"

	// EventDevice carries one api.StatusResponse, pushed as soon as the
	// device reports.
	EventDevice = "device"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10 // must be less than pongWait
	outboxSize   = 32
	maxReadBytes = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Dashboards are served from anywhere; restrict origins at the proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope of every frame sent to a dashboard.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub streams device state to WebSocket dashboards. Run owns the set of
// connected clients; ServeHTTP hands connections to it over channels, so
// only the Run goroutine ever writes to or closes a client's outbox.
type Hub struct {
	store    *store.Store
	interval time.Duration

	join  chan *client
	leave chan *client
	done  chan struct{} // closed when Run returns

	connected atomic.Int64
}

// client is one dashboard connection.
type client struct {
	conn   *websocket.Conn
	outbox chan []byte
}

// New creates a Hub that reads from st and resends the full device list
// every interval.
func New(st *store.Store, interval time.Duration) *Hub {
	return &Hub{
		store:    st,
		interval: interval,
		join:     make(chan *client),
		leave:    make(chan *client),
		done:     make(chan struct{}),
	}
}

// Run subscribes to store writes and serves clients until ctx is cancelled,
// then closes every connection. Run must be called exactly once.
func (h *Hub) Run(ctx context.Context) {
	updates := h.store.Subscribe()
	defer h.store.Unsubscribe(updates)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	clients := make(map[*client]struct{})
	defer func() {
		for c := range clients {
			close(c.outbox)
		}
		h.connected.Store(0)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.join:
			clients[c] = struct{}{}
			h.send(clients, c, h.encode(EventDevices, api.BuildDeviceList(h.store)))

		case c := <-h.leave:
			h.drop(clients, c)

		case rec := <-updates:
			// The record is a change hint; re-read for the current state.
			l := h.store.LookupStatus(rec.DeviceID)
			h.broadcast(clients, h.encode(EventDevice, api.NewStatusResponse(l)))

		case <-ticker.C:
			h.broadcast(clients, h.encode(EventDevices, api.BuildDeviceList(h.store)))
		}
		h.connected.Store(int64(len(clients)))
	}
}

// ServeHTTP upgrades the request and serves the dashboard until either side
// closes the connection or the hub stops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}
	c := &client{conn: conn, outbox: make(chan []byte, outboxSize)}

	select {
	case h.join <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writeLoop()
	c.readLoop()

	select {
	case h.leave <- c:
	case <-h.done:
	}
}

// Count returns the number of connected dashboards.
func (h *Hub) Count() int {
	return int(h.connected.Load())
}

func (h *Hub) encode(event string, data any) []byte {
	b, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		slog.Error("ws: encode message failed", "event", event, "err", err)
		return nil
	}
	return b
}

func (h *Hub) broadcast(clients map[*client]struct{}, msg []byte) {
	for c := range clients {
		h.send(clients, c, msg)
	}
}

// send queues msg for c, dropping the client if its outbox is full.
func (h *Hub) send(clients map[*client]struct{}, c *client, msg []byte) {
	if msg == nil {
		return
	}
	select {
	case c.outbox <- msg:
	default:
		slog.Debug("ws: dropping slow client", "remote", c.conn.RemoteAddr().String())
		h.drop(clients, c)
	}
}

func (h *Hub) drop(clients map[*client]struct{}, c *client) {
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.outbox)
}

// writeLoop forwards the outbox to the connection and keeps it alive with
// pings. A closed outbox ends the connection with a close frame.
func (c *client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind int
			data []byte
		)
		select {
		case msg, ok := <-c.outbox:
			if !ok {
				kind = websocket.CloseMessage
			} else {
				kind, data = websocket.TextMessage, msg
			}
		case <-ping.C:
			kind = websocket.PingMessage
		}

		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(kind, data); err != nil || kind == websocket.CloseMessage {
			return
		}
	}
}

// readLoop discards inbound frames; it exists to process pong and close
// control frames and to notice disconnects. It returns when the connection
// fails.
func (c *client) readLoop() {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxReadBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}
