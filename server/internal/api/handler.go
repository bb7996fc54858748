package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iotcloud/iotcloud/pkg/types"
	"github.com/iotcloud/iotcloud/server/internal/metrics"
	"github.com/iotcloud/iotcloud/server/internal/store"
)

// maxEventBytes caps the size of an ingested event body.
const maxEventBytes = 64 << 10

// Handler is the HTTP gateway in front of the device store.
// It holds no state of its own.
type Handler struct {
	store   *store.Store
	metrics *metrics.Registry
	mux     *http.ServeMux
	newID   func() string
}

// New creates a Handler wired to st and registers all routes. reg may be nil.
// The returned handler logs every request and tags it with an X-Request-ID.
func New(st *store.Store, reg *metrics.Registry) http.Handler {
	h := &Handler{
		store:   st,
		metrics: reg,
		mux:     http.NewServeMux(),
		newID:   uuid.NewString,
	}

	h.mux.HandleFunc("/", h.root)
	h.mux.HandleFunc("/event", h.receiveEvent)
	h.mux.HandleFunc("/status/", h.getStatus) // subtree, extracts {device}
	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/devices", h.listDevices)
	h.mux.Handle("/metrics", metrics.Handler(reg, st))

	return logRequests(h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// root serves GET / as the service health check; any other unmatched path is 404.
func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}
	h.health(w, r)
}

// health returns a constant payload; it never touches the store.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Message: "iotcloud api up and receiving events",
	})
}

// receiveEvent handles POST /event from reporting devices.
func (h *Handler) receiveEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes+1))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "read body failed")
		return
	}
	if len(body) > maxEventBytes {
		jsonErr(w, http.StatusRequestEntityTooLarge, "event payload too large")
		return
	}

	ev, err := types.ParseEvent(body)
	if err != nil {
		slog.Debug("api: rejected event payload", "err", err)
		jsonErr(w, http.StatusBadRequest, "event payload must be a JSON object")
		return
	}

	rec := h.store.RecordStatus(ev.Device, ev.Status)
	h.metrics.IncEvent(metrics.TransportHTTP)

	slog.Debug("api: event recorded", "device", rec.DeviceID, "status", rec.Status)

	jsonResp(w, http.StatusOK, types.Ack{
		Message: "event received",
		EventID: h.newID(),
		Device:  rec.DeviceID,
		Status:  rec.Status,
	})
}

// getStatus handles GET /status/{device}. Unknown devices are a successful
// response with status "unknown" and online=false.
func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/status/")
	if id == "" {
		jsonErr(w, http.StatusNotFound, "device id required")
		return
	}

	l := h.store.LookupStatus(id)
	h.metrics.IncLookup(l.Known)
	jsonResp(w, http.StatusOK, NewStatusResponse(l))
}

// listDevices handles GET /api/v1/devices.
func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildDeviceList(h.store))
}

// BuildDeviceList renders every known device with its current liveness.
// Shared with the WebSocket hub so both surfaces use one schema.
func BuildDeviceList(st *store.Store) DeviceListResponse {
	list := st.List()
	resp := DeviceListResponse{
		Devices:     make([]StatusResponse, 0, len(list)),
		KnownCount:  len(list),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, l := range list {
		if l.Online {
			resp.OnlineCount++
		}
		resp.Devices = append(resp.Devices, NewStatusResponse(l))
	}
	return resp
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// NewStatusResponse maps a store.Liveness to its JSON representation.
// last_update is omitted for devices that never reported.
func NewStatusResponse(l store.Liveness) StatusResponse {
	resp := StatusResponse{
		Device: l.DeviceID,
		Status: l.Status,
		Online: l.Online,
	}
	if l.Known {
		resp.LastUpdate = l.LastUpdate.UTC().Format(time.RFC3339Nano)
	}
	return resp
}
