package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iotcloud/iotcloud/server/internal/api"
	"github.com/iotcloud/iotcloud/server/internal/metrics"
	"github.com/iotcloud/iotcloud/server/internal/store"
)

// --- test helpers -----------------------------------------------------------

func newHandler(threshold time.Duration) (http.Handler, *store.Store, *metrics.Registry) {
	st := store.New(threshold)
	reg := metrics.New()
	return api.New(st, reg), st, reg
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- POST /event ------------------------------------------------------------

func TestEvent_Acknowledges(t *testing.T) {
	h, st, reg := newHandler(15 * time.Second)
	rr := post(t, h, "/event", `{"device":"esp32-1","status":"on"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)

	if resp["device"] != "esp32-1" {
		t.Errorf("device: got %v, want esp32-1", resp["device"])
	}
	if resp["status"] != "on" {
		t.Errorf("status: got %v, want on", resp["status"])
	}
	if resp["message"] != "event received" {
		t.Errorf("message: got %v, want event received", resp["message"])
	}
	if id, _ := resp["event_id"].(string); id == "" {
		t.Error("event_id: expected non-empty")
	}
	if l := st.LookupStatus("esp32-1"); l.Status != "on" {
		t.Errorf("store status: got %q, want on", l.Status)
	}
	if n := reg.Events(metrics.TransportHTTP); n != 1 {
		t.Errorf("http events counter: got %d, want 1", n)
	}
}

func TestEvent_DefaultsMissingFields(t *testing.T) {
	h, st, _ := newHandler(15 * time.Second)

	for _, body := range []string{`{}`, ``, `{"device":null}`} {
		rr := post(t, h, "/event", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("body %q: status got %d, want 200", body, rr.Code)
		}
		var resp map[string]interface{}
		decode(t, rr, &resp)
		if resp["device"] != store.UnknownDevice {
			t.Errorf("body %q: device got %v, want %s", body, resp["device"], store.UnknownDevice)
		}
		if resp["status"] != store.NoStatus {
			t.Errorf("body %q: status got %v, want %s", body, resp["status"], store.NoStatus)
		}
	}

	if l := st.LookupStatus(store.UnknownDevice); !l.Known {
		t.Error("defaulted device id should be recorded")
	}
}

func TestEvent_StatusOnlyDefaultsDevice(t *testing.T) {
	h, _, _ := newHandler(15 * time.Second)
	rr := post(t, h, "/event", `{"status":"on"}`)

	var resp map[string]interface{}
	decode(t, rr, &resp)
	if resp["device"] != store.UnknownDevice || resp["status"] != "on" {
		t.Errorf("ack: got %v", resp)
	}
}

func TestEvent_MalformedBody(t *testing.T) {
	h, st, _ := newHandler(15 * time.Second)

	for _, body := range []string{`{"device":`, `["esp32-1"]`, `"on"`} {
		rr := post(t, h, "/event", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: status got %d, want 400", body, rr.Code)
		}
	}
	if known, _ := st.Counts(); known != 0 {
		t.Errorf("store should be untouched, got %d devices", known)
	}
}

func TestEvent_MethodNotAllowed(t *testing.T) {
	h, _, _ := newHandler(15 * time.Second)
	rr := get(t, h, "/event")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- GET /status/{device} ---------------------------------------------------

func TestStatus_UnknownDevice(t *testing.T) {
	h, _, _ := newHandler(15 * time.Second)
	rr := get(t, h, "/status/esp32-2")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)

	if resp["device"] != "esp32-2" {
		t.Errorf("device: got %v, want esp32-2", resp["device"])
	}
	if resp["status"] != "unknown" {
		t.Errorf("status: got %v, want unknown", resp["status"])
	}
	if resp["online"] != false {
		t.Errorf("online: got %v, want false", resp["online"])
	}
	if _, ok := resp["last_update"]; ok {
		t.Errorf("last_update: should be absent for unknown device, got %v", resp["last_update"])
	}
}

func TestStatus_KnownDevice(t *testing.T) {
	h, _, _ := newHandler(15 * time.Second)
	post(t, h, "/event", `{"device":"esp32-1","status":"on"}`)

	rr := get(t, h, "/status/esp32-1")
	var resp map[string]interface{}
	decode(t, rr, &resp)

	if resp["status"] != "on" {
		t.Errorf("status: got %v, want on", resp["status"])
	}
	if resp["online"] != true {
		t.Errorf("online: got %v, want true", resp["online"])
	}
	ts, _ := resp["last_update"].(string)
	if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
		t.Errorf("last_update %q: not RFC3339Nano: %v", ts, err)
	}
}

// Submit, query while fresh, wait past the threshold, query again, then query
// a device that never reported.
func TestStatus_GoesOfflineAfterThreshold(t *testing.T) {
	h, _, _ := newHandler(50 * time.Millisecond)
	post(t, h, "/event", `{"device":"esp32-1","status":"on"}`)

	var fresh map[string]interface{}
	decode(t, get(t, h, "/status/esp32-1"), &fresh)
	if fresh["online"] != true || fresh["status"] != "on" {
		t.Fatalf("fresh: got %v, want on/online", fresh)
	}

	time.Sleep(80 * time.Millisecond)

	var stale map[string]interface{}
	decode(t, get(t, h, "/status/esp32-1"), &stale)
	if stale["online"] != false {
		t.Errorf("stale online: got %v, want false", stale["online"])
	}
	if stale["status"] != "on" {
		t.Errorf("stale status: got %v, want on", stale["status"])
	}

	var never map[string]interface{}
	decode(t, get(t, h, "/status/esp32-2"), &never)
	if never["status"] != "unknown" || never["online"] != false {
		t.Errorf("never-seen: got %v", never)
	}
}

func TestStatus_EmptyID(t *testing.T) {
	h, _, _ := newHandler(15 * time.Second)
	if rr := get(t, h, "/status/"); rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestStatus_MethodNotAllowed(t *testing.T) {
	h, _, _ := newHandler(15 * time.Second)
	rr := post(t, h, "/status/esp32-1", `{}`)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- GET / ------------------------------------------------------------------

func TestHealth(t *testing.T) {
	h, _, _ := newHandler(15 * time.Second)
	for _, path := range []string{"/", "/api/v1/health"} {
		rr := get(t, h, path)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status got %d, want 200", path, rr.Code)
		}
		var resp map[string]interface{}
		decode(t, rr, &resp)
		if resp["status"] != "ok" {
			t.Errorf("%s: status got %v, want ok", path, resp["status"])
		}
	}
}

func TestUnknownPath_NotFound(t *testing.T) {
	h, _, _ := newHandler(15 * time.Second)
	if rr := get(t, h, "/nope"); rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

// --- GET /api/v1/devices ----------------------------------------------------

func TestListDevices(t *testing.T) {
	h, _, _ := newHandler(15 * time.Second)
	post(t, h, "/event", `{"device":"b","status":"off"}`)
	post(t, h, "/event", `{"device":"a","status":"on"}`)

	rr := get(t, h, "/api/v1/devices")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.DeviceListResponse
	decode(t, rr, &resp)

	if resp.KnownCount != 2 || resp.OnlineCount != 2 {
		t.Errorf("counts: got known=%d online=%d, want 2/2", resp.KnownCount, resp.OnlineCount)
	}
	if len(resp.Devices) != 2 || resp.Devices[0].Device != "a" {
		t.Errorf("devices: got %+v, want sorted a, b", resp.Devices)
	}
	if resp.GeneratedAt == "" {
		t.Error("generated_at: expected non-empty")
	}
}

func TestListDevices_Empty(t *testing.T) {
	h, _, _ := newHandler(15 * time.Second)
	rr := get(t, h, "/api/v1/devices")

	var resp map[string]interface{}
	decode(t, rr, &resp)
	devs, ok := resp["devices"].([]interface{})
	if !ok || len(devs) != 0 {
		t.Errorf("devices: got %v, want empty array", resp["devices"])
	}
}

// --- middleware & metrics ---------------------------------------------------

func TestRequestID_EchoedOrGenerated(t *testing.T) {
	h, _, _ := newHandler(15 * time.Second)

	rr := get(t, h, "/")
	if rr.Header().Get(api.RequestIDHeader) == "" {
		t.Error("expected generated X-Request-ID")
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(api.RequestIDHeader, "abc-123")
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get(api.RequestIDHeader); got != "abc-123" {
		t.Errorf("X-Request-ID: got %q, want abc-123", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, _ := newHandler(15 * time.Second)
	post(t, h, "/event", `{"device":"esp32-1","status":"on"}`)
	get(t, h, "/status/esp32-1")

	rr := get(t, h, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`iotcloud_events_received_total{transport="http"} 1`,
		`iotcloud_status_lookups_total{result="known"} 1`,
		`iotcloud_devices_online 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics body missing %q\n%s", want, body)
		}
	}
}
