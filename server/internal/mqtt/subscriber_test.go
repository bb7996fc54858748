package mqtt

import (
	"testing"
	"time"

	"github.com/iotcloud/iotcloud/server/internal/metrics"
	"github.com/iotcloud/iotcloud/server/internal/store"
)

const testTopic = "devices/+/status"

// fakeMessage implements paho.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func newSubscriber() (*Subscriber, *store.Store, *metrics.Registry) {
	st := store.New(15 * time.Second)
	reg := metrics.New()
	return New(Config{Topic: testTopic}, st, reg), st, reg
}

func TestDeviceFromTopic(t *testing.T) {
	cases := []struct {
		filter, topic, want string
	}{
		{"devices/+/status", "devices/esp32-1/status", "esp32-1"},
		{"+/state", "esp32-2/state", "esp32-2"},
		{"devices/status", "devices/status", ""},
		{"devices/#", "devices/esp32-1/status", ""},
		{"a/b/+", "a/b", ""},
	}
	for _, tc := range cases {
		if got := DeviceFromTopic(tc.filter, tc.topic); got != tc.want {
			t.Errorf("DeviceFromTopic(%q, %q): got %q, want %q", tc.filter, tc.topic, got, tc.want)
		}
	}
}

func TestDecode(t *testing.T) {
	cases := []struct {
		name       string
		payload    string
		wantDevice string
		wantStatus string
	}{
		{"raw text", "on", "esp32-1", "on"},
		{"raw text trimmed", "  off\n", "esp32-1", "off"},
		{"empty", "", "esp32-1", ""},
		{"json status only", `{"status":"on"}`, "esp32-1", "on"},
		{"json names device", `{"device":"other","status":"on"}`, "other", "on"},
		{"json null device", `{"device":null,"status":"on"}`, "esp32-1", "on"},
		{"json number status", `{"status":1}`, "esp32-1", "1"},
		{"json array is text", `["on"]`, "esp32-1", `["on"]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Decode(testTopic, "devices/esp32-1/status", []byte(tc.payload))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if ev.Device != tc.wantDevice || ev.Status != tc.wantStatus {
				t.Errorf("got %+v, want device=%q status=%q", ev, tc.wantDevice, tc.wantStatus)
			}
		})
	}
}

func TestDecode_MalformedJSON(t *testing.T) {
	if _, err := Decode(testTopic, "devices/x/status", []byte(`{"status":`)); err == nil {
		t.Fatal("expected error for malformed JSON object, got nil")
	}
}

func TestHandleMessage_RecordsStatus(t *testing.T) {
	s, st, reg := newSubscriber()

	s.HandleMessage(nil, fakeMessage{topic: "devices/esp32-1/status", payload: []byte("on")})

	l := st.LookupStatus("esp32-1")
	if !l.Known || !l.Online || l.Status != "on" {
		t.Errorf("LookupStatus: got %+v, want known/online/on", l)
	}
	if n := reg.Events(metrics.TransportMQTT); n != 1 {
		t.Errorf("mqtt events counter: got %d, want 1", n)
	}
}

func TestHandleMessage_EmptyPayloadNoStatus(t *testing.T) {
	s, st, _ := newSubscriber()

	s.HandleMessage(nil, fakeMessage{topic: "devices/esp32-1/status"})

	if l := st.LookupStatus("esp32-1"); l.Status != store.NoStatus {
		t.Errorf("Status: got %q, want %q", l.Status, store.NoStatus)
	}
}

func TestHandleMessage_TopicWithoutWildcardMatch(t *testing.T) {
	st := store.New(15 * time.Second)
	s := New(Config{Topic: "devices/status"}, st, metrics.New())

	s.HandleMessage(nil, fakeMessage{topic: "devices/status", payload: []byte("on")})

	if l := st.LookupStatus(store.UnknownDevice); !l.Known || l.Status != "on" {
		t.Errorf("LookupStatus(%q): got %+v", store.UnknownDevice, l)
	}
}

func TestHandleMessage_MalformedDropped(t *testing.T) {
	s, st, reg := newSubscriber()

	s.HandleMessage(nil, fakeMessage{topic: "devices/esp32-1/status", payload: []byte(`{"status":`)})

	if known, _ := st.Counts(); known != 0 {
		t.Errorf("store should be untouched, got %d devices", known)
	}
	if n := reg.Events(metrics.TransportMQTT); n != 0 {
		t.Errorf("mqtt events counter: got %d, want 0", n)
	}
}
