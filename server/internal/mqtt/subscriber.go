package mqtt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/iotcloud/iotcloud/pkg/types"
	"github.com/iotcloud/iotcloud/server/internal/metrics"
	"github.com/iotcloud/iotcloud/server/internal/store"
)

const (
	connectTimeout = 10 * time.Second
	disconnectWait = 250 // milliseconds
)

// Config holds the broker connection and subscription settings.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Username string
	Password string
}

// Subscriber records device status reports published to an MQTT topic.
type Subscriber struct {
	cfg     Config
	store   *store.Store
	metrics *metrics.Registry
}

// New creates a Subscriber that writes into st and counts events in reg.
func New(cfg Config, st *store.Store, reg *metrics.Registry) *Subscriber {
	return &Subscriber{cfg: cfg, store: st, metrics: reg}
}

// Run connects to the broker, subscribes on every (re)connect and blocks
// until ctx is cancelled. It returns an error only if the first connection
// attempt fails.
func (s *Subscriber) Run(ctx context.Context) error {
	opts := paho.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	opts.SetUsername(s.cfg.Username)
	opts.SetPassword(s.cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		slog.Warn("mqtt: connection lost", "broker", s.cfg.Broker, "err", err)
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt: connect %s: timed out after %s", s.cfg.Broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connect %s: %w", s.cfg.Broker, err)
	}

	<-ctx.Done()
	client.Disconnect(disconnectWait)
	slog.Info("mqtt: disconnected", "broker", s.cfg.Broker)
	return nil
}

// onConnect (re)establishes the subscription; the session is not persistent.
func (s *Subscriber) onConnect(c paho.Client) {
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.HandleMessage)
	if !token.WaitTimeout(connectTimeout) {
		slog.Error("mqtt: subscribe timed out", "topic", s.cfg.Topic)
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("mqtt: subscribe failed", "topic", s.cfg.Topic, "err", err)
		return
	}
	slog.Info("mqtt: subscribed", "broker", s.cfg.Broker, "topic", s.cfg.Topic, "qos", s.cfg.QoS)
}

// HandleMessage records one status report. It is the paho message handler
// for the configured topic.
func (s *Subscriber) HandleMessage(_ paho.Client, msg paho.Message) {
	ev, err := Decode(s.cfg.Topic, msg.Topic(), msg.Payload())
	if err != nil {
		slog.Warn("mqtt: dropping message", "topic", msg.Topic(), "err", err)
		return
	}
	rec := s.store.RecordStatus(ev.Device, ev.Status)
	s.metrics.IncEvent(metrics.TransportMQTT)
	slog.Debug("mqtt: status recorded", "device", rec.DeviceID, "status", rec.Status)
}

// Decode builds an Event from a message published on topic. A payload that
// looks like a JSON object is parsed as one; anything else is taken as the
// raw status text. The device id comes from the topic unless the JSON
// object names one.
func Decode(filter, topic string, payload []byte) (types.Event, error) {
	payload = bytes.TrimSpace(payload)
	ev := types.Event{Device: DeviceFromTopic(filter, topic)}

	if len(payload) > 0 && payload[0] == '{' {
		parsed, err := types.ParseEvent(payload)
		if err != nil {
			return types.Event{}, err
		}
		if types.HasField(payload, "device") {
			ev.Device = parsed.Device
		}
		ev.Status = parsed.Status
		return ev, nil
	}

	ev.Status = string(payload)
	return ev, nil
}

// DeviceFromTopic returns the topic level matched by the first single-level
// wildcard in filter, or "" when filter has none or topic does not line up.
func DeviceFromTopic(filter, topic string) string {
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, f := range fl {
		if f == "#" || i >= len(tl) {
			return ""
		}
		if f == "+" {
			return tl[i]
		}
	}
	return ""
}
