package metrics

import (
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Transport labels for iotcloud_events_received_total.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
	TransportMQTT = "mqtt"
)

const namespace = "iotcloud"

// DeviceSource is the read-only view of the store needed for gauges.
type DeviceSource interface {
	Counts() (known, online int)
	Threshold() time.Duration
}

// Registry holds the process counters. A nil *Registry is valid and
// discards every increment, so transports can run without metrics.
type Registry struct {
	mu      sync.Mutex
	events  map[string]uint64 // by transport
	lookups map[string]uint64 // "known" | "unknown"
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		events:  make(map[string]uint64),
		lookups: make(map[string]uint64),
	}
}

// IncEvent counts one accepted event on the given transport.
func (r *Registry) IncEvent(transport string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events[transport]++
	r.mu.Unlock()
}

// IncLookup counts one status lookup.
func (r *Registry) IncLookup(known bool) {
	if r == nil {
		return
	}
	result := "unknown"
	if known {
		result = "known"
	}
	r.mu.Lock()
	r.lookups[result]++
	r.mu.Unlock()
}

// Events returns the event count for transport.
func (r *Registry) Events(transport string) uint64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[transport]
}

// Gather builds all metric families. src may be nil, in which case the
// store gauges are omitted.
func (r *Registry) Gather(src DeviceSource) []*dto.MetricFamily {
	var out []*dto.MetricFamily

	if r != nil {
		r.mu.Lock()
		// The text encoder rejects families without series.
		if len(r.events) > 0 {
			out = append(out, counterFamily(namespace+"_events_received_total",
				"Status events accepted, by ingest transport.", "transport", r.events))
		}
		if len(r.lookups) > 0 {
			out = append(out, counterFamily(namespace+"_status_lookups_total",
				"Status lookups served, by whether the device was known.", "result", r.lookups))
		}
		r.mu.Unlock()
	}

	if src != nil {
		known, online := src.Counts()
		out = append(out,
			gaugeFamily(namespace+"_devices_known", "Devices that have reported at least once.", float64(known)),
			gaugeFamily(namespace+"_devices_online", "Devices whose last report is within the staleness threshold.", float64(online)),
			gaugeFamily(namespace+"_staleness_threshold_seconds", "Current staleness threshold.", src.Threshold().Seconds()),
		)
	}
	return out
}

// Handler serves GET /metrics in the Prometheus text exposition format.
func Handler(r *Registry, src DeviceSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		format := expfmt.NewFormat(expfmt.TypeTextPlain)
		w.Header().Set("Content-Type", string(format))

		enc := expfmt.NewEncoder(w, format)
		for _, mf := range r.Gather(src) {
			if err := enc.Encode(mf); err != nil {
				slog.Warn("metrics: encode failed", "family", mf.GetName(), "err", err)
				return
			}
		}
	})
}

// counterFamily renders one labelled counter series per key, sorted by label value.
func counterFamily(name, help, label string, values map[string]uint64) *dto.MetricFamily {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mf := &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, k := range keys {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{{Name: proto.String(label), Value: proto.String(k)}},
			Counter: &dto.Counter{Value: proto.Float64(float64(values[k]))},
		})
	}
	return mf
}

func gaugeFamily(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}
