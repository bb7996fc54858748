package store

import (
	"sort"
	"sync"
	"time"
)

// Sentinel values substituted for absent or empty fields.
const (
	UnknownDevice = "unknown"
	NoStatus      = "no_status"

	// UnknownStatus is reported for device ids that have never sent an event.
	UnknownStatus = "unknown"
)

// DefaultThreshold is the staleness threshold used when none is configured.
const DefaultThreshold = 15 * time.Second

// subscriberBuffer is the channel depth handed out by Subscribe.
const subscriberBuffer = 64

// Record is the latest accepted event for one device.
type Record struct {
	DeviceID   string
	Status     string
	LastUpdate time.Time
}

// Liveness is the result of a status lookup. Online is derived from
// LastUpdate at lookup time and is never stored.
type Liveness struct {
	DeviceID   string
	Status     string
	Online     bool
	Known      bool
	LastUpdate time.Time // zero when !Known
}

// Store is a thread-safe in-memory device registry keyed by device id.
// Records are overwritten on every event and never evicted; a device that
// stops reporting is reported offline, not removed.
type Store struct {
	mu        sync.RWMutex
	data      map[string]Record
	threshold time.Duration
	now       func() time.Time // injectable for deterministic tests

	subMu sync.RWMutex
	subs  map[chan Record]struct{}
}

// New creates a Store with the given staleness threshold.
// A non-positive threshold falls back to DefaultThreshold.
func New(threshold time.Duration) *Store {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Store{
		data:      make(map[string]Record),
		threshold: threshold,
		now:       time.Now,
		subs:      make(map[chan Record]struct{}),
	}
}

// Normalize applies the ingestion defaults: an empty device id becomes
// UnknownDevice and an empty status becomes NoStatus.
func Normalize(deviceID, status string) (string, string) {
	if deviceID == "" {
		deviceID = UnknownDevice
	}
	if status == "" {
		status = NoStatus
	}
	return deviceID, status
}

// RecordStatus upserts the record for deviceID with the current time.
// It never fails; empty inputs are normalized. The stored record is returned
// so transports can acknowledge what was accepted.
func (s *Store) RecordStatus(deviceID, status string) Record {
	deviceID, status = Normalize(deviceID, status)

	s.mu.Lock()
	// The timestamp is taken under the lock so write order and LastUpdate agree.
	rec := Record{DeviceID: deviceID, Status: status, LastUpdate: s.now()}
	s.data[deviceID] = rec
	s.mu.Unlock()

	s.notify(rec)
	return rec
}

// Subscribe returns a channel that receives every record written after the
// call. Delivery is best effort: when the channel is full the record is
// dropped for that subscriber, so readers must treat it as a change hint and
// re-read the store for authoritative state.
//
// Callers must Unsubscribe when done.
func (s *Store) Subscribe() <-chan Record {
	ch := make(chan Record, subscriberBuffer)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe. Unknown or
// already removed channels are ignored.
func (s *Store) Unsubscribe(ch <-chan Record) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for c := range s.subs {
		if c == ch {
			delete(s.subs, c)
			close(c)
			return
		}
	}
}

// notify fans rec out to subscribers without blocking the write path.
func (s *Store) notify(rec Record) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for ch := range s.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}

// LookupStatus returns the liveness of deviceID. Unknown ids yield a result
// with Known=false, Status=UnknownStatus and Online=false.
func (s *Store) LookupStatus(deviceID string) Liveness {
	s.mu.RLock()
	rec, ok := s.data[deviceID]
	threshold := s.threshold
	now := s.now()
	s.mu.RUnlock()

	if !ok {
		return Liveness{DeviceID: deviceID, Status: UnknownStatus}
	}
	return evaluate(rec, now, threshold)
}

// List returns the liveness of every known device, evaluated against a single
// clock reading and sorted by device id.
func (s *Store) List() []Liveness {
	s.mu.RLock()
	now := s.now()
	out := make([]Liveness, 0, len(s.data))
	for _, rec := range s.data {
		out = append(out, evaluate(rec, now, s.threshold))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Counts returns the number of known devices and how many of them are online.
func (s *Store) Counts() (known, online int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	for _, rec := range s.data {
		if isOnline(rec.LastUpdate, now, s.threshold) {
			online++
		}
	}
	return len(s.data), online
}

// Threshold returns the current staleness threshold.
func (s *Store) Threshold() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// SetThreshold replaces the staleness threshold. Non-positive values are ignored.
func (s *Store) SetThreshold(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.threshold = d
	s.mu.Unlock()
}

func evaluate(rec Record, now time.Time, threshold time.Duration) Liveness {
	return Liveness{
		DeviceID:   rec.DeviceID,
		Status:     rec.Status,
		Known:      true,
		Online:     isOnline(rec.LastUpdate, now, threshold),
		LastUpdate: rec.LastUpdate,
	}
}

// isOnline is strict: a delta exactly equal to the threshold is offline.
func isOnline(last, now time.Time, threshold time.Duration) bool {
	return now.Sub(last) < threshold
}
