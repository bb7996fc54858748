package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ParseEvent decodes a JSON event object permissively. An empty or null
// payload yields an empty Event. Missing or null fields stay empty, numbers
// and booleans are stringified, nested values are re-encoded as JSON text.
// Anything that is not a JSON object is an error.
func ParseEvent(data []byte) (Event, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Event{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Event{}, fmt.Errorf("decode event: trailing data after object")
	}
	return Event{
		Device: stringField(m, "device"),
		Status: stringField(m, "status"),
	}, nil
}

// UnmarshalJSON decodes e with the same coercion rules as ParseEvent, so
// every transport that decodes an Event accepts the same payloads.
func (e *Event) UnmarshalJSON(data []byte) error {
	ev, err := ParseEvent(data)
	if err != nil {
		return err
	}
	*e = ev
	return nil
}

// HasField reports whether data is a JSON object carrying a non-null key.
func HasField(data []byte, key string) bool {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return false
	}
	return m[key] != nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
