package types

// Event is a status report pushed by a device. Both fields are optional on
// the wire; the server substitutes sentinels for missing values.
type Event struct {
	Device string `json:"device,omitempty"`
	Status string `json:"status,omitempty"`
}

// Ack acknowledges an accepted event, echoing the normalized fields.
type Ack struct {
	Message string `json:"message"`
	EventID string `json:"event_id,omitempty"`
	Device  string `json:"device"`
	Status  string `json:"status"`
}
