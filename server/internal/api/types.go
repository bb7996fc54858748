package api

// StatusResponse is the payload for GET /status/{device}.
// LastUpdate is omitted for devices that have never reported.
type StatusResponse struct {
	Device     string `json:"device"`
	Status     string `json:"status"`
	Online     bool   `json:"online"`
	LastUpdate string `json:"last_update,omitempty"` // RFC3339Nano, UTC
}

// DeviceListResponse is the payload for GET /api/v1/devices and the data
// field of every WebSocket broadcast.
type DeviceListResponse struct {
	Devices     []StatusResponse `json:"devices"`
	KnownCount  int              `json:"known_count"`
	OnlineCount int              `json:"online_count"`
	GeneratedAt string           `json:"generated_at"` // RFC3339
}

// HealthResponse is the payload for GET / and GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
