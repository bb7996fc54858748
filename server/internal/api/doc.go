// Package api implements the HTTP gateway for iotcloud-server.
//
// New(store, metrics) returns an http.Handler that serves:
//
//	POST /event             device status report {device?, status?}; ack echoes normalized fields
//	GET  /status/{device}   {device, status, online, last_update?}; always 200
//	GET  /                  service health, independent of the store
//	GET  /api/v1/health     same payload as GET /
//	GET  /api/v1/devices    every known device with liveness + counts
//	GET  /metrics           Prometheus text exposition
//
// Ingestion is permissive: a missing device id becomes "unknown" and a missing
// status becomes "no_status". Only bodies that are not a JSON object are
// rejected (400). Wrong verbs return 405 with a JSON error body.
//
// Every response carries X-Request-ID (echoed from the request or generated).
package api
