// Package ws implements the WebSocket device stream for iotcloud-server.
//
// Hub subscribes to the store and pushes a "device" message the moment a
// device reports. Online→offline transitions produce no store write, so the
// hub also resends the full list, with online recomputed at send time, on a
// fixed interval.
//
// Message formats:
//
//	{"event": "devices", "data": { /* GET /api/v1/devices */ }}
//	{"event": "device",  "data": { /* GET /api/v1/status/{device} */ }}
//
// A new connection first receives "devices". The stream is mounted at
// /ws/devices by the server binary, outside the request-logging middleware
// so the connection can be hijacked.
package ws
