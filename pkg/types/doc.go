// Package types defines the event payloads shared by the agent and the
// server. The same structs are used for the HTTP body, the gRPC JSON codec
// and MQTT JSON payloads.
package types
