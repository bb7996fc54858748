// Package mqtt ingests device status reports published to an MQTT broker.
//
// Devices publish to a topic such as devices/esp32-1/status. The payload is
// either a JSON object {"device": ..., "status": ...} or the bare status text.
// Every accepted message goes through the same store.RecordStatus path as
// HTTP and gRPC submissions.
package mqtt
