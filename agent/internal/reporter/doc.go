// Package reporter sends device status events to iotcloud-server over gRPC
// (iotcloud.v1.EventService/SendEvent).
//
// Reporter.Report is non-blocking: events go into an in-memory channel
// (default capacity 100). When the buffer is full the oldest entry is evicted
// so the latest status of every device is preserved.
//
// Reporter.Run drains the buffer, reconnecting with truncated exponential
// backoff (1s→60s, ±25% jitter) on connection or send errors. Permanent gRPC
// errors (InvalidArgument, Unauthenticated, PermissionDenied) discard the
// event instead of retrying it. An event whose send failed transiently is
// held and resent before anything queued after it, so the server never sees
// an older status for a device after a newer one.
package reporter
