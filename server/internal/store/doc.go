// Package store is the device liveness registry. It keeps the latest
// status report per device id behind a RWMutex and derives online/offline on
// every read from the report's timestamp and a staleness threshold.
//
// A device is online iff now - LastUpdate < threshold. Nothing is cached and
// nothing is evicted: a silent device keeps its last status and reads back
// as offline.
//
// Subscribe hands out a best-effort feed of written records for push
// consumers such as the WebSocket stream. It never blocks RecordStatus.
package store
