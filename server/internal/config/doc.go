// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - Host                         bind address (default 0.0.0.0)
//   - HTTPPort                     HTTP gateway + WebSocket stream (default 8080)
//   - GRPCPort                     gRPC event receiver (default 50051, 0 disables)
//   - Liveness.StalenessThreshold  online window after the last report (default 15s)
//   - Stream.Interval              WebSocket broadcast period (default 5s)
//   - MQTT.*                       optional MQTT ingest subscriber
//
// Load(path) applies defaults, unmarshals the file (skipped when path is
// empty), applies IOTCLOUD_* environment overrides, then validates.
// LoadEnvFile reads a .env file into the environment first.
//
// Watch(ctx, path, onChange) reloads the file on change; the server uses it
// to hot-swap the staleness threshold.
package config
