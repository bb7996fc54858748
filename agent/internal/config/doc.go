// Package config loads the device agent configuration (the `agent:` section
// of config.yaml) and watches it for device list changes.
//
// Load(path) applies defaults (5s report interval, buffer of 100 events,
// status "on" for devices that omit one) and validates that the server
// endpoint is set and device ids are present and unique.
//
// WatchDevices uses fsnotify on the file's directory and only reports a
// reload when the device list actually changed.
package config
