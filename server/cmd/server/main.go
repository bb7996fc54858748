// Package main is the entry point for the iotcloud server.
//
// Usage:
//
//	iotcloud serve -c config.yaml    # Start the gateway
//	iotcloud validate -c config.yaml # Validate configuration
//	iotcloud version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time via -ldflags "-X main.version=1.0.0".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "iotcloud",
	Short: "Device liveness registry and gateway",
	Long: `iotcloud tracks the last reported status of every device and derives
whether each one is online from how recently it reported.

Devices report over HTTP (POST /event), gRPC or MQTT. Status is queried with
GET /status/{device}, listed at /api/v1/devices and streamed at /ws/devices.

Quick start:
  iotcloud serve -c config.yaml
  curl -X POST localhost:8080/event -d '{"device":"esp32-1","status":"on"}'
  curl localhost:8080/status/esp32-1`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("iotcloud %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already printed the error.
		os.Exit(1)
	}
}
