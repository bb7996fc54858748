package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/iotcloud/iotcloud/agent/internal/config"
	"github.com/iotcloud/iotcloud/agent/internal/reporter"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("iotcloud-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"devices", len(cfg.Agent.Devices),
		"report_interval", cfg.Agent.ReportInterval,
	)
	if len(cfg.Agent.Devices) == 0 {
		slog.Warn("no devices configured, agent will idle until the list is edited")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var mu sync.Mutex
	devices := cfg.Agent.Devices

	go func() {
		err := config.WatchDevices(ctx, *configPath, devices, func(updated []config.Device) {
			mu.Lock()
			devices = updated
			mu.Unlock()
		})
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	rep := reporter.New(cfg.Agent)
	go rep.Run(ctx)

	report := func() {
		mu.Lock()
		current := devices
		mu.Unlock()
		for _, d := range current {
			rep.Report(d.ID, d.Status)
		}
	}

	// Report once immediately so devices show online without waiting a tick.
	report()

	ticker := time.NewTicker(cfg.Agent.ReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("iotcloud-agent shutting down", "pending", rep.Pending())
			return
		case <-ticker.C:
			report()
		}
	}
}
