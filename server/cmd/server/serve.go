package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/iotcloud/iotcloud/pkg/eventrpc"
	"github.com/iotcloud/iotcloud/server/internal/api"
	"github.com/iotcloud/iotcloud/server/internal/config"
	"github.com/iotcloud/iotcloud/server/internal/interceptor"
	"github.com/iotcloud/iotcloud/server/internal/metrics"
	"github.com/iotcloud/iotcloud/server/internal/mqtt"
	"github.com/iotcloud/iotcloud/server/internal/receiver"
	"github.com/iotcloud/iotcloud/server/internal/store"
	"github.com/iotcloud/iotcloud/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the HTTP gateway, the gRPC receiver and, when enabled, the MQTT
subscriber. All of them write into one in-memory registry.

If a config file is given it is watched and the staleness threshold is
applied on change without a restart. Without -c the defaults are used.

The server runs until interrupted (Ctrl+C) or it receives SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (defaults only when empty)")
	serveCmd.Flags().String("env-file", ".env", "load environment variables from this file if it exists")
	serveCmd.Flags().String("log-level", "info", "log level: debug, info, warn, error")
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	levelName, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", levelName, err)
	}
	slog.SetDefault(newLogger(level))

	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	s := cfg.Server

	slog.Info("iotcloud-server starting",
		"version", version,
		"config", configPath,
		"http_addr", s.HTTPAddr(),
		"grpc_port", s.GRPCPort,
		"mqtt_enabled", s.MQTT.Enabled,
		"staleness_threshold", s.Liveness.StalenessThreshold,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := store.New(s.Liveness.StalenessThreshold)
	reg := metrics.New()

	// gRPC receiver; port 0 disables it.
	var grpcSrv *grpc.Server
	if s.GRPCPort != 0 {
		lis, err := net.Listen("tcp", s.GRPCAddr())
		if err != nil {
			return fmt.Errorf("listen on gRPC address %s: %w", s.GRPCAddr(), err)
		}
		grpcSrv = grpc.NewServer(grpc.UnaryInterceptor(interceptor.Logging()))
		eventrpc.RegisterEventServiceServer(grpcSrv, receiver.New(st, reg))
		go func() {
			slog.Info("gRPC receiver listening", "addr", s.GRPCAddr())
			if err := grpcSrv.Serve(lis); err != nil {
				slog.Error("gRPC server stopped", "err", err)
			}
		}()
	}

	if s.MQTT.Enabled {
		sub := mqtt.New(mqtt.Config{
			Broker:   s.MQTT.Broker,
			ClientID: s.MQTT.ClientID,
			Topic:    s.MQTT.Topic,
			QoS:      s.MQTT.QoS,
			Username: s.MQTT.Username(),
			Password: s.MQTT.Password(),
		}, st, reg)
		go func() {
			if err := sub.Run(ctx); err != nil {
				slog.Error("MQTT subscriber stopped", "err", err)
			}
		}()
	}

	hub := ws.New(st, s.Stream.Interval)
	go hub.Run(ctx)

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(c *config.Config) {
				d := c.Server.Liveness.StalenessThreshold
				if d != st.Threshold() {
					st.SetThreshold(d)
					slog.Info("staleness threshold updated", "threshold", d)
				}
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	// The WebSocket route sits outside the API's logging middleware so the
	// connection can be hijacked.
	mux := http.NewServeMux()
	mux.Handle("/ws/devices", hub)
	mux.Handle("/", api.New(st, reg))

	httpSrv := &http.Server{
		Addr:              s.HTTPAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.HTTPAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		cancel()
		return fmt.Errorf("HTTP server: %w", err)
	}

	slog.Info("iotcloud-server shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}
