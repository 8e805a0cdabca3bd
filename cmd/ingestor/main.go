package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/attendsense/internal/attendance"
	"github.com/your-org/attendsense/internal/config"
	"github.com/your-org/attendsense/internal/devices"
	"github.com/your-org/attendsense/internal/models"
	"github.com/your-org/attendsense/internal/mqtt"
	"github.com/your-org/attendsense/internal/observability"
	"github.com/your-org/attendsense/internal/queue"
	"github.com/your-org/attendsense/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	metricsPort := flag.Int("metrics-port", 8081, "port for /metrics and /healthz")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting AttendSense ingestor", "broker", cfg.MQTT.Broker)

	// Connect to Postgres (heartbeats are written directly)
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	recorder := devices.NewRecorder(db, attendance.SystemClock{}, cfg.Devices.OfflineAfter)

	// Several ingestors may share a broker; client ids must not collide.
	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = fmt.Sprintf("%s-%s", cfg.MQTT.ClientID, uuid.NewString()[:8])

	client, err := mqtt.NewClient(mqttCfg, mqtt.Handlers{
		OnSighting: func(ctx context.Context, in models.SightingInput) error {
			if err := attendance.Validate(in); err != nil {
				slog.Warn("drop invalid sighting", "camera_id", in.CameraID, "error", err)
				return nil
			}
			return producer.PublishSighting(ctx, in)
		},
		OnHeartbeat: func(ctx context.Context, in models.HeartbeatInput) error {
			_, err := recorder.Record(ctx, in)
			return err
		},
	})
	if err != nil {
		slog.Error("connect to mqtt", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	// Metrics endpoint
	go func() {
		addr := fmt.Sprintf(":%d", *metricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := client.Ping(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"mqtt disconnected"}`))
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("ingestor metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down ingestor...")
	slog.Info("ingestor stopped")
}
