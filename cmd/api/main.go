package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/attendsense/internal/api"
	"github.com/your-org/attendsense/internal/api/handlers"
	"github.com/your-org/attendsense/internal/api/ws"
	"github.com/your-org/attendsense/internal/attendance"
	"github.com/your-org/attendsense/internal/config"
	"github.com/your-org/attendsense/internal/devices"
	"github.com/your-org/attendsense/internal/models"
	"github.com/your-org/attendsense/internal/observability"
	"github.com/your-org/attendsense/internal/queue"
	"github.com/your-org/attendsense/internal/report"
	"github.com/your-org/attendsense/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting AttendSense API service",
		"port", cfg.Server.Port,
		"dedup_window", cfg.Attendance.DedupWindow,
	)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		slog.Error("migrate postgres", "error", err)
		os.Exit(1)
	}

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

	checks := map[string]handlers.Check{
		"postgres": db.Ping,
		"nats":     func(context.Context) error { return producer.Ping() },
	}

	// MinIO is optional for the API; without it the report archive is not served.
	var exporter *report.Exporter
	var minioStore *storage.MinIOStore
	if cfg.MinIO.Endpoint != "" {
		minioStore, err = storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(context.Background()); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		exporter = report.NewExporter(db, minioStore, cfg.Report.Prefix, cfg.Report.Retention)
		checks["minio"] = minioStore.Ping
	}

	processor := attendance.NewProcessor(db, attendance.Options{
		DedupWindow:  cfg.Attendance.DedupWindow,
		StoreTimeout: cfg.Attendance.StoreTimeout,
		Publisher:    producer,
	})
	recorder := devices.NewRecorder(db, attendance.SystemClock{}, cfg.Devices.OfflineAfter)

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Broadcast committed presence changes, wherever they were produced.
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create presence consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumePresence(ctx, presenceConsumerName(), func(ctx context.Context, msg jetstream.Msg) error {
		var change models.PresenceChange
		if err := json.Unmarshal(msg.Data(), &change); err != nil {
			slog.Error("unmarshal presence change", "error", err)
			return nil
		}
		hub.BroadcastPresence(change)
		return nil
	})
	if err != nil {
		slog.Warn("start presence consumer", "error", err)
	}

	rc := api.RouterConfig{
		Processor:    processor,
		Presence:     processor,
		Store:        db,
		Recorder:     recorder,
		Hub:          hub,
		Checks:       checks,
		ReportPrefix: cfg.Report.Prefix,
	}
	if exporter != nil {
		rc.Reports = exporter
		rc.Objects = minioStore
	}
	router := api.NewRouter(rc)

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// presenceConsumerName is unique per host so every API replica sees every change.
func presenceConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return "api-presence-" + queue.SubjectToken(host)
}
