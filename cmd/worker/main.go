package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/attendsense/internal/attendance"
	"github.com/your-org/attendsense/internal/config"
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

	slog.Info("starting AttendSense worker",
		"workers", cfg.NATS.WorkerCount,
		"dedup_window", cfg.Attendance.DedupWindow,
		"absent_after", cfg.Attendance.AbsentAfter,
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
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	processor := attendance.NewProcessor(db, attendance.Options{
		DedupWindow:  cfg.Attendance.DedupWindow,
		StoreTimeout: cfg.Attendance.StoreTimeout,
		Publisher:    producer,
	})

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start consuming sightings
	err = consumer.ConsumeSightings(ctx, "attendance-workers", func(ctx context.Context, msg jetstream.Msg) error {
		var in models.SightingInput
		if err := json.Unmarshal(msg.Data(), &in); err != nil {
			slog.Error("unmarshal sighting", "error", err)
			return nil // Don't retry on unmarshal errors
		}

		res, err := processor.Ingest(ctx, in)
		if err != nil {
			var verr *attendance.ValidationError
			if errors.As(err, &verr) {
				slog.Warn("drop invalid sighting", "camera_id", in.CameraID, "error", err)
				return nil
			}
			return fmt.Errorf("ingest sighting of %s: %w", in.PersonID, err)
		}

		slog.Debug("sighting processed",
			"person_id", in.PersonID,
			"camera_id", in.CameraID,
			"outcome", res.Outcome.String(),
		)
		return nil
	}, cfg.NATS.WorkerCount)
	if err != nil {
		slog.Error("start sighting consumer", "error", err)
		os.Exit(1)
	}

	// Presence sweep
	sweeper := attendance.NewSweeper(db, attendance.SweeperOptions{
		AbsentAfter:  cfg.Attendance.AbsentAfter,
		StoreTimeout: cfg.Attendance.StoreTimeout,
		Publisher:    producer,
	})
	go sweeper.Run(ctx, cfg.Attendance.SweepInterval)

	// Scheduled report archive
	if cfg.Report.Interval > 0 && cfg.MinIO.Endpoint != "" {
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(context.Background()); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		exporter := report.NewExporter(db, minioStore, cfg.Report.Prefix, cfg.Report.Retention)
		slog.Info("report export enabled", "interval", cfg.Report.Interval, "retention", cfg.Report.Retention)
		go exporter.Run(ctx, cfg.Report.Interval)
	}

	// Metrics endpoint
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}
