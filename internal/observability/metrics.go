package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SightingsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendsense",
		Name:      "sightings_ingested_total",
		Help:      "Total number of sightings ingested, by outcome",
	}, []string{"outcome"})

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attendsense",
		Name:      "ingest_duration_seconds",
		Help:      "Duration of the dedup decision and its writes",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendsense",
		Name:      "storage_errors_total",
		Help:      "Total number of failed store operations",
	}, []string{"op"})

	PersonsMarkedAbsent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendsense",
		Name:      "persons_marked_absent_total",
		Help:      "Total number of presence rows flipped to absent by the sweeper",
	})

	Heartbeats = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendsense",
		Name:      "heartbeats_total",
		Help:      "Total number of device heartbeats recorded",
	}, []string{"device_id"})

	DevicesOffline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendsense",
		Name:      "devices_offline",
		Help:      "Number of devices whose last heartbeat is older than the offline threshold",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendsense",
		Name:      "queue_depth",
		Help:      "Number of pending sightings in queue",
	})

	ReportsExported = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendsense",
		Name:      "reports_exported_total",
		Help:      "Total number of roster reports uploaded to object storage",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendsense",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendsense",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
