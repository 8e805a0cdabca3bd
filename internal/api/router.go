package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/attendsense/internal/api/handlers"
	"github.com/your-org/attendsense/internal/api/ws"
	"github.com/your-org/attendsense/internal/report"
)

// AttendanceStore is the read side the API queries directly.
type AttendanceStore interface {
	handlers.PresenceLister
	handlers.EventLister
	report.Source
}

type RouterConfig struct {
	Processor handlers.Ingester
	Store     AttendanceStore
	Recorder  handlers.HeartbeatRecorder
	Hub       *ws.Hub
	Checks    map[string]handlers.Check

	// Presence serves the live roster. Defaults to Store.
	Presence handlers.PresenceLister

	// Reports and Objects are optional; without them the archive routes are not mounted.
	Reports      handlers.ReportArchive
	Objects      handlers.ObjectReader
	ReportPrefix string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	sightingH := handlers.NewSightingHandler(cfg.Processor)
	presence := cfg.Presence
	if presence == nil {
		presence = cfg.Store
	}
	attendanceH := handlers.NewAttendanceHandler(presence, cfg.Store)
	deviceH := handlers.NewDeviceHandler(cfg.Recorder)

	// Paths the edge nodes already post to.
	r.POST("/event", sightingH.Create)
	r.GET("/attendance", attendanceH.List)
	r.POST("/heartbeat", deviceH.Heartbeat)

	v1 := r.Group("/v1")

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	v1.POST("/sightings", sightingH.Create)
	v1.GET("/attendance", attendanceH.List)
	v1.GET("/attendance/export", attendanceH.Export)

	eventH := handlers.NewEventHandler(cfg.Store)
	v1.GET("/events", eventH.List)

	v1.POST("/devices/heartbeat", deviceH.Heartbeat)
	v1.GET("/devices", deviceH.List)

	if cfg.Reports != nil && cfg.Objects != nil {
		reportH := handlers.NewReportHandler(cfg.Reports, cfg.Objects, cfg.ReportPrefix)
		v1.GET("/reports", reportH.List)
		v1.POST("/reports", reportH.Create)
		v1.GET("/reports/download", reportH.Download)
	}

	return r
}
