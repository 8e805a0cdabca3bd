package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendsense/internal/models"
	"github.com/your-org/attendsense/internal/report"
	"github.com/your-org/attendsense/pkg/dto"
)

type PresenceLister interface {
	ListPresent(ctx context.Context) ([]models.PresenceStatus, error)
}

type AttendanceHandler struct {
	presence PresenceLister
	source   report.Source
}

func NewAttendanceHandler(presence PresenceLister, source report.Source) *AttendanceHandler {
	return &AttendanceHandler{presence: presence, source: source}
}

// List returns everyone currently present, most recently seen first.
func (h *AttendanceHandler) List(c *gin.Context) {
	statuses, err := h.presence.ListPresent(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.PresenceResponse, 0, len(statuses))
	for _, st := range statuses {
		resp = append(resp, dto.NewPresenceResponse(st))
	}
	c.JSON(http.StatusOK, resp)
}

// Export streams an XLSX roster. Events are included from ?since=, or from
// the start of the current UTC day.
func (h *AttendanceHandler) Export(c *gin.Context) {
	since, err := queryTime(c, "since")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if since == nil {
		now := time.Now().UTC()
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		since = &day
	}

	data, err := report.Build(c.Request.Context(), h.source, *since)
	if err != nil {
		slog.Error("build attendance export", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := fmt.Sprintf("attendance-%s.xlsx", since.Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, report.ContentType, data)
}
