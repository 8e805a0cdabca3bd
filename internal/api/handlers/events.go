package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendsense/internal/models"
	"github.com/your-org/attendsense/pkg/dto"
)

type EventLister interface {
	ListEvents(ctx context.Context, f models.EventFilter) ([]models.Sighting, int, error)
}

type EventHandler struct {
	events EventLister
}

func NewEventHandler(events EventLister) *EventHandler {
	return &EventHandler{events: events}
}

// List queries the audit log, newest first.
func (h *EventHandler) List(c *gin.Context) {
	f := models.EventFilter{
		PersonID: c.Query("person_id"),
		CameraID: c.Query("camera_id"),
	}

	var err error
	if f.From, err = queryTime(c, "from"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if f.To, err = queryTime(c, "to"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	events, total, err := h.events.ListEvents(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.EventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, dto.NewEventResponse(ev))
	}
	c.JSON(http.StatusOK, dto.EventListResponse{Events: resp, Total: total})
}

func queryTime(c *gin.Context, key string) (*time.Time, error) {
	s := c.Query(key)
	if s == "" {
		return nil, nil
	}
	t, err := dto.ParseTimestamp(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
