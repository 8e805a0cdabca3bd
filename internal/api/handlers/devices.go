package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendsense/internal/devices"
	"github.com/your-org/attendsense/internal/models"
	"github.com/your-org/attendsense/pkg/dto"
)

type HeartbeatRecorder interface {
	Record(ctx context.Context, in models.HeartbeatInput) (models.DeviceStatus, error)
	List(ctx context.Context) ([]devices.Health, error)
}

type DeviceHandler struct {
	recorder HeartbeatRecorder
}

func NewDeviceHandler(recorder HeartbeatRecorder) *DeviceHandler {
	return &DeviceHandler{recorder: recorder}
}

func (h *DeviceHandler) Heartbeat(c *gin.Context) {
	var req dto.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.recorder.Record(c.Request.Context(), req.ToInput()); err != nil {
		if errors.Is(err, devices.ErrMissingDeviceID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *DeviceHandler) List(c *gin.Context) {
	list, err := h.recorder.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.DeviceResponse, 0, len(list))
	for _, d := range list {
		resp = append(resp, dto.DeviceResponse{
			DeviceID:      d.DeviceID,
			LastHeartbeat: dto.FormatTime(d.LastHeartbeat),
			FPS:           d.FPS,
			CameraOK:      d.CameraOK,
			Online:        d.Online,
		})
	}
	c.JSON(http.StatusOK, resp)
}
