package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendsense/internal/attendance"
	"github.com/your-org/attendsense/internal/models"
	"github.com/your-org/attendsense/pkg/dto"
)

type Ingester interface {
	Ingest(ctx context.Context, in models.SightingInput) (attendance.Result, error)
}

type SightingHandler struct {
	processor Ingester
}

func NewSightingHandler(processor Ingester) *SightingHandler {
	return &SightingHandler{processor: processor}
}

// Create records one sighting. Duplicates are answered with 200 and
// accepted=false; they are normal traffic, not an error.
func (h *SightingHandler) Create(c *gin.Context) {
	var req dto.SightingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in, err := req.ToInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.processor.Ingest(c.Request.Context(), in)
	if err != nil {
		var verr *attendance.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		slog.Error("ingest sighting", "person_id", in.PersonID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.SightingResponse{Status: "received", Accepted: res.Accepted()})
}
