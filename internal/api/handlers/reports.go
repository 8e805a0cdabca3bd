package handlers

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendsense/internal/report"
	"github.com/your-org/attendsense/internal/storage"
	"github.com/your-org/attendsense/pkg/dto"
)

type ReportArchive interface {
	Export(ctx context.Context) (string, error)
	List(ctx context.Context) ([]storage.ObjectInfo, error)
}

type ObjectReader interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

type ReportHandler struct {
	archive ReportArchive
	objects ObjectReader
	prefix  string
}

func NewReportHandler(archive ReportArchive, objects ObjectReader, prefix string) *ReportHandler {
	return &ReportHandler{archive: archive, objects: objects, prefix: prefix}
}

func (h *ReportHandler) List(c *gin.Context) {
	objects, err := h.archive.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.ReportResponse, 0, len(objects))
	for _, obj := range objects {
		resp = append(resp, dto.ReportResponse{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: dto.FormatTime(obj.LastModified),
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Create exports a report now instead of waiting for the worker's schedule.
func (h *ReportHandler) Create(c *gin.Context) {
	key, err := h.archive.Export(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key})
}

// Download serves the report named by ?key=. Only keys under the report
// prefix are reachable.
func (h *ReportHandler) Download(c *gin.Context) {
	key := c.Query("key")
	if key == "" || path.Clean(key) != key || !strings.HasPrefix(key, h.prefix+"/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report key"})
		return
	}

	data, err := h.objects.GetObject(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
	c.Data(http.StatusOK, report.ContentType, data)
}
