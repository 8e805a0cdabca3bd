package report

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attendsense/internal/models"
	"github.com/your-org/attendsense/internal/observability"
	"github.com/your-org/attendsense/internal/storage"
)

// Source is the read side of the attendance store a report is built from.
type Source interface {
	ListStatuses(ctx context.Context) ([]models.PresenceStatus, error)
	ListEvents(ctx context.Context, f models.EventFilter) ([]models.Sighting, int, error)
}

// ObjectStore is where finished reports are archived.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	DeleteObjects(ctx context.Context, keys []string) error
}

const eventsPageSize = 500

// Build renders every known person and the events recorded since the given
// time.
func Build(ctx context.Context, src Source, since time.Time) ([]byte, error) {
	roster, err := src.ListStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}

	// Keyset paging keeps pages stable while new sightings land.
	var (
		events []models.Sighting
		cursor *models.EventCursor
	)
	for {
		page, _, err := src.ListEvents(ctx, models.EventFilter{
			From:   &since,
			Before: cursor,
			Limit:  eventsPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		events = append(events, page...)
		if len(page) < eventsPageSize {
			break
		}
		cursor = models.CursorOf(page[len(page)-1])
	}

	return BuildWorkbook(roster, events)
}

type Exporter struct {
	src       Source
	objects   ObjectStore
	prefix    string
	retention int
	now       func() time.Time
}

// NewExporter keeps at most retention reports under prefix; zero keeps all.
func NewExporter(src Source, objects ObjectStore, prefix string, retention int) *Exporter {
	return &Exporter{
		src:       src,
		objects:   objects,
		prefix:    prefix,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Export archives today's report and returns its object key.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	now := e.now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	data, err := Build(ctx, e.src, day)
	if err != nil {
		return "", err
	}

	key := path.Join(e.prefix, day.Format("2006-01-02"), uuid.NewString()+".xlsx")
	if err := e.objects.PutObject(ctx, key, data, ContentType); err != nil {
		return "", fmt.Errorf("upload report: %w", err)
	}
	observability.ReportsExported.Inc()
	slog.Info("report exported", "key", key, "bytes", len(data))

	if err := e.prune(ctx); err != nil {
		slog.Warn("prune reports", "error", err)
	}
	return key, nil
}

// List returns archived reports ordered by key.
func (e *Exporter) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	return e.objects.ListObjects(ctx, e.prefix+"/")
}

func (e *Exporter) prune(ctx context.Context) error {
	if e.retention <= 0 {
		return nil
	}
	objects, err := e.List(ctx)
	if err != nil {
		return err
	}
	if len(objects) <= e.retention {
		return nil
	}
	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].LastModified.Before(objects[j].LastModified)
	})

	stale := objects[:len(objects)-e.retention]
	keys := make([]string, 0, len(stale))
	for _, obj := range stale {
		keys = append(keys, obj.Key)
	}
	if err := e.objects.DeleteObjects(ctx, keys); err != nil {
		return err
	}
	slog.Info("pruned old reports", "count", len(keys))
	return nil
}

// Run exports every interval until ctx is done.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Export(ctx); err != nil {
				slog.Error("export report", "error", err)
			}
		}
	}
}
