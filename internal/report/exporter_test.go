package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendsense/internal/models"
	"github.com/your-org/attendsense/internal/storage"
)

type fakeSource struct {
	statuses []models.PresenceStatus
	events   []models.Sighting
	err      error
	// afterPage runs after every ListEvents call.
	afterPage func(s *fakeSource)
}

func (s *fakeSource) ListStatuses(ctx context.Context) ([]models.PresenceStatus, error) {
	return s.statuses, s.err
}

func (s *fakeSource) ListEvents(ctx context.Context, f models.EventFilter) ([]models.Sighting, int, error) {
	if s.err != nil {
		return nil, 0, s.err
	}
	if s.afterPage != nil {
		defer s.afterPage(s)
	}
	var matched []models.Sighting
	for _, ev := range s.events {
		if f.From != nil && ev.EventTimestamp.Before(*f.From) {
			continue
		}
		if f.Before != nil && !f.Before.Admits(ev) {
			continue
		}
		matched = append(matched, ev)
	}
	sort.Slice(matched, func(i, j int) bool {
		return models.CursorOf(matched[j]).Admits(matched[i])
	})
	if f.Offset >= len(matched) {
		return nil, len(matched), nil
	}
	end := f.Offset + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[f.Offset:end], len(matched), nil
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string]storage.ObjectInfo
	seq     int
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string]storage.ObjectInfo)}
}

func (o *fakeObjects) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	o.objects[key] = storage.ObjectInfo{
		Key:          key,
		Size:         int64(len(data)),
		LastModified: time.Unix(int64(o.seq), 0),
	}
	return nil
}

func (o *fakeObjects) ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []storage.ObjectInfo
	for k, v := range o.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (o *fakeObjects) DeleteObjects(ctx context.Context, keys []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, k := range keys {
		delete(o.objects, k)
	}
	return nil
}

func TestExportUploadsUnderDatedPrefix(t *testing.T) {
	now := time.Date(2026, 2, 9, 17, 30, 0, 0, time.UTC)
	src := &fakeSource{
		statuses: []models.PresenceStatus{{PersonID: "p1", Name: "Alice", FirstSeen: now, LastSeen: now, Present: true}},
		events:   []models.Sighting{{ID: 1, PersonID: "p1", Name: "Alice", EventTimestamp: now}},
	}
	objects := newFakeObjects()
	exp := NewExporter(src, objects, "reports", 0)
	exp.now = func() time.Time { return now }

	key, err := exp.Export(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "reports/2026-02-09/"), key)
	assert.True(t, strings.HasSuffix(key, ".xlsx"), key)

	list, err := exp.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, key, list[0].Key)
	assert.Positive(t, list[0].Size)
}

func TestExportPrunesBeyondRetention(t *testing.T) {
	objects := newFakeObjects()
	exp := NewExporter(&fakeSource{}, objects, "reports", 2)

	var keys []string
	for i := 0; i < 4; i++ {
		key, err := exp.Export(context.Background())
		require.NoError(t, err)
		keys = append(keys, key)
	}

	list, err := exp.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	got := []string{list[0].Key, list[1].Key}
	assert.ElementsMatch(t, keys[2:], got)
}

func TestExportSourceError(t *testing.T) {
	objects := newFakeObjects()
	exp := NewExporter(&fakeSource{err: errors.New("db down")}, objects, "reports", 0)

	_, err := exp.Export(context.Background())
	require.Error(t, err)
	assert.Empty(t, objects.objects)
}

func TestBuildPagesThroughEvents(t *testing.T) {
	since := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{}
	for i := 0; i < eventsPageSize+3; i++ {
		src.events = append(src.events, models.Sighting{
			ID:             int64(i + 1),
			PersonID:       fmt.Sprintf("p%d", i),
			Name:           "x",
			EventTimestamp: since.Add(time.Duration(i) * time.Second),
		})
	}
	src.events = append(src.events, models.Sighting{ID: 9999, PersonID: "old", Name: "x", EventTimestamp: since.Add(-time.Hour)})

	data, err := Build(context.Background(), src, since)
	require.NoError(t, err)

	f := openWorkbook(t, data)
	rows, err := f.GetRows(EventsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, eventsPageSize+3+1)
}

func TestBuildIgnoresSightingsCommittedMidExport(t *testing.T) {
	since := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{}
	const n = 2*eventsPageSize + 7
	for i := 0; i < n; i++ {
		src.events = append(src.events, models.Sighting{
			ID:             int64(i + 1),
			PersonID:       fmt.Sprintf("p%d", i),
			Name:           "x",
			EventTimestamp: since.Add(time.Duration(i) * time.Second),
		})
	}
	next := int64(n + 1)
	src.afterPage = func(s *fakeSource) {
		s.events = append(s.events, models.Sighting{
			ID:             next,
			PersonID:       fmt.Sprintf("late%d", next),
			Name:           "x",
			EventTimestamp: since.Add(24 * time.Hour),
		})
		next++
	}

	data, err := Build(context.Background(), src, since)
	require.NoError(t, err)

	f := openWorkbook(t, data)
	rows, err := f.GetRows(EventsSheet)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, row := range rows[1:] {
		require.False(t, seen[row[0]], "event %s exported twice", row[0])
		seen[row[0]] = true
	}
	for i := 1; i <= n; i++ {
		assert.True(t, seen[fmt.Sprint(i)], "event %d missing", i)
	}
}
