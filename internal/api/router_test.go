package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/your-org/attendsense/internal/api"
	"github.com/your-org/attendsense/internal/api/handlers"
	"github.com/your-org/attendsense/internal/attendance"
	"github.com/your-org/attendsense/internal/devices"
	"github.com/your-org/attendsense/internal/models"
	"github.com/your-org/attendsense/internal/report"
	"github.com/your-org/attendsense/internal/storage"
	"github.com/your-org/attendsense/pkg/dto"
)

type fixture struct {
	router http.Handler
	store  *storage.MemoryStore
}

func newFixture(t *testing.T, checks map[string]handlers.Check) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	processor := attendance.NewProcessor(store, attendance.Options{DedupWindow: 30 * time.Second})
	recorder := devices.NewRecorder(store, attendance.SystemClock{}, 30*time.Second)

	r := api.NewRouter(api.RouterConfig{
		Processor: processor,
		Presence:  processor,
		Store:     store,
		Recorder:  recorder,
		Checks:    checks,
	})
	return &fixture{router: r, store: store}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func sighting(personID, ts string) map[string]interface{} {
	return map[string]interface{}{
		"person_id":  personID,
		"name":       "Alice",
		"timestamp":  ts,
		"confidence": 0.91,
		"camera_id":  "cam1",
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestPostEventAcceptsThenSuppresses(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/event", sighting("p1", "2026-02-09T08:00:00Z"))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.SightingResponse](t, w)
	assert.Equal(t, "received", resp.Status)
	assert.True(t, resp.Accepted)

	w = f.do(t, http.MethodPost, "/v1/sightings", sighting("p1", "2026-02-09T08:00:10Z"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[dto.SightingResponse](t, w).Accepted)

	w = f.do(t, http.MethodPost, "/event", sighting("p1", "2026-02-09T08:00:40Z"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[dto.SightingResponse](t, w).Accepted)

	_, total, err := f.store.ListEvents(context.Background(), models.EventFilter{PersonID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestPostEventRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)

	missingName := sighting("p1", "2026-02-09T08:00:00Z")
	delete(missingName, "name")
	w := f.do(t, http.MethodPost, "/event", missingName)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/event", sighting("p1", "09/02/2026"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/event", sighting("   ", "2026-02-09T08:00:00Z"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, total, err := f.store.ListEvents(context.Background(), models.EventFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

type failingIngester struct{}

func (failingIngester) Ingest(context.Context, models.SightingInput) (attendance.Result, error) {
	return attendance.Result{}, &attendance.StorageError{Op: "begin", Err: errors.New("connection refused")}
}

func TestPostEventStorageFailureIsServerError(t *testing.T) {
	store := storage.NewMemoryStore()
	r := api.NewRouter(api.RouterConfig{
		Processor: failingIngester{},
		Store:     store,
		Recorder:  devices.NewRecorder(store, attendance.SystemClock{}, time.Minute),
	})
	f := &fixture{router: r, store: store}

	w := f.do(t, http.MethodPost, "/event", sighting("p1", "2026-02-09T08:00:00Z"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestAttendanceListsPresentPeople(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/event", sighting("p1", "2026-02-09T08:00:00Z"))
	f.do(t, http.MethodPost, "/event", sighting("p2", "2026-02-09T08:05:00Z"))

	for _, path := range []string{"/attendance", "/v1/attendance"} {
		w := f.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		list := decode[[]dto.PresenceResponse](t, w)
		require.Len(t, list, 2, path)
		assert.Equal(t, "p2", list[0].PersonID)
		assert.Equal(t, "2026-02-09T08:05:00Z", list[0].LastSeen)
		assert.True(t, list[1].Present)
	}
}

// stalledRoster hangs on roster reads until the caller gives up.
type stalledRoster struct{ *storage.MemoryStore }

func (stalledRoster) ListPresent(ctx context.Context) ([]models.PresenceStatus, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAttendanceRosterTimesOut(t *testing.T) {
	store := storage.NewMemoryStore()
	processor := attendance.NewProcessor(stalledRoster{store}, attendance.Options{StoreTimeout: 20 * time.Millisecond})
	r := api.NewRouter(api.RouterConfig{
		Processor: processor,
		Presence:  processor,
		Store:     store,
		Recorder:  devices.NewRecorder(store, attendance.SystemClock{}, time.Minute),
	})
	f := &fixture{router: r, store: store}

	for _, path := range []string{"/attendance", "/v1/attendance"} {
		start := time.Now()
		w := f.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code, path)
		assert.Contains(t, w.Body.String(), "list present", path)
		assert.Less(t, time.Since(start), time.Second, path)
	}
}

func TestEventsQuery(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/event", sighting("p1", "2026-02-09T08:00:00Z"))
	f.do(t, http.MethodPost, "/event", sighting("p1", "2026-02-09T09:00:00Z"))
	f.do(t, http.MethodPost, "/event", sighting("p2", "2026-02-09T09:30:00Z"))

	w := f.do(t, http.MethodGet, "/v1/events?person_id=p1&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[dto.EventListResponse](t, w)
	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Events, 1)
	assert.Equal(t, "2026-02-09T09:00:00Z", list.Events[0].Timestamp)

	w = f.do(t, http.MethodGet, "/v1/events?from=2026-02-09T08:30:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[dto.EventListResponse](t, w).Total)

	w = f.do(t, http.MethodGet, "/v1/events?to=soon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceExport(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/event", sighting("p1", "2026-02-09T08:00:00Z"))

	w := f.do(t, http.MethodGet, "/v1/attendance/export?since=2026-02-09T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, report.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attendance-2026-02-09.xlsx")

	wb, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows(report.EventsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestHeartbeatAndDevices(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/heartbeat", map[string]interface{}{"device_id": "jetson-1", "fps": 24.5, "camera_ok": 1})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/v1/devices/heartbeat", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/v1/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]dto.DeviceResponse](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "jetson-1", list[0].DeviceID)
	assert.Equal(t, 24.5, list[0].FPS)
	assert.True(t, list[0].CameraOK)
	assert.True(t, list[0].Online)
}

func TestReadyz(t *testing.T) {
	f := newFixture(t, map[string]handlers.Check{
		"postgres": func(context.Context) error { return nil },
		"nats":     func(context.Context) error { return errors.New("nats not connected") },
	})

	w := f.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "nats not connected")

	w = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	w = f.do(t, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

type fakeArchive struct {
	objects map[string][]byte
}

func (a *fakeArchive) Export(ctx context.Context) (string, error) {
	key := "reports/2026-02-09/r1.xlsx"
	a.objects[key] = []byte("xlsx")
	return key, nil
}

func (a *fakeArchive) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for k, v := range a.objects {
		out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(v))})
	}
	return out, nil
}

func (a *fakeArchive) GetObject(ctx context.Context, key string) ([]byte, error) {
	data, ok := a.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func TestReportRoutes(t *testing.T) {
	store := storage.NewMemoryStore()
	archive := &fakeArchive{objects: map[string][]byte{}}
	r := api.NewRouter(api.RouterConfig{
		Processor:    attendance.NewProcessor(store, attendance.Options{}),
		Store:        store,
		Recorder:     devices.NewRecorder(store, attendance.SystemClock{}, time.Minute),
		Reports:      archive,
		Objects:      archive,
		ReportPrefix: "reports",
	})
	f := &fixture{router: r, store: store}

	w := f.do(t, http.MethodPost, "/v1/reports", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, "/v1/reports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]dto.ReportResponse](t, w)
	require.Len(t, list, 1)

	w = f.do(t, http.MethodGet, "/v1/reports/download?key="+list[0].Key, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "xlsx", w.Body.String())

	for _, key := range []string{"", "secrets/x.xlsx", "reports/../secrets/x.xlsx"} {
		w = f.do(t, http.MethodGet, "/v1/reports/download?key="+key, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, key)
	}

	w = f.do(t, http.MethodGet, "/v1/reports/download?key=reports/2026-01-01/missing.xlsx", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportRoutesAbsentWithoutArchive(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(t, http.MethodGet, "/v1/reports", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
