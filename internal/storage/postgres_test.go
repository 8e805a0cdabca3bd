//go:build integration

package storage_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/your-org/attendsense/internal/attendance"
	"github.com/your-org/attendsense/internal/config"
	"github.com/your-org/attendsense/internal/models"
	"github.com/your-org/attendsense/internal/storage"
)

func setupPostgres(t *testing.T) (*storage.PostgresStore, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "attendsense",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	store, err := storage.NewPostgresStore(config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		Name:     "attendsense",
		User:     "test",
		Password: "test",
		MaxConns: 20,
	})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("connect: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("migrate: %v", err)
	}

	return store, func() {
		store.Close()
		_ = container.Terminate(ctx)
	}
}

func TestPostgresProcessorScenario(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	// Migrate is idempotent.
	require.NoError(t, store.Migrate(ctx))

	p := attendance.NewProcessor(store, attendance.Options{DedupWindow: 30 * time.Second})
	t0 := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)
	in := func(offset time.Duration) models.SightingInput {
		return models.SightingInput{PersonID: "p1", Name: "Alice", EventTimestamp: t0.Add(offset), CameraID: "cam1", Confidence: 0.9}
	}

	for _, tc := range []struct {
		offset time.Duration
		want   attendance.Outcome
	}{
		{0, attendance.OutcomeAccepted},
		{10 * time.Second, attendance.OutcomeDuplicate},
		{40 * time.Second, attendance.OutcomeAccepted},
	} {
		res, err := p.Ingest(ctx, in(tc.offset))
		require.NoError(t, err)
		assert.Equal(t, tc.want, res.Outcome, tc.offset)
	}

	present, err := store.ListPresent(ctx)
	require.NoError(t, err)
	require.Len(t, present, 1)
	assert.True(t, present[0].FirstSeen.Equal(t0))
	assert.True(t, present[0].LastSeen.Equal(t0.Add(40*time.Second)))

	events, total, err := store.ListEvents(ctx, models.EventFilter{PersonID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.True(t, events[0].EventTimestamp.After(events[1].EventTimestamp))
}

func TestPostgresConcurrentSameTimestamp(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	// Two processors stand in for two worker replicas sharing the database.
	procs := []*attendance.Processor{
		attendance.NewProcessor(store, attendance.Options{}),
		attendance.NewProcessor(store, attendance.Options{}),
	}
	ts := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)

	var accepted int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := procs[i%2].Ingest(ctx, models.SightingInput{
				PersonID: "p1", Name: "Alice", EventTimestamp: ts, CameraID: fmt.Sprintf("cam%d", i),
			})
			if assert.NoError(t, err) && res.Accepted() {
				atomic.AddInt32(&accepted, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted)
	_, total, err := store.ListEvents(ctx, models.EventFilter{PersonID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestPostgresPersonTxSerializesAcrossCallers(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.WithPersonTx(ctx, "p1", func(tx attendance.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	require.NoError(t, store.WithPersonTx(ctx, "p2", func(tx attendance.Tx) error { return nil }),
		"other people are not blocked")

	waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	err := store.WithPersonTx(waitCtx, "p1", func(tx attendance.Tx) error {
		t.Error("entered while another transaction held p1")
		return nil
	})
	require.Error(t, err)

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, store.WithPersonTx(ctx, "p1", func(tx attendance.Tx) error { return nil }))
}

func TestPostgresFailedTransactionLeavesNoTrace(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()
	t0 := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)

	err := store.WithPersonTx(ctx, "p1", func(tx attendance.Tx) error {
		ev := &models.Sighting{PersonID: "p1", Name: "Alice", EventTimestamp: t0, ReceivedAt: t0}
		require.NoError(t, tx.AppendEvent(ctx, ev))
		assert.Positive(t, ev.ID)
		return fmt.Errorf("status write failed")
	})
	require.Error(t, err)

	_, total, err := store.ListEvents(ctx, models.EventFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)

	statuses, err := store.ListStatuses(ctx)
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestPostgresMarkAbsentAndDevices(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()
	t0 := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)

	p := attendance.NewProcessor(store, attendance.Options{})
	_, err := p.Ingest(ctx, models.SightingInput{PersonID: "early", Name: "E", EventTimestamp: t0})
	require.NoError(t, err)
	_, err = p.Ingest(ctx, models.SightingInput{PersonID: "late", Name: "L", EventTimestamp: t0.Add(time.Hour)})
	require.NoError(t, err)

	changed, err := store.MarkAbsent(ctx, t0.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "early", changed[0].PersonID)
	assert.False(t, changed[0].Present)

	present, err := store.ListPresent(ctx)
	require.NoError(t, err)
	require.Len(t, present, 1)
	assert.Equal(t, "late", present[0].PersonID)

	require.NoError(t, store.UpsertDevice(ctx, models.DeviceStatus{DeviceID: "jetson-1", LastHeartbeat: t0, FPS: 12, CameraOK: true}))
	require.NoError(t, store.UpsertDevice(ctx, models.DeviceStatus{DeviceID: "jetson-1", LastHeartbeat: t0.Add(time.Second), FPS: 0, CameraOK: false}))
	devs, err := store.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.False(t, devs[0].CameraOK)
	assert.True(t, devs[0].LastHeartbeat.Equal(t0.Add(time.Second)))
}
