package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/attendsense/internal/attendance"
	"github.com/your-org/attendsense/internal/config"
	"github.com/your-org/attendsense/internal/models"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS attendance_events (
		id              BIGSERIAL PRIMARY KEY,
		person_id       TEXT NOT NULL,
		name            TEXT NOT NULL,
		event_timestamp TIMESTAMPTZ NOT NULL,
		confidence      DOUBLE PRECISION,
		camera_id       TEXT NOT NULL DEFAULT '',
		received_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS attendance_events_person_ts_idx
		ON attendance_events (person_id, event_timestamp DESC)`,
	`CREATE TABLE IF NOT EXISTS attendance_status (
		person_id  TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		first_seen TIMESTAMPTZ NOT NULL,
		last_seen  TIMESTAMPTZ NOT NULL,
		present    BOOLEAN NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS attendance_status_present_idx
		ON attendance_status (present, last_seen DESC)`,
	`CREATE TABLE IF NOT EXISTS device_status (
		device_id      TEXT PRIMARY KEY,
		last_heartbeat TIMESTAMPTZ NOT NULL,
		fps            DOUBLE PRECISION NOT NULL DEFAULT 0,
		camera_ok      BOOLEAN NOT NULL DEFAULT TRUE
	)`,
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the tables and indexes if they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// --- Attendance ---

// WithPersonTx serializes writers of one person with a transaction-scoped
// advisory lock. A row lock is not enough: the first sighting has no row to lock.
func (s *PostgresStore) WithPersonTx(ctx context.Context, personID string, fn func(tx attendance.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, personID); err != nil {
		return fmt.Errorf("lock person %s: %w", personID, err)
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetStatus(ctx context.Context, personID string) (*models.PresenceStatus, error) {
	st := &models.PresenceStatus{}
	err := t.tx.QueryRow(ctx,
		`SELECT person_id, name, first_seen, last_seen, present FROM attendance_status WHERE person_id = $1`,
		personID,
	).Scan(&st.PersonID, &st.Name, &st.FirstSeen, &st.LastSeen, &st.Present)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get status: %w", err)
	}
	return st, nil
}

func (t *pgTx) AppendEvent(ctx context.Context, ev *models.Sighting) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO attendance_events (person_id, name, event_timestamp, confidence, camera_id, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		ev.PersonID, ev.Name, ev.EventTimestamp, ev.Confidence, ev.CameraID, ev.ReceivedAt,
	).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (t *pgTx) UpsertStatus(ctx context.Context, st *models.PresenceStatus) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO attendance_status (person_id, name, first_seen, last_seen, present)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (person_id) DO UPDATE
		 SET first_seen = EXCLUDED.first_seen, last_seen = EXCLUDED.last_seen, present = EXCLUDED.present`,
		st.PersonID, st.Name, st.FirstSeen, st.LastSeen, st.Present)
	if err != nil {
		return fmt.Errorf("upsert status: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPresent(ctx context.Context) ([]models.PresenceStatus, error) {
	return s.queryStatuses(ctx,
		`SELECT person_id, name, first_seen, last_seen, present FROM attendance_status
		 WHERE present ORDER BY last_seen DESC, person_id`)
}

func (s *PostgresStore) ListStatuses(ctx context.Context) ([]models.PresenceStatus, error) {
	return s.queryStatuses(ctx,
		`SELECT person_id, name, first_seen, last_seen, present FROM attendance_status ORDER BY person_id`)
}

func (s *PostgresStore) MarkAbsent(ctx context.Context, cutoff time.Time) ([]models.PresenceStatus, error) {
	return s.queryStatuses(ctx,
		`UPDATE attendance_status SET present = FALSE
		 WHERE present AND last_seen < $1
		 RETURNING person_id, name, first_seen, last_seen, present`, cutoff)
}

func (s *PostgresStore) queryStatuses(ctx context.Context, query string, args ...interface{}) ([]models.PresenceStatus, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	defer rows.Close()

	statuses := []models.PresenceStatus{}
	for rows.Next() {
		var st models.PresenceStatus
		if err := rows.Scan(&st.PersonID, &st.Name, &st.FirstSeen, &st.LastSeen, &st.Present); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statuses: %w", err)
	}
	return statuses, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, f models.EventFilter) ([]models.Sighting, int, error) {
	limit, offset := clampPage(f.Limit, f.Offset)

	baseWhere := "WHERE TRUE"
	args := []interface{}{}
	argIdx := 1

	if f.PersonID != "" {
		baseWhere += fmt.Sprintf(" AND person_id = $%d", argIdx)
		args = append(args, f.PersonID)
		argIdx++
	}
	if f.CameraID != "" {
		baseWhere += fmt.Sprintf(" AND camera_id = $%d", argIdx)
		args = append(args, f.CameraID)
		argIdx++
	}
	if f.From != nil {
		baseWhere += fmt.Sprintf(" AND event_timestamp >= $%d", argIdx)
		args = append(args, *f.From)
		argIdx++
	}
	if f.To != nil {
		baseWhere += fmt.Sprintf(" AND event_timestamp <= $%d", argIdx)
		args = append(args, *f.To)
		argIdx++
	}
	if f.Before != nil {
		baseWhere += fmt.Sprintf(" AND (event_timestamp, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, f.Before.EventTimestamp, f.Before.ID)
		argIdx += 2
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM attendance_events "+baseWhere, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, person_id, name, event_timestamp, COALESCE(confidence, 0), camera_id, received_at
		 FROM attendance_events %s ORDER BY event_timestamp DESC, id DESC LIMIT $%d OFFSET $%d`,
		baseWhere, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []models.Sighting{}
	for rows.Next() {
		var ev models.Sighting
		if err := rows.Scan(&ev.ID, &ev.PersonID, &ev.Name, &ev.EventTimestamp,
			&ev.Confidence, &ev.CameraID, &ev.ReceivedAt); err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate events: %w", err)
	}
	return events, total, nil
}

// --- Devices ---

func (s *PostgresStore) UpsertDevice(ctx context.Context, d models.DeviceStatus) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO device_status (device_id, last_heartbeat, fps, camera_ok)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (device_id) DO UPDATE
		 SET last_heartbeat = EXCLUDED.last_heartbeat, fps = EXCLUDED.fps, camera_ok = EXCLUDED.camera_ok`,
		d.DeviceID, d.LastHeartbeat, d.FPS, d.CameraOK)
	if err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDevices(ctx context.Context) ([]models.DeviceStatus, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT device_id, last_heartbeat, fps, camera_ok FROM device_status ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := []models.DeviceStatus{}
	for rows.Next() {
		var d models.DeviceStatus
		if err := rows.Scan(&d.DeviceID, &d.LastHeartbeat, &d.FPS, &d.CameraOK); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}
