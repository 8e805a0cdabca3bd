package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/your-org/attendsense/internal/attendance"
	"github.com/your-org/attendsense/internal/keylock"
	"github.com/your-org/attendsense/internal/models"
)

// MemoryStore keeps all state in process. It backs tests and the
// single-binary dev mode; nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	events  []models.Sighting
	nextID  int64
	status  map[string]models.PresenceStatus
	devices map[string]models.DeviceStatus

	locks *keylock.Map
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		status:  make(map[string]models.PresenceStatus),
		devices: make(map[string]models.DeviceStatus),
		locks:   keylock.New(),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// WithPersonTx stages writes and applies them in one step once fn succeeds.
func (s *MemoryStore) WithPersonTx(ctx context.Context, personID string, fn func(tx attendance.Tx) error) error {
	unlock, err := s.locks.Lock(ctx, personID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range tx.events {
		s.events = append(s.events, *ev)
	}
	for _, st := range tx.status {
		s.status[st.PersonID] = st
	}
	return nil
}

type memoryTx struct {
	store  *MemoryStore
	events []*models.Sighting
	status []models.PresenceStatus
}

func (t *memoryTx) GetStatus(ctx context.Context, personID string) (*models.PresenceStatus, error) {
	for i := len(t.status) - 1; i >= 0; i-- {
		if t.status[i].PersonID == personID {
			st := t.status[i]
			return &st, nil
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	st, ok := t.store.status[personID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (t *memoryTx) AppendEvent(ctx context.Context, ev *models.Sighting) error {
	t.store.mu.Lock()
	t.store.nextID++
	ev.ID = t.store.nextID
	t.store.mu.Unlock()
	t.events = append(t.events, ev)
	return nil
}

func (t *memoryTx) UpsertStatus(ctx context.Context, st *models.PresenceStatus) error {
	t.status = append(t.status, *st)
	return nil
}

func (s *MemoryStore) ListPresent(ctx context.Context) ([]models.PresenceStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PresenceStatus, 0, len(s.status))
	for _, st := range s.status {
		if st.Present {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].PersonID < out[j].PersonID
	})
	return out, nil
}

func (s *MemoryStore) ListStatuses(ctx context.Context) ([]models.PresenceStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PresenceStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PersonID < out[j].PersonID })
	return out, nil
}

func (s *MemoryStore) MarkAbsent(ctx context.Context, cutoff time.Time) ([]models.PresenceStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []models.PresenceStatus
	for id, st := range s.status {
		if st.Present && st.LastSeen.Before(cutoff) {
			st.Present = false
			s.status[id] = st
			changed = append(changed, st)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].PersonID < changed[j].PersonID })
	return changed, nil
}

// ListEvents returns matching audit rows, newest event first, and the total
// number of matches before paging.
func (s *MemoryStore) ListEvents(ctx context.Context, f models.EventFilter) ([]models.Sighting, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.Sighting
	for _, ev := range s.events {
		if f.PersonID != "" && ev.PersonID != f.PersonID {
			continue
		}
		if f.CameraID != "" && ev.CameraID != f.CameraID {
			continue
		}
		if f.From != nil && ev.EventTimestamp.Before(*f.From) {
			continue
		}
		if f.To != nil && ev.EventTimestamp.After(*f.To) {
			continue
		}
		if f.Before != nil && !f.Before.Admits(ev) {
			continue
		}
		matched = append(matched, ev)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].EventTimestamp.Equal(matched[j].EventTimestamp) {
			return matched[i].EventTimestamp.After(matched[j].EventTimestamp)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	limit, offset := clampPage(f.Limit, f.Offset)
	if offset >= total {
		return []models.Sighting{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *MemoryStore) UpsertDevice(ctx context.Context, d models.DeviceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.DeviceID] = d
	return nil
}

func (s *MemoryStore) ListDevices(ctx context.Context) ([]models.DeviceStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.DeviceStatus, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
