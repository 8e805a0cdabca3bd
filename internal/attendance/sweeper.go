package attendance

import (
	"context"
	"log/slog"
	"time"

	"github.com/your-org/attendsense/internal/models"
	"github.com/your-org/attendsense/internal/observability"
)

// Sweeper marks people absent once they have not been seen for AbsentAfter.
// It never touches the audit log and never sets anyone present.
type Sweeper struct {
	store       AbsenceMarker
	clock       Clock
	absentAfter time.Duration
	timeout     time.Duration
	publisher   Publisher
}

type SweeperOptions struct {
	AbsentAfter  time.Duration
	StoreTimeout time.Duration
	Clock        Clock
	Publisher    Publisher
}

func NewSweeper(store AbsenceMarker, opts SweeperOptions) *Sweeper {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	return &Sweeper{
		store:       store,
		clock:       opts.Clock,
		absentAfter: opts.AbsentAfter,
		timeout:     opts.StoreTimeout,
		publisher:   opts.Publisher,
	}
}

// Sweep flips stale present rows to absent and returns how many changed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.clock.Now()
	rows, err := s.store.MarkAbsent(ctx, now.Add(-s.absentAfter))
	if err != nil {
		observability.StorageErrors.WithLabelValues("mark absent").Inc()
		return 0, &StorageError{Op: "mark absent", Err: err}
	}

	observability.PersonsMarkedAbsent.Add(float64(len(rows)))
	for _, st := range rows {
		slog.Info("person marked absent", "person_id", st.PersonID, "last_seen", st.LastSeen)
		if s.publisher == nil {
			continue
		}
		change := models.PresenceChange{
			Kind:      models.ChangeLeft,
			PersonID:  st.PersonID,
			Name:      st.Name,
			FirstSeen: st.FirstSeen,
			LastSeen:  st.LastSeen,
			Present:   false,
			At:        now,
		}
		if err := s.publisher.PublishPresence(ctx, change); err != nil {
			slog.Warn("publish presence change", "person_id", st.PersonID, "kind", change.Kind, "error", err)
		}
	}
	return len(rows), nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.Warn("presence sweep", "error", err)
			}
		}
	}
}
