package attendance

import (
	"context"
	"log/slog"
	"time"

	"github.com/your-org/attendsense/internal/keylock"
	"github.com/your-org/attendsense/internal/models"
	"github.com/your-org/attendsense/internal/observability"
)

const DefaultDedupWindow = 30 * time.Second

const defaultStoreTimeout = 5 * time.Second

type Outcome int

const (
	OutcomeAccepted Outcome = iota + 1
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Result describes what Ingest did with a sighting.
type Result struct {
	Outcome Outcome
	// Status is the presence row after the call. Unchanged for a duplicate.
	Status models.PresenceStatus
	// Event is the audit row written, nil for a duplicate.
	Event *models.Sighting
	// Change is what subscribers were told, nil for a duplicate.
	Change *models.PresenceChange
}

func (r Result) Accepted() bool { return r.Outcome == OutcomeAccepted }

type Options struct {
	DedupWindow  time.Duration
	StoreTimeout time.Duration
	Clock        Clock
	Publisher    Publisher
}

// Processor turns sightings into audit rows and presence updates, dropping
// repeats of the same person inside the dedup window.
type Processor struct {
	store     Store
	window    time.Duration
	timeout   time.Duration
	clock     Clock
	publisher Publisher
	locks     *keylock.Map
}

func NewProcessor(store Store, opts Options) *Processor {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = DefaultDedupWindow
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	return &Processor{
		store:     store,
		window:    opts.DedupWindow,
		timeout:   opts.StoreTimeout,
		clock:     opts.Clock,
		publisher: opts.Publisher,
		locks:     keylock.New(),
	}
}

func (p *Processor) DedupWindow() time.Duration { return p.window }

// Ingest applies the dedup rule to one sighting. A duplicate is reported in
// the Result, never as an error. Errors are *ValidationError or *StorageError.
func (p *Processor) Ingest(ctx context.Context, in models.SightingInput) (Result, error) {
	if err := Validate(in); err != nil {
		return Result{}, err
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	unlock, err := p.locks.Lock(ctx, in.PersonID)
	if err != nil {
		observability.StorageErrors.WithLabelValues("lock person").Inc()
		return Result{}, &StorageError{Op: "lock person", Err: err}
	}
	defer unlock()

	var res Result
	err = p.store.WithPersonTx(ctx, in.PersonID, func(tx Tx) error {
		existing, err := tx.GetStatus(ctx, in.PersonID)
		if err != nil {
			return &StorageError{Op: "get status", Err: err}
		}

		if p.isDuplicate(existing, in.EventTimestamp) {
			res = Result{Outcome: OutcomeDuplicate, Status: *existing}
			return nil
		}

		ev := &models.Sighting{
			PersonID:       in.PersonID,
			Name:           in.Name,
			EventTimestamp: in.EventTimestamp,
			Confidence:     in.Confidence,
			CameraID:       in.CameraID,
			ReceivedAt:     p.clock.Now(),
		}
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return &StorageError{Op: "append event", Err: err}
		}

		next, kind := advance(existing, in)
		if err := tx.UpsertStatus(ctx, &next); err != nil {
			return &StorageError{Op: "upsert status", Err: err}
		}

		res = Result{
			Outcome: OutcomeAccepted,
			Status:  next,
			Event:   ev,
			Change: &models.PresenceChange{
				Kind:      kind,
				PersonID:  next.PersonID,
				Name:      next.Name,
				CameraID:  in.CameraID,
				FirstSeen: next.FirstSeen,
				LastSeen:  next.LastSeen,
				Present:   true,
				At:        ev.ReceivedAt,
			},
		}
		return nil
	})
	if err != nil {
		se := asStorageError("transaction", err)
		observability.StorageErrors.WithLabelValues(se.Op).Inc()
		return Result{}, se
	}

	observability.IngestDuration.Observe(time.Since(start).Seconds())
	observability.SightingsIngested.WithLabelValues(res.Outcome.String()).Inc()

	if res.Change != nil {
		p.publish(ctx, *res.Change)
	}
	return res, nil
}

// isDuplicate reports whether ts falls within the window around the last
// accepted sighting. Out-of-order sightings count too, so the window is
// symmetric around last_seen. Presence plays no part: absence is decided
// on the server clock and last_seen is camera time.
func (p *Processor) isDuplicate(existing *models.PresenceStatus, ts time.Time) bool {
	if existing == nil {
		return false
	}
	elapsed := ts.Sub(existing.LastSeen)
	return elapsed < p.window && elapsed > -p.window
}

// advance computes the presence row after an accepted sighting. last_seen
// only moves forward and first_seen only moves back.
func advance(existing *models.PresenceStatus, in models.SightingInput) (models.PresenceStatus, models.ChangeKind) {
	if existing == nil {
		return models.PresenceStatus{
			PersonID:  in.PersonID,
			Name:      in.Name,
			FirstSeen: in.EventTimestamp,
			LastSeen:  in.EventTimestamp,
			Present:   true,
		}, models.ChangeArrived
	}

	next := *existing
	if in.EventTimestamp.After(next.LastSeen) {
		next.LastSeen = in.EventTimestamp
	}
	if in.EventTimestamp.Before(next.FirstSeen) {
		next.FirstSeen = in.EventTimestamp
	}
	kind := models.ChangeSeen
	if !existing.Present {
		kind = models.ChangeArrived
	}
	next.Present = true
	return next, kind
}

// ListPresent returns everyone currently present, most recently seen first.
func (p *Processor) ListPresent(ctx context.Context) ([]models.PresenceStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows, err := p.store.ListPresent(ctx)
	if err != nil {
		observability.StorageErrors.WithLabelValues("list present").Inc()
		return nil, &StorageError{Op: "list present", Err: err}
	}
	return rows, nil
}

func (p *Processor) publish(ctx context.Context, change models.PresenceChange) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishPresence(ctx, change); err != nil {
		slog.Warn("publish presence change", "person_id", change.PersonID, "kind", change.Kind, "error", err)
	}
}
