package attendance

import (
	"context"
	"time"

	"github.com/your-org/attendsense/internal/models"
)

// Tx is the view of the store inside a single person-scoped transaction.
type Tx interface {
	// GetStatus returns nil, nil when the person has never been seen.
	GetStatus(ctx context.Context, personID string) (*models.PresenceStatus, error)
	// AppendEvent adds ev to the audit log and fills in ev.ID.
	AppendEvent(ctx context.Context, ev *models.Sighting) error
	UpsertStatus(ctx context.Context, st *models.PresenceStatus) error
}

// Store is the durable state behind the Processor.
type Store interface {
	// WithPersonTx runs fn in one transaction holding an exclusive lock on
	// personID, including a person with no row yet. Writes made through tx
	// become visible together if fn returns nil and not at all otherwise.
	WithPersonTx(ctx context.Context, personID string, fn func(tx Tx) error) error
	ListPresent(ctx context.Context) ([]models.PresenceStatus, error)
}

// AbsenceMarker flips present rows whose last_seen is before cutoff and
// returns the rows it changed.
type AbsenceMarker interface {
	MarkAbsent(ctx context.Context, cutoff time.Time) ([]models.PresenceStatus, error)
}

// Publisher receives presence changes after they are committed.
type Publisher interface {
	PublishPresence(ctx context.Context, change models.PresenceChange) error
}
