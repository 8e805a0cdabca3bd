package attendance

import (
	"errors"
	"fmt"
	"strings"

	"github.com/your-org/attendsense/internal/models"
)

// ErrStorage matches any *StorageError with errors.Is.
var ErrStorage = errors.New("storage failure")

// StorageError reports that the durable store was unavailable, timed out or
// rejected a write. The sighting was not recorded; none of its writes are visible.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// ValidationError reports a missing or malformed sighting field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks the fields the dedup rule depends on. Confidence and
// camera id are passed through untouched.
func Validate(in models.SightingInput) error {
	if strings.TrimSpace(in.PersonID) == "" {
		return &ValidationError{Field: "person_id", Reason: "required"}
	}
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if in.EventTimestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "required"}
	}
	return nil
}

func asStorageError(op string, err error) *StorageError {
	var se *StorageError
	if errors.As(err, &se) {
		return se
	}
	return &StorageError{Op: op, Err: err}
}
