// Package store persists finished optimisation runs and their evaluation
// traces on the filesystem.
package store

// Store defines run result persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if the run doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// Save atomically writes the record, replacing any previous record with
	// the same ID.
	Save(record *RunRecord) error

	// Load retrieves a run by ID.
	Load(id string) (*RunRecord, error)

	// List returns summaries of all stored runs, newest first.
	List() ([]RunInfo, error)

	// Delete removes the run and its trace.
	Delete(id string) error
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return "run not found: " + e.ID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
