package storage

import "fmt"

// PersistenceError represents a failed read or write of the history store.
// Callers log it; it never aborts a transfer.
type PersistenceError struct {
	Operation string // The store operation that failed (e.g., "append", "clear")
	Err       error  // Underlying error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s failed: %v", e.Operation, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
