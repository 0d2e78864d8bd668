package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrNoControl is returned by handles of transfers that were registered
	// without a way to reach the transport.
	ErrNoControl = errors.New("transfer has no control channel")

	// ErrEmptyURLChain is returned when a transfer is begun without any URL.
	ErrEmptyURLChain = errors.New("url chain must not be empty")
)

// TransportError represents a failure to deliver a pause/resume/cancel
// request to the transport, including non-2xx answers from the hosting
// engine.
type TransportError struct {
	Operation  string // The command that failed (e.g., "pause", "cancel")
	TransferID string // The transfer the command was addressed to
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	Err        error  // Underlying error, if any
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error during %s of %s (HTTP %d)", e.Operation, e.TransferID, e.StatusCode)
	}

	if e.Err != nil {
		return fmt.Sprintf("transport error during %s of %s: %v", e.Operation, e.TransferID, e.Err)
	}

	return fmt.Sprintf("transport error during %s of %s", e.Operation, e.TransferID)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
