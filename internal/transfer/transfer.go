package transfer

import (
	"context"
	"strings"
	"time"
)

// State is the lifecycle state of a transfer.
type State string

const (
	StatePending     State = "pending"
	StateProgressing State = "progressing"
	StatePaused      State = "paused"
	StateCompleted   State = "completed"
	StateCancelled   State = "cancelled"
	StateInterrupted State = "interrupted"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateInterrupted
}

// MapTransportState folds a transport's own terminal label into one of the
// three terminal states. Anything unrecognised is an interruption.
func MapTransportState(label string) State {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "completed", "complete", "done", "finished":
		return StateCompleted
	case "cancelled", "canceled":
		return StateCancelled
	default:
		return StateInterrupted
	}
}

// Record is a point-in-time copy of a live transfer.
type Record struct {
	ID            string    `json:"id"`
	URLChain      []string  `json:"urlChain"`
	Filename      string    `json:"filename"`
	SavePath      string    `json:"savePath"`
	TotalBytes    int64     `json:"totalBytes"`
	ReceivedBytes int64     `json:"receivedBytes"`
	State         State     `json:"state"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	Speed         float64   `json:"speed"`
	ETA           int64     `json:"estimatedTimeRemaining"`
	IsPaused      bool      `json:"isPaused"`
}

// OriginURL is the URL the transfer started from.
func (r Record) OriginURL() string {
	if len(r.URLChain) == 0 {
		return ""
	}

	return r.URLChain[0]
}

// FinalURL is the URL reached after redirects.
func (r Record) FinalURL() string {
	if len(r.URLChain) == 0 {
		return ""
	}

	return r.URLChain[len(r.URLChain)-1]
}

// Handle is the transport's control surface for one transfer. Calls request
// an effect; the outcome is observed through later callbacks.
type Handle interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Cancel(ctx context.Context) error
}

// PathAwareHandle is implemented by handles that want to be told where the
// transfer must be written once the save path is locked.
type PathAwareHandle interface {
	Handle
	SetSavePath(path string)
}

type noControlHandle struct{}

func (noControlHandle) Pause(context.Context) error  { return ErrNoControl }
func (noControlHandle) Resume(context.Context) error { return ErrNoControl }
func (noControlHandle) Cancel(context.Context) error { return ErrNoControl }
