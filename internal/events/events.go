// Package events defines the lifecycle notifications streamed to the
// download observer.
package events

import "time"

const (
	NameStarted  = "download-started"
	NameProgress = "download-progress"
	NameComplete = "download-complete"
)

// Started is emitted once when a transfer is registered. Path is always
// empty: the save path is not decided yet.
type Started struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Path       string    `json:"path"`
	TotalBytes int64     `json:"totalBytes"`
	StartTime  time.Time `json:"startTime"`
	IsPaused   bool      `json:"isPaused"`
}

// Progress is emitted on every byte update and after every control command.
type Progress struct {
	ID                     string  `json:"id"`
	ReceivedBytes          int64   `json:"receivedBytes"`
	TotalBytes             int64   `json:"totalBytes"`
	State                  string  `json:"state"`
	Speed                  float64 `json:"speed"`
	EstimatedTimeRemaining int64   `json:"estimatedTimeRemaining"`
	IsPaused               bool    `json:"isPaused"`
}

// Complete is emitted exactly once per transfer. TotalBytes carries the bytes
// actually received.
type Complete struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Path       string    `json:"path"`
	TotalBytes int64     `json:"totalBytes"`
	State      string    `json:"state"`
	EndTime    time.Time `json:"endTime"`
}

// Event is the envelope carried on the observer channel.
type Event struct {
	Name    string
	Payload any
}

// DownloadID returns the transfer id of the wrapped payload.
func (e Event) DownloadID() string {
	switch p := e.Payload.(type) {
	case Started:
		return p.ID
	case Progress:
		return p.ID
	case Complete:
		return p.ID
	default:
		return ""
	}
}
