package storage

import (
	"context"
	"time"
)

// DefaultHistoryLimit is the number of entries a history keeps when no
// limit is configured.
const DefaultHistoryLimit = 50

// HistoryRecord is the persisted snapshot of a transfer that reached a
// terminal state.
type HistoryRecord struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Path       string    `json:"path"`
	TotalBytes int64     `json:"totalBytes"`
	State      string    `json:"state"`
	EndTime    time.Time `json:"endTime"`
}

// ClearScope selects which entries Clear removes. The zero value removes
// everything.
type ClearScope struct {
	before time.Time
}

// ClearAll removes every entry.
func ClearAll() ClearScope {
	return ClearScope{}
}

// ClearOlderThan removes entries whose end time is before t.
func ClearOlderThan(t time.Time) ClearScope {
	return ClearScope{before: t}
}

// Before returns the cutoff of an age-bounded scope.
func (s ClearScope) Before() (time.Time, bool) {
	return s.before, !s.before.IsZero()
}

// Matches reports whether rec falls in the scope.
func (s ClearScope) Matches(rec HistoryRecord) bool {
	if s.before.IsZero() {
		return true
	}

	return rec.EndTime.Before(s.before)
}

// HistoryRepository is the bounded, newest-first log of finished transfers.
// Implementations run each method as one atomic read-modify-write.
type HistoryRepository interface {
	Append(ctx context.Context, rec HistoryRecord) error
	List(ctx context.Context) ([]HistoryRecord, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context, scope ClearScope) (int, error)
}

// Prepend puts rec in front of records and truncates the result to limit.
func Prepend(records []HistoryRecord, rec HistoryRecord, limit int) []HistoryRecord {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	out := make([]HistoryRecord, 0, min(len(records)+1, limit))
	out = append(out, rec)

	for _, r := range records {
		if len(out) == limit {
			break
		}

		out = append(out, r)
	}

	return out
}
