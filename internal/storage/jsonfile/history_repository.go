// Package jsonfile persists the download history as a JSON list in a single
// file, newest entry first.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/lanternweb/download_manager/internal/logctx"
	"github.com/lanternweb/download_manager/internal/storage"
)

const filePerm = 0o644

// HistoryRepository implements storage.HistoryRepository on top of a JSON
// file. Every operation holds both an in-process mutex and an advisory file
// lock for its whole read-modify-write.
type HistoryRepository struct {
	path  string
	limit int

	mu   sync.Mutex
	lock *flock.Flock
}

func NewHistoryRepository(path string, limit int) *HistoryRepository {
	if limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}

	return &HistoryRepository{
		path:  path,
		limit: limit,
		lock:  flock.New(path + ".lock"),
	}
}

func (r *HistoryRepository) Append(ctx context.Context, rec storage.HistoryRecord) error {
	return r.update(ctx, "append", func(records []storage.HistoryRecord) ([]storage.HistoryRecord, error) {
		return storage.Prepend(records, rec, r.limit), nil
	})
}

func (r *HistoryRepository) List(ctx context.Context) ([]storage.HistoryRecord, error) {
	var out []storage.HistoryRecord

	err := r.withLock(func() error {
		out = r.read(ctx)

		return nil
	})

	return out, err
}

func (r *HistoryRepository) Remove(ctx context.Context, id string) error {
	return r.update(ctx, "remove", func(records []storage.HistoryRecord) ([]storage.HistoryRecord, error) {
		kept := records[:0]

		for _, rec := range records {
			if rec.ID != id {
				kept = append(kept, rec)
			}
		}

		return kept, nil
	})
}

func (r *HistoryRepository) Clear(ctx context.Context, scope storage.ClearScope) (int, error) {
	var removed int

	err := r.update(ctx, "clear", func(records []storage.HistoryRecord) ([]storage.HistoryRecord, error) {
		kept := records[:0]

		for _, rec := range records {
			if scope.Matches(rec) {
				removed++

				continue
			}

			kept = append(kept, rec)
		}

		return kept, nil
	})

	return removed, err
}

func (r *HistoryRepository) update(
	ctx context.Context, op string, mutate func([]storage.HistoryRecord) ([]storage.HistoryRecord, error),
) error {
	err := r.withLock(func() error {
		records, err := mutate(r.read(ctx))
		if err != nil {
			return err
		}

		return r.write(records)
	})
	if err != nil {
		return &storage.PersistenceError{Operation: op, Err: err}
	}

	return nil
}

func (r *HistoryRepository) withLock(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	if err := r.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock history file: %w", err)
	}

	defer func() {
		_ = r.lock.Unlock()
	}()

	return fn()
}

// read loads the stored list. A missing or unreadable file is an empty
// history.
func (r *HistoryRepository) read(ctx context.Context) []storage.HistoryRecord {
	logger := logctx.LoggerFromContext(ctx)

	data, err := os.ReadFile(r.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to read history file, starting empty", "path", r.path, "err", err)
		}

		return nil
	}

	if len(data) == 0 {
		return nil
	}

	var records []storage.HistoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		logger.Warn("history file is corrupt, starting empty", "path", r.path, "err", err)

		return nil
	}

	if len(records) > r.limit {
		records = records[:r.limit]
	}

	return records
}

// write replaces the file atomically through a temp file and rename.
func (r *HistoryRepository) write(records []storage.HistoryRecord) error {
	if records == nil {
		records = []storage.HistoryRecord{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}

	if err := os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("failed to replace history file: %w", err)
	}

	return nil
}
