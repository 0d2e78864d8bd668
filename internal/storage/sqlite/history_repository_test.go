package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/lanternweb/download_manager/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T, limit int) *HistoryRepository {
	t.Helper()

	db, err := InitDB(filepath.Join(t.TempDir(), "downloads.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return NewHistoryRepository(db, limit)
}

func rec(i int, end time.Time) storage.HistoryRecord {
	return storage.HistoryRecord{
		ID:         fmt.Sprintf("d%02d", i),
		Filename:   fmt.Sprintf("f%02d.bin", i),
		Path:       fmt.Sprintf("/tmp/f%02d.bin", i),
		TotalBytes: int64(i),
		State:      "completed",
		EndTime:    end,
	}
}

func TestAppend_CapsAtLimitNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, 50)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 60; i++ {
		require.NoError(t, repo.Append(ctx, rec(i, base.Add(time.Duration(i)*time.Second))))
	}

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 50)
	assert.Equal(t, "d59", list[0].ID)
	assert.Equal(t, "d10", list[49].ID)

	var count int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM download_history`).Scan(&count))
	assert.Equal(t, 50, count)
}

func TestAppend_RoundTripsFields(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, 50)
	end := time.Date(2024, 5, 1, 12, 30, 0, 123, time.UTC)

	want := storage.HistoryRecord{
		ID:         "abc",
		Filename:   "f.bin",
		Path:       "/downloads/f.bin",
		TotalBytes: 500,
		State:      "interrupted",
		EndTime:    end,
	}
	require.NoError(t, repo.Append(ctx, want))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, want, list[0])
}

func TestAppend_SameIDMovesToFront(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, 50)
	now := time.Now()

	require.NoError(t, repo.Append(ctx, rec(1, now)))
	require.NoError(t, repo.Append(ctx, rec(2, now)))
	require.NoError(t, repo.Append(ctx, rec(1, now)))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "d01", list[0].ID)
}

func TestRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, 50)
	cutoff := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(ctx, rec(0, cutoff.Add(-2*time.Hour))))
	require.NoError(t, repo.Append(ctx, rec(1, cutoff.Add(-time.Hour))))
	require.NoError(t, repo.Append(ctx, rec(2, cutoff.Add(time.Hour))))
	require.NoError(t, repo.Append(ctx, rec(3, cutoff.Add(2*time.Hour))))

	require.NoError(t, repo.Remove(ctx, "d03"))

	n, err := repo.Clear(ctx, storage.ClearOlderThan(cutoff))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "d02", list[0].ID)

	n, err = repo.Clear(ctx, storage.ClearAll())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRemoveAndClear_WrapStoreErrors(t *testing.T) {
	db, err := InitDB(filepath.Join(t.TempDir(), "downloads.db"))
	require.NoError(t, err)

	repo := NewHistoryRepository(db, 50)
	require.NoError(t, db.Close())

	var perr *storage.PersistenceError

	err = repo.Remove(context.Background(), "d01")
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "remove", perr.Operation)

	_, err = repo.Clear(context.Background(), storage.ClearAll())
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "clear", perr.Operation)
}
