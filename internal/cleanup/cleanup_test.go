package cleanup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lanternweb/download_manager/internal/storage"
	"github.com/lanternweb/download_manager/internal/storage/jsonfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneHistory(t *testing.T) {
	ctx := context.Background()
	repo := jsonfile.NewHistoryRepository(filepath.Join(t.TempDir(), "history.json"), 50)
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(ctx, storage.HistoryRecord{ID: "old", State: "completed", EndTime: now.Add(-72 * time.Hour)}))
	require.NoError(t, repo.Append(ctx, storage.HistoryRecord{ID: "new", State: "completed", EndTime: now.Add(-time.Hour)}))

	removed, err := PruneHistory(ctx, repo, 24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].ID)
}

func TestPruneHistory_DisabledRetention(t *testing.T) {
	ctx := context.Background()
	repo := jsonfile.NewHistoryRepository(filepath.Join(t.TempDir(), "history.json"), 50)

	require.NoError(t, repo.Append(ctx, storage.HistoryRecord{ID: "old", EndTime: time.Unix(0, 0)}))

	removed, err := PruneHistory(ctx, repo, 0, time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)

	records, _ := repo.List(ctx)
	assert.Len(t, records, 1)
}

func TestRun_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := jsonfile.NewHistoryRepository(filepath.Join(t.TempDir(), "history.json"), 50)

	done := make(chan error, 1)

	go func() { done <- Run(ctx, repo, 10*time.Millisecond, time.Hour) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
