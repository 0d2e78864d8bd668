package cleanup

import (
	"context"
	"time"

	"github.com/lanternweb/download_manager/internal/logctx"
	"github.com/lanternweb/download_manager/internal/storage"
)

// PruneHistory removes history entries that ended more than keepFor before
// now. A non-positive keepFor keeps everything.
func PruneHistory(ctx context.Context, repo storage.HistoryRepository, keepFor time.Duration, now time.Time) (int, error) {
	if keepFor <= 0 {
		return 0, nil
	}

	logger := logctx.LoggerFromContext(ctx)

	removed, err := repo.Clear(ctx, storage.ClearOlderThan(now.Add(-keepFor)))
	if err != nil {
		logger.Error("failed to prune history", "err", err)

		return 0, err
	}

	if removed > 0 {
		logger.Info("pruned expired history entries", "removed", removed, "retention", keepFor.String())
	}

	return removed, nil
}

// Run prunes the history every interval until ctx is done.
func Run(ctx context.Context, repo storage.HistoryRepository, interval, keepFor time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)

	if interval <= 0 || keepFor <= 0 {
		logger.Info("history pruning disabled")

		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup goroutine shutting down.")

			return nil
		case now := <-ticker.C:
			_, _ = PruneHistory(ctx, repo, keepFor, now)
		}
	}
}
