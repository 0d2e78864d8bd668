package storage

import (
	"context"

	"github.com/lanternweb/download_manager/internal/telemetry"
)

// InstrumentedHistoryRepository wraps a HistoryRepository with telemetry.
type InstrumentedHistoryRepository struct {
	repo      HistoryRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedHistoryRepository creates a new instrumented history repository.
func NewInstrumentedHistoryRepository(repo HistoryRepository, tel *telemetry.Telemetry) *InstrumentedHistoryRepository {
	return &InstrumentedHistoryRepository{
		repo:      repo,
		telemetry: tel,
	}
}

func (r *InstrumentedHistoryRepository) Append(ctx context.Context, rec HistoryRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "history_append", func(ctx context.Context) error {
		return r.repo.Append(ctx, rec)
	})
}

func (r *InstrumentedHistoryRepository) List(ctx context.Context) ([]HistoryRecord, error) {
	var result []HistoryRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "history_list", func(ctx context.Context) error {
		var err error
		result, err = r.repo.List(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedHistoryRepository) Remove(ctx context.Context, id string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "history_remove", func(ctx context.Context) error {
		return r.repo.Remove(ctx, id)
	})
}

func (r *InstrumentedHistoryRepository) Clear(ctx context.Context, scope ClearScope) (int, error) {
	var removed int

	err := r.telemetry.InstrumentDBOperation(ctx, "history_clear", func(ctx context.Context) error {
		var err error
		removed, err = r.repo.Clear(ctx, scope)

		return err
	})

	return removed, err
}
