package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lanternweb/download_manager/internal/storage"
)

// HistoryRepository implements storage.HistoryRepository on a SQLite table.
// Insertion order (seq) defines newest-first.
type HistoryRepository struct {
	db    *sql.DB
	limit int
}

func NewHistoryRepository(db *sql.DB, limit int) *HistoryRepository {
	if limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}

	return &HistoryRepository{db: db, limit: limit}
}

// Append inserts rec and trims the table to the newest limit rows in one
// transaction. Re-appending an id moves it to the front.
func (r *HistoryRepository) Append(ctx context.Context, rec storage.HistoryRecord) error {
	if err := r.append(ctx, rec); err != nil {
		return &storage.PersistenceError{Operation: "append", Err: err}
	}

	return nil
}

func (r *HistoryRepository) append(ctx context.Context, rec storage.HistoryRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM download_history WHERE id = ?`, rec.ID); err != nil {
		return fmt.Errorf("failed to replace history entry: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO download_history (id, filename, path, total_bytes, state, end_time) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Filename, rec.Path, rec.TotalBytes, rec.State, rec.EndTime.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM download_history
		WHERE seq NOT IN (SELECT seq FROM download_history ORDER BY seq DESC LIMIT ?)`,
		r.limit,
	)
	if err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}

	return tx.Commit()
}

func (r *HistoryRepository) List(ctx context.Context) ([]storage.HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, filename, path, total_bytes, state, end_time
		FROM download_history
		ORDER BY seq DESC
		LIMIT ?`, r.limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.HistoryRecord

	for rows.Next() {
		var (
			rec     storage.HistoryRecord
			endTime int64
		)

		if err := rows.Scan(&rec.ID, &rec.Filename, &rec.Path, &rec.TotalBytes, &rec.State, &endTime); err != nil {
			return nil, err
		}

		rec.EndTime = time.Unix(0, endTime).UTC()
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (r *HistoryRepository) Remove(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM download_history WHERE id = ?`, id); err != nil {
		return &storage.PersistenceError{Operation: "remove", Err: err}
	}

	return nil
}

func (r *HistoryRepository) Clear(ctx context.Context, scope storage.ClearScope) (int, error) {
	var (
		res sql.Result
		err error
	)

	if before, ok := scope.Before(); ok {
		res, err = r.db.ExecContext(ctx, `DELETE FROM download_history WHERE end_time < ?`, before.UnixNano())
	} else {
		res, err = r.db.ExecContext(ctx, `DELETE FROM download_history`)
	}

	if err != nil {
		return 0, &storage.PersistenceError{Operation: "clear", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, &storage.PersistenceError{Operation: "clear", Err: err}
	}

	return int(affected), nil
}
