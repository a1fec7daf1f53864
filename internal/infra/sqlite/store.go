package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tutu-network/rivals/internal/domain"
)

// ─── Snapshots ──────────────────────────────────────────────────────────────

// Load returns the latest snapshot for key.
func (d *DB) Load(ctx context.Context, key string) (*domain.Snapshot, error) {
	var data string
	err := d.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Save replaces the latest snapshot for key.
func (d *DB) Save(ctx context.Context, key string, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO snapshots (key, generation, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET generation=excluded.generation, data=excluded.data, updated_at=excluded.updated_at`,
		key, int64(snap.Generation), string(data), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadByDate returns the baseline stored for (key, date).
func (d *DB) LoadByDate(ctx context.Context, key string, date domain.Date) (*domain.Snapshot, error) {
	var data string
	err := d.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots_dated WHERE key = ? AND date = ?`, key, string(date),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load dated snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// SaveDated replaces the baseline for (key, date).
func (d *DB) SaveDated(ctx context.Context, key string, date domain.Date, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO snapshots_dated (key, date, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key, date) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`,
		key, string(date), string(data), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save dated snapshot: %w", err)
	}
	return nil
}

// PruneDated deletes baselines dated before the given date.
func (d *DB) PruneDated(ctx context.Context, key string, before domain.Date) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM snapshots_dated WHERE key = ? AND date < ?`, key, string(before))
	if err != nil {
		return 0, fmt.Errorf("prune dated snapshots: %w", err)
	}
	return res.RowsAffected()
}

// ─── Summaries ──────────────────────────────────────────────────────────────

// PendingSummary returns the newest unconsumed summary for key.
func (d *DB) PendingSummary(ctx context.Context, key string) (*domain.DailySummary, error) {
	var data string
	err := d.db.QueryRowContext(ctx,
		`SELECT data FROM summaries WHERE key = ? AND consumed_at IS NULL ORDER BY date DESC LIMIT 1`, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSummaryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load pending summary: %w", err)
	}
	return decodeSummary(data)
}

// SavePendingSummary stores sum as pending. A summary that was already
// consumed stays consumed.
func (d *DB) SavePendingSummary(ctx context.Context, key string, sum domain.DailySummary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO summaries (key, date, data, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key, date) DO UPDATE SET data=excluded.data
		 WHERE summaries.consumed_at IS NULL`,
		key, string(sum.Date), string(data), sum.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// ConsumeSummary marks the summary for date, and every older pending one,
// consumed. It returns the summary for date, or ErrSummaryNotFound when it
// was missing or already consumed.
func (d *DB) ConsumeSummary(ctx context.Context, key string, date domain.Date) (*domain.DailySummary, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM summaries WHERE key = ? AND date = ? AND consumed_at IS NULL`, key, string(date),
	).Scan(&data)
	found := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load summary: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE summaries SET consumed_at = ? WHERE key = ? AND date <= ? AND consumed_at IS NULL`,
		time.Now().Unix(), key, string(date),
	); err != nil {
		return nil, fmt.Errorf("consume summary: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if !found {
		return nil, domain.ErrSummaryNotFound
	}
	return decodeSummary(data)
}

// SummaryHistory returns up to limit summaries, newest first, consumed or not.
func (d *DB) SummaryHistory(ctx context.Context, key string, limit int) ([]domain.DailySummary, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT data FROM summaries WHERE key = ? ORDER BY date DESC LIMIT ?`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []domain.DailySummary
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		sum, err := decodeSummary(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *sum)
	}
	return out, rows.Err()
}

// Reset deletes every row for key.
func (d *DB) Reset(ctx context.Context, key string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	for _, q := range []string{
		`DELETE FROM snapshots WHERE key = ?`,
		`DELETE FROM snapshots_dated WHERE key = ?`,
		`DELETE FROM summaries WHERE key = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, key); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	return tx.Commit()
}

func decodeSnapshot(data string) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSnapshotCorrupt, err)
	}
	return &snap, nil
}

func decodeSummary(data string) (*domain.DailySummary, error) {
	var sum domain.DailySummary
	if err := json.Unmarshal([]byte(data), &sum); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &sum, nil
}

var _ domain.Store = (*DB)(nil)
