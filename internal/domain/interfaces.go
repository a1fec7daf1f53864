package domain

import (
	"context"
	"errors"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Store persists snapshots keyed by player key, optionally per calendar date,
// plus the pending daily summary awaiting acknowledgement.
//
// Every write is a full replacement, so repeating a write is harmless.
type Store interface {
	// Load returns the latest snapshot for key.
	// ErrSnapshotNotFound if none exists, ErrSnapshotCorrupt if undecodable.
	Load(ctx context.Context, key string) (*Snapshot, error)
	Save(ctx context.Context, key string, snap Snapshot) error

	// LoadByDate returns the baseline snapshot stored for (key, date).
	LoadByDate(ctx context.Context, key string, date Date) (*Snapshot, error)
	SaveDated(ctx context.Context, key string, date Date, snap Snapshot) error

	// PendingSummary returns the newest unconsumed summary, or ErrSummaryNotFound.
	PendingSummary(ctx context.Context, key string) (*DailySummary, error)
	SavePendingSummary(ctx context.Context, key string, sum DailySummary) error
	// ConsumeSummary marks the summary for date (and any older one) consumed
	// and returns it. A second call for the same date returns ErrSummaryNotFound.
	ConsumeSummary(ctx context.Context, key string, date Date) (*DailySummary, error)

	Ping(ctx context.Context) error
	Close() error
}

// Narrator produces short flavor text. Implementations may be slow or fail;
// callers always bound the call and fall back to fixed text.
type Narrator interface {
	RivalReason(ctx context.Context, rivalName string, behavior RivalBehavior, xpGained float64) (string, error)
	NotificationText(ctx context.Context, streak int, rivalName string, rivalXP, userXP float64) (string, error)
	AntiCheatJustification(ctx context.Context, userActions string, checksPassed bool) (string, error)
}

// Write is one unit of persistence produced by the game owner. Fields left
// nil or empty are not written. Applying a Write twice is harmless.
type Write struct {
	Key string `json:"key"`

	Snapshot *Snapshot `json:"snapshot,omitempty"`

	// Baseline is stored under (Key, BaselineDate) as the start-of-day state.
	Baseline     *Snapshot `json:"baseline,omitempty"`
	BaselineDate Date      `json:"baseline_date,omitempty"`

	Summary        *DailySummary `json:"summary,omitempty"`
	ConsumeSummary Date          `json:"consume_summary,omitempty"`

	// Earlier holds summaries for older days displaced from Summary by Merge,
	// oldest first. They are stored before Summary.
	Earlier []DailySummary `json:"earlier,omitempty"`
}

// Merge folds newer into w. The newer snapshot wins; baselines, summaries
// and acknowledgements carried only by w are kept so nothing is lost.
func (w Write) Merge(newer Write) Write {
	out := w
	if newer.Snapshot != nil {
		out.Snapshot = newer.Snapshot
	}
	if newer.Baseline != nil {
		out.Baseline = newer.Baseline
		out.BaselineDate = newer.BaselineDate
	}
	out.Earlier = append(append([]DailySummary(nil), w.Earlier...), newer.Earlier...)
	if newer.Summary != nil {
		if w.Summary != nil && w.Summary.Date != newer.Summary.Date {
			out.Earlier = append(out.Earlier, *w.Summary)
		}
		out.Summary = newer.Summary
	}
	if len(out.Earlier) == 0 {
		out.Earlier = nil
	}
	if !newer.ConsumeSummary.IsZero() {
		out.ConsumeSummary = newer.ConsumeSummary
	}
	return out
}

// Apply performs w against s in dependency order: the summary first, then
// its acknowledgement, then the baseline, and the live snapshot last.
func (w Write) Apply(ctx context.Context, s Store) error {
	for _, sum := range w.Earlier {
		if err := s.SavePendingSummary(ctx, w.Key, sum); err != nil {
			return err
		}
	}
	if w.Summary != nil {
		if err := s.SavePendingSummary(ctx, w.Key, *w.Summary); err != nil {
			return err
		}
	}
	if !w.ConsumeSummary.IsZero() {
		if _, err := s.ConsumeSummary(ctx, w.Key, w.ConsumeSummary); err != nil && !errors.Is(err, ErrSummaryNotFound) {
			return err
		}
	}
	if w.Baseline != nil {
		if err := s.SaveDated(ctx, w.Key, w.BaselineDate, *w.Baseline); err != nil {
			return err
		}
	}
	if w.Snapshot != nil {
		if err := s.Save(ctx, w.Key, *w.Snapshot); err != nil {
			return err
		}
	}
	return nil
}
