package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tutu-network/rivals/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleSnapshot() domain.Snapshot {
	started := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	return domain.Snapshot{
		Generation: 3,
		Player:     domain.Player{Name: "Ash", XP: 135, Level: 2},
		Rivals: []domain.Rival{
			{ID: "jessie", Name: "Jessie", XP: 25, Level: 1, Behavior: domain.BehaviorFocused},
		},
		Tasks: []domain.Task{
			{ID: "task-1", Name: "Catch a Pidgey", Difficulty: domain.DifficultyEasy, Duration: 10, TimeLocked: true, StartTime: &started},
		},
		Achievements: []domain.Achievement{
			{ID: "ach-1", Name: "First Step", Kind: domain.KindFirstTask, Unlocked: true},
		},
		Streak:          2,
		LastPlayedDate:  "2025-07-01",
		LastSummaryDate: "2025-07-01",
		LastSimulatedAt: started,
	}
}

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "state.db")); os.IsNotExist(err) {
		t.Error("state.db should exist")
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := db.Save(ctx, "ash", sampleSnapshot()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	db.Close()

	// Migrations are idempotent and data survives.
	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer db.Close()
	got, err := db.Load(ctx, "ash")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Player.XP != 135 {
		t.Errorf("XP = %v, want 135", got.Player.XP)
	}
}

func TestOpen_Ping(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}

// ─── Snapshots ──────────────────────────────────────────────────────────────

func TestSnapshot_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	want := sampleSnapshot()

	if err := db.Save(ctx, "ash", want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := db.Load(ctx, "ash")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !domain.SameContent(*got, want) || got.Generation != want.Generation {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", *got, want)
	}
	if got.Tasks[0].StartTime == nil || !got.Tasks[0].StartTime.Equal(*want.Tasks[0].StartTime) {
		t.Error("task start time lost")
	}
}

func TestSnapshot_SaveReplaces(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := sampleSnapshot()
	_ = db.Save(ctx, "ash", s)
	s.Player.XP = 500
	s.Generation = 4
	if err := db.Save(ctx, "ash", s); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, _ := db.Load(ctx, "ash")
	if got.Player.XP != 500 || got.Generation != 4 {
		t.Errorf("expected replaced snapshot, got xp=%v gen=%d", got.Player.XP, got.Generation)
	}
}

func TestSnapshot_NotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.Load(context.Background(), "nobody"); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestSnapshot_Corrupt(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.db.Exec(`INSERT INTO snapshots (key, data, updated_at) VALUES ('ash', '{oops', 0)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.Load(context.Background(), "ash"); !errors.Is(err, domain.ErrSnapshotCorrupt) {
		t.Errorf("expected ErrSnapshotCorrupt, got %v", err)
	}
}

func TestDated_RoundTripAndPrune(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := sampleSnapshot()

	for _, d := range []domain.Date{"2025-06-29", "2025-06-30", "2025-07-01"} {
		if err := db.SaveDated(ctx, "ash", d, s); err != nil {
			t.Fatalf("SaveDated(%s) error: %v", d, err)
		}
	}
	got, err := db.LoadByDate(ctx, "ash", "2025-06-30")
	if err != nil {
		t.Fatalf("LoadByDate() error: %v", err)
	}
	if got.Streak != 2 {
		t.Errorf("Streak = %d, want 2", got.Streak)
	}
	if _, err := db.LoadByDate(ctx, "misty", "2025-06-30"); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Errorf("keys must not leak: %v", err)
	}

	n, err := db.PruneDated(ctx, "ash", "2025-07-01")
	if err != nil {
		t.Fatalf("PruneDated() error: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d rows, want 2", n)
	}
	if _, err := db.LoadByDate(ctx, "ash", "2025-07-01"); err != nil {
		t.Errorf("newest baseline should survive: %v", err)
	}
}

// ─── Summaries ──────────────────────────────────────────────────────────────

func TestSummary_ExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sum := domain.DailySummary{
		Date:           "2025-07-01",
		PlayerXPGained: 60,
		Rivals:         []domain.RivalGain{{RivalID: "jessie", Name: "Jessie", XPGained: 35, Reason: "Trained hard."}},
		RivalsXPGained: 35,
		Outcome:        domain.OutcomeWin,
		Streak:         3,
		CreatedAt:      time.Date(2025, 7, 2, 8, 0, 0, 0, time.UTC),
	}

	if err := db.SavePendingSummary(ctx, "ash", sum); err != nil {
		t.Fatalf("SavePendingSummary() error: %v", err)
	}
	pending, err := db.PendingSummary(ctx, "ash")
	if err != nil {
		t.Fatalf("PendingSummary() error: %v", err)
	}
	if pending.Rivals[0].Reason != "Trained hard." {
		t.Errorf("unexpected pending summary %+v", pending)
	}

	got, err := db.ConsumeSummary(ctx, "ash", "2025-07-01")
	if err != nil {
		t.Fatalf("ConsumeSummary() error: %v", err)
	}
	if got.Outcome != domain.OutcomeWin {
		t.Errorf("Outcome = %s, want win", got.Outcome)
	}
	if _, err := db.ConsumeSummary(ctx, "ash", "2025-07-01"); !errors.Is(err, domain.ErrSummaryNotFound) {
		t.Errorf("second consume: expected ErrSummaryNotFound, got %v", err)
	}

	// Replaying the write must not resurrect it.
	if err := db.SavePendingSummary(ctx, "ash", sum); err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if _, err := db.PendingSummary(ctx, "ash"); !errors.Is(err, domain.ErrSummaryNotFound) {
		t.Errorf("consumed summary came back: %v", err)
	}

	hist, err := db.SummaryHistory(ctx, "ash", 10)
	if err != nil || len(hist) != 1 {
		t.Errorf("SummaryHistory() = %d, %v", len(hist), err)
	}
}

func TestSummary_ConsumeSupersedesOlder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_ = db.SavePendingSummary(ctx, "ash", domain.DailySummary{Date: "2025-07-01"})
	_ = db.SavePendingSummary(ctx, "ash", domain.DailySummary{Date: "2025-07-02"})

	pending, err := db.PendingSummary(ctx, "ash")
	if err != nil || pending.Date != "2025-07-02" {
		t.Fatalf("expected newest pending, got %+v %v", pending, err)
	}
	if _, err := db.ConsumeSummary(ctx, "ash", "2025-07-02"); err != nil {
		t.Fatalf("ConsumeSummary() error: %v", err)
	}
	if _, err := db.PendingSummary(ctx, "ash"); !errors.Is(err, domain.ErrSummaryNotFound) {
		t.Errorf("older summary still pending: %v", err)
	}
}

func TestReset(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_ = db.Save(ctx, "ash", sampleSnapshot())
	_ = db.Save(ctx, "misty", sampleSnapshot())
	_ = db.SaveDated(ctx, "ash", "2025-07-01", sampleSnapshot())
	_ = db.SavePendingSummary(ctx, "ash", domain.DailySummary{Date: "2025-07-01"})

	if err := db.Reset(ctx, "ash"); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if _, err := db.Load(ctx, "ash"); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Errorf("snapshot survived reset: %v", err)
	}
	if _, err := db.PendingSummary(ctx, "ash"); !errors.Is(err, domain.ErrSummaryNotFound) {
		t.Errorf("summary survived reset: %v", err)
	}
	if _, err := db.Load(ctx, "misty"); err != nil {
		t.Errorf("other keys must survive reset: %v", err)
	}
}

func TestWriteApply_SQLite(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := sampleSnapshot()
	w := domain.Write{
		Key:            "ash",
		Snapshot:       &s,
		Baseline:       &s,
		BaselineDate:   "2025-07-02",
		Summary:        &domain.DailySummary{Date: "2025-07-01"},
		ConsumeSummary: "2025-07-01",
	}
	if err := w.Apply(ctx, db); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if _, err := db.PendingSummary(ctx, "ash"); !errors.Is(err, domain.ErrSummaryNotFound) {
		t.Errorf("summary should be consumed in the same write: %v", err)
	}
	if _, err := db.LoadByDate(ctx, "ash", "2025-07-02"); err != nil {
		t.Errorf("baseline missing: %v", err)
	}
}
