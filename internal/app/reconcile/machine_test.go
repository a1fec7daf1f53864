package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tutu-network/rivals/internal/app/engagement"
	"github.com/tutu-network/rivals/internal/app/rival"
	"github.com/tutu-network/rivals/internal/domain"
	"github.com/tutu-network/rivals/internal/infra/memstore"
)

var day1 = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

type stubNarrator struct {
	reason string
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (s *stubNarrator) wait(ctx context.Context) error {
	s.calls.Add(1)
	if s.delay == 0 {
		return nil
	}
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stubNarrator) RivalReason(ctx context.Context, name string, _ domain.RivalBehavior, _ float64) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	return s.reason, s.err
}

func (s *stubNarrator) NotificationText(ctx context.Context, _ int, _ string, _, _ float64) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	return s.reason, s.err
}

func (s *stubNarrator) AntiCheatJustification(ctx context.Context, _ string, _ bool) (string, error) {
	return s.reason, s.err
}

func newMachine(t *testing.T, store domain.Store, n domain.Narrator) *Machine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Key = "ash"
	cfg.Location = time.UTC
	cfg.NarratorTimeout = 200 * time.Millisecond
	return New(cfg, store, n, rival.NewSimulator(42), nil)
}

func encode(t *testing.T, s domain.Snapshot) string {
	t.Helper()
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func pathIs(res Result, want ...State) bool {
	if len(res.Path) != len(want) {
		return false
	}
	for i := range want {
		if res.Path[i] != want[i] {
			return false
		}
	}
	return true
}

// ─── Same-day passes ────────────────────────────────────────────────────────

func TestRun_FreshSnapshotIsStable(t *testing.T) {
	m := newMachine(t, memstore.New(), nil)
	s := engagement.InitialSnapshot(day1, time.UTC)

	res, err := m.Run(context.Background(), Input{Snapshot: s, Now: day1.Add(time.Minute)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !pathIs(res, Idle, PostProcessing, Idle) {
		t.Errorf("unexpected path %s", res.PathString())
	}
	if res.Changed {
		t.Error("a fresh snapshot should need no write")
	}
	if res.Summary != nil {
		t.Error("no summary expected on the same day")
	}
}

func TestRun_PostProcessingIdempotent(t *testing.T) {
	m := newMachine(t, memstore.New(), nil)
	s := engagement.InitialSnapshot(day1, time.UTC)
	s.Tasks[0].Completed = true
	s.Player.XP = 900 // level 5, stale level on purpose

	now := day1.Add(2 * time.Minute)
	first, err := m.Run(context.Background(), Input{Snapshot: s, Now: now})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !first.Changed || len(first.Unlocked) != 2 {
		t.Fatalf("expected ach-1 and ach-2 on the first pass, got %d (changed=%v)", len(first.Unlocked), first.Changed)
	}

	second, err := m.Run(context.Background(), Input{Snapshot: first.Snapshot, Now: now})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if second.Changed {
		t.Error("second pass reported a change")
	}
	if encode(t, first.Snapshot) != encode(t, second.Snapshot) {
		t.Error("second pass is not byte-identical")
	}
}

func TestRun_ZeroUnitCatchUp(t *testing.T) {
	n := &stubNarrator{reason: "text"}
	m := newMachine(t, memstore.New(), n)
	s := engagement.InitialSnapshot(day1, time.UTC)

	// Past the catch-up threshold but short of one simulation unit.
	res, err := m.Run(context.Background(), Input{Snapshot: s, Now: day1.Add(30 * time.Minute)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !pathIs(res, Idle, OfflineCatchUp, PostProcessing, Idle) {
		t.Errorf("unexpected path %s", res.PathString())
	}
	if res.Changed {
		t.Error("zero-unit catch-up must not change the snapshot")
	}
	if len(res.Snapshot.Notifications) != len(s.Notifications) {
		t.Error("zero-unit catch-up added notifications")
	}
	if n.calls.Load() != 0 {
		t.Error("zero-unit catch-up called the narrator")
	}
}

func TestRun_CatchUpAdvancesRivals(t *testing.T) {
	m := newMachine(t, memstore.New(), nil)
	s := engagement.InitialSnapshot(day1, time.UTC)
	now := day1.Add(6*time.Hour + 20*time.Minute)

	res, err := m.Run(context.Background(), Input{Snapshot: s, Now: now})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := res.Snapshot
	if want := day1.Add(6 * time.Hour); !got.LastSimulatedAt.Equal(want) {
		t.Errorf("anchor = %v, want %v", got.LastSimulatedAt, want)
	}
	var gained float64
	for i, r := range got.Rivals {
		if r.XP < s.Rivals[i].XP {
			t.Errorf("%s lost XP", r.ID)
		}
		if r.Level != engagement.LevelForXP(r.XP) {
			t.Errorf("%s level %d inconsistent with xp %v", r.ID, r.Level, r.XP)
		}
		gained += r.XP - s.Rivals[i].XP
	}
	if gained > 0 && len(got.Notifications) <= len(s.Notifications) {
		t.Error("rival gains should produce notifications")
	}
	for _, note := range got.Notifications[len(s.Notifications):] {
		if note.Kind != domain.NotifyRivalGain && note.Kind != domain.NotifyRivalLevelUp {
			t.Errorf("unexpected notification kind %s", note.Kind)
		}
	}

	// Repeating at the same instant adds nothing.
	again, err := m.Run(context.Background(), Input{Snapshot: got, Now: now})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if again.Changed {
		t.Error("re-running over the same interval changed the snapshot")
	}
}

func TestRun_LevelUpNotificationUsesFallback(t *testing.T) {
	n := &stubNarrator{err: errors.New("offline")}
	m := newMachine(t, memstore.New(), n)
	s := engagement.InitialSnapshot(day1, time.UTC)

	s.LastSimulatedAt = day1.Add(-9 * time.Hour) // midnight
	res, err := m.Run(context.Background(), Input{Snapshot: s, Now: day1.Add(14 * time.Hour)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	levelUps := 0
	for _, note := range res.Snapshot.Notifications {
		if note.Kind != domain.NotifyRivalLevelUp {
			continue
		}
		levelUps++
		if !strings.HasSuffix(note.Message, FallbackLevelUpText) {
			t.Errorf("level-up text should fall back, got %q", note.Message)
		}
	}
	// Giovanni starts 25 XP short of level 2 and trains 23 hours.
	if levelUps == 0 {
		t.Error("expected at least one rival level-up")
	}
}

// ─── Day close ──────────────────────────────────────────────────────────────

func TestRun_DayCloseAfterThreeDayGap(t *testing.T) {
	store := memstore.New()
	m := newMachine(t, store, &stubNarrator{reason: "Grinding gyms."})
	s := engagement.InitialSnapshot(day1, time.UTC)
	if err := store.SaveDated(context.Background(), "ash", "2025-07-01", s); err != nil {
		t.Fatalf("SaveDated: %v", err)
	}
	s.Streak = 5
	s.Player.XP = 60
	s.LastActiveDate = "2025-07-01"
	s.Tasks[0].Completed = true
	s.Achievements[0].Unlocked = true

	now := day1.Add(72 * time.Hour)
	res, err := m.Run(context.Background(), Input{Snapshot: s, Now: now})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !pathIs(res, Idle, SummaryPending, PostProcessing, Idle) {
		t.Errorf("unexpected path %s", res.PathString())
	}
	if res.Summary == nil {
		t.Fatal("expected a summary")
	}
	sum := res.Summary
	if sum.Date != "2025-07-01" {
		t.Errorf("summary date = %s, want 2025-07-01", sum.Date)
	}
	if sum.PlayerXPGained != 60 {
		t.Errorf("player gain = %v, want 60", sum.PlayerXPGained)
	}
	for _, g := range sum.Rivals {
		if g.XPGained < 0 {
			t.Errorf("%s negative delta %v", g.RivalID, g.XPGained)
		}
		if g.Reason != "Grinding gyms." {
			t.Errorf("%s reason = %q", g.RivalID, g.Reason)
		}
	}
	if sum.RivalsXPGained <= 0 {
		t.Error("rivals should have trained over three days")
	}
	if sum.Outcome != domain.OutcomeOf(sum.PlayerXPGained, sum.RivalsXPGained) {
		t.Errorf("outcome %s inconsistent", sum.Outcome)
	}

	got := res.Snapshot
	if got.Streak != 0 || sum.Streak != 0 {
		t.Errorf("streak should reset after a 3-day gap, got %d", got.Streak)
	}
	if got.LastSummaryDate != "2025-07-04" || got.LastPlayedDate != "2025-07-04" {
		t.Errorf("dates = %s / %s, want 2025-07-04", got.LastSummaryDate, got.LastPlayedDate)
	}
	if res.BaselineDate != "2025-07-04" {
		t.Errorf("baseline date = %s", res.BaselineDate)
	}
	if got.AnyTaskCompleted() || got.LastCompletedTaskAt != nil {
		t.Error("tasks not reset for the new day")
	}
	if !got.Achievements[0].Unlocked {
		t.Error("achievements must survive the reset")
	}
}

func TestRun_DayCloseExtendsStreak(t *testing.T) {
	m := newMachine(t, memstore.New(), nil)
	s := engagement.InitialSnapshot(day1, time.UTC)
	s.Streak = 2
	s.LastActiveDate = "2025-07-01"

	res, err := m.Run(context.Background(), Input{Snapshot: s, Now: day1.Add(20 * time.Hour)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Snapshot.Streak != 3 {
		t.Errorf("expected streak 3, got %d", res.Snapshot.Streak)
	}
}

func TestRun_DayCloseIdleDayHoldsStreak(t *testing.T) {
	m := newMachine(t, memstore.New(), nil)
	s := engagement.InitialSnapshot(day1, time.UTC)
	s.Streak = 2
	s.LastActiveDate = "2025-06-30"

	res, err := m.Run(context.Background(), Input{Snapshot: s, Now: day1.Add(20 * time.Hour)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Snapshot.Streak != 2 {
		t.Errorf("expected streak 2, got %d", res.Snapshot.Streak)
	}
}

func TestRun_MissingBaselineUsesFreshStart(t *testing.T) {
	m := newMachine(t, memstore.New(), nil)
	s := engagement.InitialSnapshot(day1, time.UTC)
	s.Player.XP = 40

	res, err := m.Run(context.Background(), Input{Snapshot: s, Now: day1.Add(24 * time.Hour)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary.PlayerXPGained != 40 {
		t.Errorf("player gain = %v, want 40 against a zero baseline", res.Summary.PlayerXPGained)
	}
	for _, g := range res.Summary.Rivals {
		if g.XPGained <= 0 {
			t.Errorf("%s listed with non-positive gain", g.RivalID)
		}
		if g.Reason != FallbackRivalReason {
			t.Errorf("%s reason = %q, want fallback", g.RivalID, g.Reason)
		}
	}
}

func TestRun_PendingSummaryBlocksDayClose(t *testing.T) {
	m := newMachine(t, memstore.New(), nil)
	s := engagement.InitialSnapshot(day1, time.UTC)

	res, err := m.Run(context.Background(), Input{Snapshot: s, Now: day1.Add(24 * time.Hour), SummaryPending: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary != nil {
		t.Error("day closed while a summary was pending")
	}
	if !pathIs(res, Idle, PostProcessing, Idle) {
		t.Errorf("unexpected path %s", res.PathString())
	}
	if res.Snapshot.LastSummaryDate != "2025-07-01" {
		t.Errorf("last summary date moved to %s", res.Snapshot.LastSummaryDate)
	}
}

func TestRun_NarratorTimeoutFallsBack(t *testing.T) {
	n := &stubNarrator{reason: "late", delay: time.Second}
	m := newMachine(t, memstore.New(), n)
	s := engagement.InitialSnapshot(day1, time.UTC)

	start := time.Now()
	res, err := m.Run(context.Background(), Input{Snapshot: s, Now: day1.Add(30 * time.Hour)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Errorf("reasons were not fetched concurrently under the timeout: %v", elapsed)
	}
	for _, g := range res.Summary.Rivals {
		if g.Reason != FallbackRivalReason {
			t.Errorf("%s reason = %q, want fallback", g.RivalID, g.Reason)
		}
	}
}

func TestRun_Cancelled(t *testing.T) {
	n := &stubNarrator{reason: "late", delay: time.Second}
	m := newMachine(t, memstore.New(), n)
	m.cfg.NarratorTimeout = 5 * time.Second
	s := engagement.InitialSnapshot(day1, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := m.Run(ctx, Input{Snapshot: s, Now: day1.Add(30 * time.Hour)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRun_DoesNotMutateInput(t *testing.T) {
	m := newMachine(t, memstore.New(), nil)
	s := engagement.InitialSnapshot(day1, time.UTC)
	before := encode(t, s)

	if _, err := m.Run(context.Background(), Input{Snapshot: s, Now: day1.Add(50 * time.Hour)}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if encode(t, s) != before {
		t.Error("Run mutated its input snapshot")
	}
}
