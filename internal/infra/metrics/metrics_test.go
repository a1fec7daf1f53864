package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestPassMetrics_Registered(t *testing.T) {
	PassesTotal.WithLabelValues("catch_up", "committed").Inc()
	PassDuration.WithLabelValues("catch_up").Observe(0.02)
	SummariesTotal.WithLabelValues("win").Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"rivals_reconcile_passes_total",
		"rivals_reconcile_pass_duration_seconds",
		"rivals_daily_summaries_total",
	} {
		if !names[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestTaskAndNarratorMetrics(t *testing.T) {
	TasksCompleted.WithLabelValues("Easy").Inc()
	TasksRejected.WithLabelValues("time_lock").Inc()
	AchievementsUnlocked.WithLabelValues("ach-1").Inc()
	NarratorCalls.WithLabelValues("rival_reason", "fallback").Inc()
	NarratorLatency.Observe(0.3)

	names := gatheredNames(t)
	for _, name := range []string{
		"rivals_tasks_completed_total",
		"rivals_tasks_rejected_total",
		"rivals_achievements_unlocked_total",
		"rivals_narrator_calls_total",
		"rivals_narrator_latency_seconds",
	} {
		if !names[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestStateGauges(t *testing.T) {
	StoreWrites.WithLabelValues("ok").Inc()
	PendingWrites.Set(1)
	PlayerXP.Set(120)
	PlayerLevel.Set(2)
	Streak.Set(3)
	RivalXP.WithLabelValues("jessie").Set(400)
	Generation.Set(7)

	names := gatheredNames(t)
	for _, name := range []string{
		"rivals_store_writes_total",
		"rivals_store_pending_writes",
		"rivals_player_xp",
		"rivals_player_level",
		"rivals_streak_days",
		"rivals_rival_xp",
		"rivals_snapshot_generation",
	} {
		if !names[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}
