// Package metrics provides Prometheus metrics for the rivals engine:
// reconciliation passes, task completions, narrator calls and persistence.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rivals"

// ─── Reconciliation ─────────────────────────────────────────────────────────

// PassesTotal counts reconciliation passes by the path taken and result.
var PassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "reconcile_passes_total",
	Help:      "Total reconciliation passes.",
}, []string{"path", "result"})

// PassDuration tracks how long a reconciliation pass takes.
var PassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "reconcile_pass_duration_seconds",
	Help:      "Reconciliation pass duration in seconds.",
	Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
}, []string{"path"})

// SummariesTotal counts daily summaries produced, by outcome.
var SummariesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "daily_summaries_total",
	Help:      "Total daily summaries produced.",
}, []string{"outcome"})

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TasksCompleted counts successful completions by difficulty.
var TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "tasks_completed_total",
	Help:      "Total completed tasks.",
}, []string{"difficulty"})

// TasksRejected counts anti-cheat rejections by violation.
var TasksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "tasks_rejected_total",
	Help:      "Total task completions blocked by anti-cheat.",
}, []string{"violation"})

// AchievementsUnlocked counts unlocks by achievement ID.
var AchievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "achievements_unlocked_total",
	Help:      "Total achievements unlocked.",
}, []string{"achievement"})

// ─── Narrator ───────────────────────────────────────────────────────────────

// NarratorCalls counts narrator calls by kind and result (ok, fallback).
var NarratorCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "narrator_calls_total",
	Help:      "Total narrator calls.",
}, []string{"call", "result"})

// NarratorLatency tracks narrator round-trip time.
var NarratorLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "narrator_latency_seconds",
	Help:      "Narrator request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
})

// ─── Persistence ────────────────────────────────────────────────────────────

// StoreWrites counts snapshot writes by result (ok, failed, retried).
var StoreWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "store_writes_total",
	Help:      "Total snapshot writes.",
}, []string{"result"})

// PendingWrites tracks writes waiting in the retry queue.
var PendingWrites = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "store_pending_writes",
	Help:      "Writes waiting for retry.",
})

// ─── Game State ─────────────────────────────────────────────────────────────

// PlayerXP tracks the player's total XP.
var PlayerXP = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "player_xp",
	Help:      "Player total XP.",
})

// PlayerLevel tracks the player's level.
var PlayerLevel = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "player_level",
	Help:      "Player level.",
})

// Streak tracks the current streak in days.
var Streak = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "streak_days",
	Help:      "Current daily streak.",
})

// RivalXP tracks each rival's total XP.
var RivalXP = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "rival_xp",
	Help:      "Rival total XP.",
}, []string{"rival"})

// Generation tracks the committed snapshot generation.
var Generation = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "snapshot_generation",
	Help:      "Generation of the current snapshot.",
})
