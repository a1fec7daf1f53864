// Package reconcile runs one reconciliation pass over a game snapshot.
//
// A pass starts and ends in Idle. Depending on the calendar it closes the
// previous day (SummaryPending), catches rivals up on the current day
// (OfflineCatchUp) or does neither, and always finishes with
// PostProcessing: levels recomputed, achievements evaluated.
//
// Run never writes. It returns the next snapshot and what the caller must
// persist; the single state owner decides when to commit.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tutu-network/rivals/internal/app/engagement"
	"github.com/tutu-network/rivals/internal/app/rival"
	"github.com/tutu-network/rivals/internal/domain"
	"github.com/tutu-network/rivals/internal/infra/metrics"
)

// Fallback texts used when the narrator is absent, slow or failing.
const (
	FallbackRivalReason = "Trained quietly while you were away."
	FallbackLevelUpText = "Don't let them pull ahead!"
)

// State is a step of the reconciliation state machine.
type State int

const (
	Idle State = iota
	SummaryPending
	OfflineCatchUp
	PostProcessing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SummaryPending:
		return "summary_pending"
	case OfflineCatchUp:
		return "offline_catch_up"
	case PostProcessing:
		return "post_processing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config tunes a Machine.
type Config struct {
	Key      string         // player key for baseline lookups
	Location *time.Location // calendar time zone; nil means time.Local
	// CatchUpThreshold is the minimum same-day gap that triggers a catch-up.
	CatchUpThreshold time.Duration
	// NarratorTimeout bounds every narrator call.
	NarratorTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Key:              "default",
		Location:         time.Local,
		CatchUpThreshold: 6 * time.Minute,
		NarratorTimeout:  5 * time.Second,
	}
}

// Machine runs reconciliation passes. It holds no game state of its own.
type Machine struct {
	cfg      Config
	store    domain.Store
	narrator domain.Narrator
	sim      *rival.Simulator
	logger   *log.Logger
	tracer   trace.Tracer
}

// New creates a Machine. store is only read (for day baselines); narrator
// may be nil.
func New(cfg Config, store domain.Store, narrator domain.Narrator, sim *rival.Simulator, logger *log.Logger) *Machine {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.NarratorTimeout <= 0 {
		cfg.NarratorTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	if sim == nil {
		sim = rival.NewSimulator(time.Now().UnixNano())
	}
	return &Machine{
		cfg:      cfg,
		store:    store,
		narrator: narrator,
		sim:      sim,
		logger:   logger,
		tracer:   otel.Tracer("github.com/tutu-network/rivals/internal/app/reconcile"),
	}
}

// Input is what a pass starts from.
type Input struct {
	Snapshot domain.Snapshot
	Now      time.Time
	// SummaryPending blocks a new day close until the last one is acknowledged.
	SummaryPending bool
}

// Result is what a pass produced.
type Result struct {
	Snapshot domain.Snapshot
	Path     []State
	// Changed reports whether Snapshot differs from the input (ignoring
	// Generation). Unchanged passes need no write.
	Changed bool
	// Summary is set when the pass closed a day.
	Summary *domain.DailySummary
	// BaselineDate is set when Snapshot is the start-of-day state for that
	// date and must be stored as the next day's baseline.
	BaselineDate domain.Date
	Unlocked     []domain.Achievement
}

// PathString renders the path as "idle>offline_catch_up>...".
func (r Result) PathString() string {
	parts := make([]string, len(r.Path))
	for i, s := range r.Path {
		parts[i] = s.String()
	}
	return strings.Join(parts, ">")
}

// Today returns the calendar date of now in the machine's zone.
func (m *Machine) Today(now time.Time) domain.Date {
	return domain.DateOf(now, m.cfg.Location)
}

// Run executes one pass. A cancelled ctx aborts the pass with ctx.Err()
// and no result. The input snapshot is never modified.
func (m *Machine) Run(ctx context.Context, in Input) (Result, error) {
	today := m.Today(in.Now)
	ctx, span := m.tracer.Start(ctx, "reconcile.Run", trace.WithAttributes(
		attribute.String("today", today.String()),
		attribute.Int64("generation", int64(in.Snapshot.Generation)),
	))
	defer span.End()

	s := in.Snapshot.Clone()
	res := Result{Path: []State{Idle}}
	var err error

	switch {
	case s.LastSummaryDate.Before(today) && !in.SummaryPending:
		res.Path = append(res.Path, SummaryPending)
		var sum domain.DailySummary
		s, sum, err = m.closeDay(ctx, s, in.Now, today)
		if err != nil {
			span.RecordError(err)
			return Result{}, err
		}
		res.Summary = &sum
		res.BaselineDate = today

	case s.LastSummaryDate == today && in.Now.Sub(s.LastSimulatedAt) >= m.cfg.CatchUpThreshold:
		res.Path = append(res.Path, OfflineCatchUp)
		s, err = m.catchUp(ctx, s, in.Now, today)
		if err != nil {
			span.RecordError(err)
			return Result{}, err
		}

	case s.LastSummaryDate.After(today):
		m.logger.Printf("[reconcile] clock is behind the last summary date (%s > %s), skipping", s.LastSummaryDate, today)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res.Path = append(res.Path, PostProcessing)
	s = engagement.RecomputeLevels(s)
	s, res.Unlocked = engagement.EvaluateAchievements(s, in.Now)
	res.Path = append(res.Path, Idle)

	res.Snapshot = s
	res.Changed = !domain.SameContent(in.Snapshot, s)
	span.SetAttributes(attribute.String("path", res.PathString()), attribute.Bool("changed", res.Changed))
	return res, nil
}

// catchUp simulates rivals over [LastSimulatedAt, now) on the current day.
func (m *Machine) catchUp(ctx context.Context, s domain.Snapshot, now time.Time, today domain.Date) (domain.Snapshot, error) {
	ctx, span := m.tracer.Start(ctx, "reconcile.catchUp")
	defer span.End()

	crossed := 0
	if !s.LastSimulatedAt.IsZero() {
		crossed = domain.DaysBetween(domain.DateOf(s.LastSimulatedAt, m.cfg.Location), today)
	}
	span.SetAttributes(attribute.Int("units", rival.Units(s.LastSimulatedAt, now)))
	before := s.Rivals
	rivals, gains, anchor := m.sim.CatchUp(s.Rivals, s.LastSimulatedAt, now)
	for i := range rivals {
		rivals[i].Level = engagement.LevelForXP(rivals[i].XP)
	}
	s.Rivals = rivals
	s.LastSimulatedAt = anchor

	// Flavor text for level-ups is fetched concurrently; notifications are
	// appended afterwards in roster order.
	texts := make([]string, len(rivals))
	g, gctx := errgroup.WithContext(ctx)
	for i := range rivals {
		if rivals[i].Level <= engagement.LevelForXP(before[i].XP) {
			continue
		}
		r := rivals[i]
		streak, userXP := s.Streak, s.Player.XP
		g.Go(func() error {
			texts[i] = m.say(gctx, "notification_text", FallbackLevelUpText, func(ctx context.Context) (string, error) {
				return m.narrator.NotificationText(ctx, streak, r.Name, r.XP, userXP)
			})
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return s, err
	}

	for i, gain := range gains {
		if gain.XPGained <= 0 {
			continue
		}
		r := rivals[i]
		if texts[i] != "" {
			s = engagement.AppendNotification(s, engagement.NewNotification(
				domain.NotifyRivalLevelUp, fmt.Sprintf("%s leveled up! %s", r.Name, texts[i]), now))
		}
		s = engagement.AppendNotification(s, engagement.NewNotification(
			domain.NotifyRivalGain, fmt.Sprintf("%s gained %s XP while you were away.", r.Name, formatXP(gain.XPGained)), now))
	}

	if crossed > 1 {
		s.Streak = 0
	}
	if s.LastPlayedDate.Before(today) {
		s.LastPlayedDate = today
	}
	return s, nil
}

// closeDay closes LastSummaryDate and opens today.
func (m *Machine) closeDay(ctx context.Context, s domain.Snapshot, now time.Time, today domain.Date) (domain.Snapshot, domain.DailySummary, error) {
	closed := s.LastSummaryDate
	ctx, span := m.tracer.Start(ctx, "reconcile.closeDay", trace.WithAttributes(
		attribute.String("closed", closed.String()),
	))
	defer span.End()

	// Rivals kept training for the whole absence.
	rivals, _, anchor := m.sim.CatchUp(s.Rivals, s.LastSimulatedAt, now)
	s.Rivals = rivals
	s.LastSimulatedAt = anchor

	base := m.baseline(ctx, closed)

	playerGain := max(0, s.Player.XP-base.Player.XP)
	var lines []domain.RivalGain
	var behaviors []domain.RivalBehavior
	var rivalsGain float64
	for _, r := range s.Rivals {
		start := 0.0
		if br, ok := base.RivalByID(r.ID); ok {
			start = br.XP
		}
		gain := max(0, r.XP-start)
		rivalsGain += gain
		if gain > 0 {
			lines = append(lines, domain.RivalGain{RivalID: r.ID, Name: r.Name, XPGained: gain})
			behaviors = append(behaviors, r.Behavior)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range lines {
		g.Go(func() error {
			lines[i].Reason = m.say(gctx, "rival_reason", FallbackRivalReason, func(ctx context.Context) (string, error) {
				return m.narrator.RivalReason(ctx, lines[i].Name, behaviors[i], lines[i].XPGained)
			})
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return s, domain.DailySummary{}, err
	}

	s.Streak = engagement.NextStreak(s.Streak, s.LastPlayedDate, s.LastActiveDate, closed, today)
	s = engagement.DayReset(s, today)

	sum := domain.DailySummary{
		Date:           closed,
		PlayerXPGained: playerGain,
		Rivals:         lines,
		RivalsXPGained: rivalsGain,
		Outcome:        domain.OutcomeOf(playerGain, rivalsGain),
		Streak:         s.Streak,
		CreatedAt:      now,
	}
	span.SetAttributes(attribute.String("outcome", string(sum.Outcome)), attribute.Int("streak", s.Streak))
	return s, sum, nil
}

// baseline loads the start-of-day snapshot for date. Missing or unreadable
// baselines fall back to a fresh start: player at zero, rivals at their
// default XP.
func (m *Machine) baseline(ctx context.Context, date domain.Date) domain.Snapshot {
	if m.store != nil && !date.IsZero() {
		b, err := m.store.LoadByDate(ctx, m.cfg.Key, date)
		if err == nil && b != nil {
			return *b
		}
		if !errors.Is(err, domain.ErrSnapshotNotFound) {
			m.logger.Printf("[reconcile] baseline for %s unavailable, using fresh start: %v", date, err)
		}
	}
	return domain.Snapshot{Rivals: engagement.DefaultRivals()}
}

// say calls the narrator under the configured timeout and falls back on
// any failure or empty answer.
func (m *Machine) say(ctx context.Context, call, fallback string, fn func(context.Context) (string, error)) string {
	if m.narrator == nil {
		return fallback
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.NarratorTimeout)
	defer cancel()

	text, err := fn(ctx)
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		if err != nil {
			m.logger.Printf("[reconcile] %s fell back: %v", call, err)
		}
		metrics.NarratorCalls.WithLabelValues(call, "fallback").Inc()
		return fallback
	}
	metrics.NarratorCalls.WithLabelValues(call, "ok").Inc()
	return text
}

// formatXP prints whole numbers without a fraction.
func formatXP(xp float64) string {
	if xp == float64(int64(xp)) {
		return fmt.Sprintf("%d", int64(xp))
	}
	return fmt.Sprintf("%.1f", xp)
}
