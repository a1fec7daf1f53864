// Package game owns the live game snapshot.
//
// A single goroutine (Engine.Run) holds the authoritative snapshot and is the
// only code that replaces it. Every trigger, whether a task action, a summary
// acknowledgement, an observation from a client or the periodic tick, is sent
// to that goroutine as an op. Reconciliation passes run one at a time; task
// mutations that arrive while a pass is in flight wait until it finishes.
// Readers get a copy of the last published snapshot without blocking.
package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/tutu-network/rivals/internal/app/arbiter"
	"github.com/tutu-network/rivals/internal/app/engagement"
	"github.com/tutu-network/rivals/internal/app/reconcile"
	"github.com/tutu-network/rivals/internal/app/rival"
	"github.com/tutu-network/rivals/internal/domain"
	"github.com/tutu-network/rivals/internal/infra/metrics"
	"github.com/tutu-network/rivals/internal/infra/scheduler"
)

// Config tunes an Engine.
type Config struct {
	Key              string
	Location         *time.Location
	Debounce         time.Duration // window that coalesces triggers into one pass
	TickInterval     time.Duration // periodic day-boundary check
	CatchUpThreshold time.Duration
	NarratorTimeout  time.Duration
	WriteTimeout     time.Duration // per store write attempt
	Retry            scheduler.RetryConfig

	// Clock overrides time.Now.
	Clock func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Key:              "default",
		Location:         time.Local,
		Debounce:         1 * time.Second,
		TickInterval:     1 * time.Minute,
		CatchUpThreshold: 6 * time.Minute,
		NarratorTimeout:  5 * time.Second,
		WriteTimeout:     5 * time.Second,
		Retry:            scheduler.DefaultRetryConfig(),
	}
}

// op is a unit of work executed on the owner goroutine.
type op struct {
	at       time.Time // trigger time, used to supersede stale passes
	mutation bool      // changes the snapshot; waits for an in-flight pass
	dayBound bool      // task action; lands on the open day only
	closing  bool      // already waited for a pass to close the day
	fn       func(ctx context.Context)
}

type outcome struct {
	res reconcile.Result
	err error
}

type inflight struct {
	cancel     context.CancelFunc
	date       domain.Date
	gen        uint64
	started    time.Time
	superseded bool
	waiters    []chan outcome
}

type passDone struct {
	pass *inflight
	res  reconcile.Result
	err  error
}

// Engine is the single owner of a player's game state.
type Engine struct {
	cfg     Config
	store   domain.Store
	machine *reconcile.Machine
	arbiter *arbiter.Arbiter
	retry   *scheduler.RetryQueue
	logger  *log.Logger
	now     func() time.Time

	current atomic.Pointer[domain.Snapshot]
	summary atomic.Pointer[domain.DailySummary]
	running atomic.Bool

	ops     chan op
	results chan passDone
	done    chan struct{}

	// Owned by the Run goroutine.
	snap      domain.Snapshot
	dirty     bool
	pass      *inflight
	rerun     bool
	waiters   []chan outcome
	deferred  []op
	debounceC <-chan time.Time
	retryC    <-chan time.Time
}

// New creates an Engine. narrator and sim may be nil.
func New(cfg Config, store domain.Store, narrator domain.Narrator, sim *rival.Simulator, logger *log.Logger) *Engine {
	def := DefaultConfig()
	if cfg.Key == "" {
		cfg.Key = def.Key
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.CatchUpThreshold <= 0 {
		cfg.CatchUpThreshold = def.CatchUpThreshold
	}
	if cfg.NarratorTimeout <= 0 {
		cfg.NarratorTimeout = def.NarratorTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry = def.Retry
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = log.Default()
	}

	machine := reconcile.New(reconcile.Config{
		Key:              cfg.Key,
		Location:         cfg.Location,
		CatchUpThreshold: cfg.CatchUpThreshold,
		NarratorTimeout:  cfg.NarratorTimeout,
	}, store, narrator, sim, logger)

	return &Engine{
		cfg:     cfg,
		store:   store,
		machine: machine,
		arbiter: arbiter.New(narrator, cfg.NarratorTimeout, logger),
		retry:   scheduler.NewRetryQueue(cfg.Retry),
		logger:  logger,
		now:     cfg.Clock,
		ops:     make(chan op, 64),
		results: make(chan passDone, 1),
		done:    make(chan struct{}),
	}
}

// Load reads the persisted snapshot and any pending summary. Missing or
// corrupt state starts a new game, which is saved together with today's
// baseline. Load must be called before Run, or Run calls it.
func (e *Engine) Load(ctx context.Context) error {
	now := e.now()
	snap, err := e.store.Load(ctx, e.cfg.Key)
	switch {
	case err == nil:
		e.snap = *snap
	case errors.Is(err, domain.ErrSnapshotNotFound), errors.Is(err, domain.ErrSnapshotCorrupt):
		if errors.Is(err, domain.ErrSnapshotCorrupt) {
			e.logger.Printf("[game] stored state for %q unreadable, starting fresh: %v", e.cfg.Key, err)
		}
		fresh := engagement.InitialSnapshot(now, e.cfg.Location)
		fresh.Generation = 1
		e.snap = fresh
		base := fresh
		e.persist(ctx, domain.Write{
			Key:          e.cfg.Key,
			Snapshot:     &fresh,
			Baseline:     &base,
			BaselineDate: fresh.LastSummaryDate,
		})
	default:
		return fmt.Errorf("load snapshot: %w", err)
	}

	sum, err := e.store.PendingSummary(ctx, e.cfg.Key)
	switch {
	case err == nil:
		e.summary.Store(sum)
	case errors.Is(err, domain.ErrSummaryNotFound):
		e.summary.Store(nil)
	default:
		return fmt.Errorf("load pending summary: %w", err)
	}

	e.publish(e.snap)
	e.logger.Printf("[game] loaded %q: level %d, streak %d, generation %d",
		e.cfg.Key, e.snap.Player.Level, e.snap.Streak, e.snap.Generation)
	return nil
}

// Run owns the snapshot until ctx is cancelled. A pass runs immediately on
// start, then on every trigger after the debounce window.
func (e *Engine) Run(ctx context.Context) error {
	if e.current.Load() == nil {
		if err := e.Load(ctx); err != nil {
			return err
		}
	}
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("game engine already running")
	}
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.startPass(ctx, e.now())
	for {
		if e.retryC == nil {
			if due, ok := e.retry.NextDue(); ok {
				e.retryC = time.After(time.Until(due))
			}
		}

		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case o := <-e.ops:
			e.handle(ctx, o)
		case d := <-e.results:
			e.finishPass(ctx, d)
		case <-e.debounceC:
			e.debounceC = nil
			e.trigger(ctx, e.now())
		case <-ticker.C:
			now := e.now()
			e.supersede(now)
			e.schedule()
		case <-e.retryC:
			e.retryC = nil
			e.flushRetries(ctx)
		}
	}
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// Snapshot returns a copy of the current snapshot.
func (e *Engine) Snapshot() domain.Snapshot {
	p := e.current.Load()
	if p == nil {
		return domain.Snapshot{}
	}
	return p.Clone()
}

// PendingSummary returns the summary awaiting acknowledgement, if any.
func (e *Engine) PendingSummary() (domain.DailySummary, bool) {
	p := e.summary.Load()
	if p == nil {
		return domain.DailySummary{}, false
	}
	return *p, true
}

// Today returns the engine's calendar date.
func (e *Engine) Today() domain.Date {
	return e.machine.Today(e.now())
}

// Retries reports the write retry backlog.
func (e *Engine) Retries() scheduler.RetryStats {
	return e.retry.RetryStats()
}

// ─── Triggers ───────────────────────────────────────────────────────────────

// Observe schedules a pass. Observations inside one debounce window share a
// single pass. It never blocks.
func (e *Engine) Observe() {
	now := e.now()
	select {
	case e.ops <- op{at: now, fn: func(context.Context) { e.schedule() }}:
	default:
		// The loop is saturated; a pass is already due.
	}
}

// Reconcile runs a pass now (or right after the one in flight) and waits
// for its result.
func (e *Engine) Reconcile(ctx context.Context) (reconcile.Result, error) {
	now := e.now()
	ch := make(chan outcome, 1)
	err := e.submit(ctx, op{at: now, fn: func(loopCtx context.Context) {
		e.waiters = append(e.waiters, ch)
		if e.pass != nil {
			e.rerun = true
			return
		}
		e.startPass(loopCtx, now)
	}})
	if err != nil {
		return reconcile.Result{}, err
	}
	select {
	case out := <-ch:
		return out.res, out.err
	case <-ctx.Done():
		return reconcile.Result{}, ctx.Err()
	case <-e.done:
		return reconcile.Result{}, domain.ErrEngineStopped
	}
}

// CompleteTask validates and applies a task completion. A rejected
// completion returns the verdict with its justification and
// domain.ErrAntiCheat; the snapshot is not touched.
func (e *Engine) CompleteTask(ctx context.Context, taskID string) (arbiter.Verdict, error) {
	now := e.now()
	type reply struct {
		v   arbiter.Verdict
		err error
	}
	ch := make(chan reply, 1)
	err := e.submit(ctx, op{at: now, mutation: true, dayBound: true, fn: func(context.Context) {
		if err := e.checkDay(now); err != nil {
			ch <- reply{arbiter.Verdict{TaskID: taskID}, err}
			return
		}
		next, v, err := arbiter.Complete(e.snap, taskID, now, e.cfg.Location)
		switch {
		case err == nil:
			difficulty := next.Tasks[next.TaskIndex(taskID)].Difficulty
			e.mutate(next)
			metrics.TasksCompleted.WithLabelValues(string(difficulty)).Inc()
		case errors.Is(err, domain.ErrAntiCheat):
			for _, vio := range v.Violations {
				metrics.TasksRejected.WithLabelValues(string(vio)).Inc()
			}
		}
		ch <- reply{v, err}
	}})
	if err != nil {
		return arbiter.Verdict{TaskID: taskID}, err
	}

	var r reply
	select {
	case r = <-ch:
	case <-ctx.Done():
		return arbiter.Verdict{TaskID: taskID}, ctx.Err()
	case <-e.done:
		return arbiter.Verdict{TaskID: taskID}, domain.ErrEngineStopped
	}
	if errors.Is(r.err, domain.ErrAntiCheat) {
		// Narrator text is fetched outside the owner goroutine.
		r.v = e.arbiter.Justify(ctx, r.v)
		e.logger.Printf("[game] completion of %s blocked: %s", taskID, r.v.UserActions)
	}
	return r.v, r.err
}

// StartTask records the start time of a time-locked task.
func (e *Engine) StartTask(ctx context.Context, taskID string) (domain.Task, error) {
	now := e.now()
	var task domain.Task
	err := e.do(ctx, op{at: now, mutation: true, dayBound: true}, func() error {
		if err := e.checkDay(now); err != nil {
			return err
		}
		next, err := arbiter.StartTask(e.snap, taskID, now)
		if err != nil {
			return err
		}
		e.mutate(next)
		task = next.Tasks[next.TaskIndex(taskID)]
		return nil
	})
	return task, err
}

// AddTask adds a custom task for the current day.
func (e *Engine) AddTask(ctx context.Context, req arbiter.NewTask) (domain.Task, error) {
	now := e.now()
	var task domain.Task
	err := e.do(ctx, op{at: now, mutation: true, dayBound: true}, func() error {
		if err := e.checkDay(now); err != nil {
			return err
		}
		next, t, err := arbiter.AddTask(e.snap, req)
		if err != nil {
			return err
		}
		e.mutate(next)
		task = t
		return nil
	})
	return task, err
}

// MarkNotificationsRead marks one notification read, or all of them when id
// is empty, and returns how many changed.
func (e *Engine) MarkNotificationsRead(ctx context.Context, id string) (int, error) {
	changed := 0
	err := e.do(ctx, op{at: e.now(), mutation: true}, func() error {
		next, n := engagement.MarkRead(e.snap, id)
		if n > 0 {
			e.mutate(next)
		}
		changed = n
		return nil
	})
	return changed, err
}

// AckSummary consumes the pending summary. date must match the pending
// summary's date unless empty. Each summary is handed out exactly once;
// later calls return domain.ErrSummaryNotFound.
func (e *Engine) AckSummary(ctx context.Context, date domain.Date) (domain.DailySummary, error) {
	var sum domain.DailySummary
	err := e.do(ctx, op{at: e.now()}, func() error {
		p := e.summary.Load()
		if p == nil {
			return domain.ErrSummaryNotFound
		}
		if !date.IsZero() && p.Date != date {
			return fmt.Errorf("%w: pending %s, got %s", domain.ErrSummaryMismatch, p.Date, date)
		}
		sum = *p
		e.summary.Store(nil)
		e.persist(ctx, domain.Write{Key: e.cfg.Key, ConsumeSummary: p.Date})
		// The next day close may be waiting on this acknowledgement.
		e.schedule()
		return nil
	})
	return sum, err
}

// do runs fn on the owner goroutine and waits for its error.
func (e *Engine) do(ctx context.Context, o op, fn func() error) error {
	ch := make(chan error, 1)
	o.fn = func(context.Context) { ch <- fn() }
	if err := e.submit(ctx, o); err != nil {
		return err
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return domain.ErrEngineStopped
	}
}

func (e *Engine) submit(ctx context.Context, o op) error {
	select {
	case <-e.done:
		return domain.ErrEngineStopped
	default:
	}
	select {
	case e.ops <- o:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return domain.ErrEngineStopped
	}
}

// ─── Owner loop ─────────────────────────────────────────────────────────────

func (e *Engine) handle(ctx context.Context, o op) {
	e.supersede(o.at)
	if o.mutation && e.pass != nil {
		e.deferred = append(e.deferred, o)
		return
	}
	if o.dayBound && !o.closing && ctx.Err() == nil && e.dayRolled(o.at) && e.summary.Load() == nil {
		// Close the previous day first; the action waits for that pass.
		o.closing = true
		e.deferred = append(e.deferred, o)
		e.startPass(ctx, e.now())
		return
	}
	o.fn(ctx)
}

// dayRolled reports whether at falls after the snapshot's open day.
func (e *Engine) dayRolled(at time.Time) bool {
	return e.machine.Today(at).After(e.snap.LastSummaryDate)
}

// checkDay refuses a task action dated after the open day. That happens
// while the previous summary waits for acknowledgement, since the next day
// close is blocked until then.
func (e *Engine) checkDay(at time.Time) error {
	if e.dayRolled(at) {
		return fmt.Errorf("%w: %s is still open", domain.ErrDayNotClosed, e.snap.LastSummaryDate)
	}
	return nil
}

// supersede abandons the in-flight pass when a trigger belongs to a later
// calendar day than the pass does.
func (e *Engine) supersede(at time.Time) {
	if e.pass == nil || e.pass.superseded {
		return
	}
	if day := e.machine.Today(at); day.After(e.pass.date) {
		e.logger.Printf("[game] pass for %s superseded by a trigger for %s", e.pass.date, day)
		e.pass.superseded = true
		e.pass.cancel()
	}
}

// schedule arms the debounce timer unless it is already armed.
func (e *Engine) schedule() {
	if e.debounceC == nil {
		e.debounceC = time.After(e.cfg.Debounce)
	}
}

func (e *Engine) trigger(ctx context.Context, now time.Time) {
	if e.pass != nil {
		e.rerun = true
		return
	}
	e.startPass(ctx, now)
}

func (e *Engine) startPass(ctx context.Context, now time.Time) {
	pctx, cancel := context.WithCancel(ctx)
	p := &inflight{
		cancel:  cancel,
		date:    e.machine.Today(now),
		gen:     e.snap.Generation,
		started: time.Now(),
		waiters: e.waiters,
	}
	e.waiters = nil
	e.pass = p
	e.rerun = false

	in := reconcile.Input{
		Snapshot:       e.snap,
		Now:            now,
		SummaryPending: e.summary.Load() != nil,
	}
	go func() {
		res, err := e.machine.Run(pctx, in)
		e.results <- passDone{pass: p, res: res, err: err}
	}()
}

func (e *Engine) finishPass(ctx context.Context, d passDone) {
	p := d.pass
	p.cancel()
	e.pass = nil

	switch {
	case ctx.Err() != nil:
		notify(p.waiters, outcome{err: domain.ErrEngineStopped})
	case p.superseded || d.err != nil || e.snap.Generation != p.gen:
		// Abandoned: its waiters get the rerun's result instead.
		metrics.PassesTotal.WithLabelValues("abandoned", "cancelled").Inc()
		e.waiters = append(p.waiters, e.waiters...)
		e.rerun = true
	default:
		metrics.PassesTotal.WithLabelValues(d.res.PathString(), "ok").Inc()
		metrics.PassDuration.WithLabelValues(d.res.PathString()).Observe(time.Since(p.started).Seconds())
		e.commitPass(ctx, d.res)
		notify(p.waiters, outcome{res: d.res})
	}

	deferred := e.deferred
	e.deferred = nil
	for _, o := range deferred {
		e.handle(ctx, o)
	}

	if e.rerun && e.pass == nil && ctx.Err() == nil {
		e.startPass(ctx, e.now())
	}
}

func (e *Engine) commitPass(ctx context.Context, res reconcile.Result) {
	for _, a := range res.Unlocked {
		metrics.AchievementsUnlocked.WithLabelValues(a.ID).Inc()
		e.logger.Printf("[game] achievement unlocked: %s", a.Name)
	}
	if !res.Changed && !e.dirty && res.Summary == nil {
		return
	}

	next := res.Snapshot
	next.Generation = e.snap.Generation + 1
	w := domain.Write{Key: e.cfg.Key, Snapshot: &next}
	if res.Summary != nil {
		w.Summary = res.Summary
		e.summary.Store(res.Summary)
		metrics.SummariesTotal.WithLabelValues(string(res.Summary.Outcome)).Inc()
		e.logger.Printf("[game] closed %s: %s (player +%.0f, rivals +%.0f, streak %d)",
			res.Summary.Date, res.Summary.Outcome, res.Summary.PlayerXPGained, res.Summary.RivalsXPGained, res.Summary.Streak)
	}
	if !res.BaselineDate.IsZero() {
		base := next
		w.Baseline = &base
		w.BaselineDate = res.BaselineDate
	}

	e.snap = next
	e.dirty = false
	e.publish(next)
	e.persist(ctx, w)
}

// mutate replaces the snapshot after a task action. The write happens with
// the next pass so bursts of actions cost one write.
func (e *Engine) mutate(next domain.Snapshot) {
	next.Generation = e.snap.Generation + 1
	e.snap = next
	e.dirty = true
	e.publish(next)
	e.schedule()
}

func (e *Engine) publish(s domain.Snapshot) {
	e.current.Store(&s)

	metrics.Generation.Set(float64(s.Generation))
	metrics.PlayerXP.Set(s.Player.XP)
	metrics.PlayerLevel.Set(float64(s.Player.Level))
	metrics.Streak.Set(float64(s.Streak))
	for _, r := range s.Rivals {
		metrics.RivalXP.WithLabelValues(r.ID).Set(r.XP)
	}
}

// ─── Persistence ────────────────────────────────────────────────────────────

// persist applies w, folding in any write still waiting for retry. A failed
// write is queued for retry; the in-memory snapshot stays authoritative.
func (e *Engine) persist(ctx context.Context, w domain.Write) {
	entry, pending := e.retry.Take(w.Key)
	if pending {
		w = entry.Write.Merge(w)
		entry.Write = w
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.WriteTimeout)
	defer cancel()
	err := w.Apply(wctx, e.store)
	if err == nil {
		metrics.StoreWrites.WithLabelValues("ok").Inc()
		metrics.PendingWrites.Set(float64(e.retry.Len()))
		return
	}

	metrics.StoreWrites.WithLabelValues("error").Inc()
	var scheduled scheduler.RetryEntry
	if pending {
		scheduled = e.retry.Requeue(entry, err)
	} else {
		scheduled = e.retry.ScheduleRetry(w, err)
	}
	metrics.PendingWrites.Set(float64(e.retry.Len()))
	e.logger.Printf("[game] write failed (attempt %d, retry in %s): %v",
		scheduled.Attempt, time.Until(scheduled.NextRetry).Round(time.Millisecond), err)
}

func (e *Engine) flushRetries(ctx context.Context) {
	for _, entry := range e.retry.DrainReady() {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.WriteTimeout)
		err := entry.Write.Apply(wctx, e.store)
		cancel()
		if err != nil {
			metrics.StoreWrites.WithLabelValues("error").Inc()
			e.retry.Requeue(entry, err)
			continue
		}
		metrics.StoreWrites.WithLabelValues("ok").Inc()
		e.logger.Printf("[game] write for %q recovered after %d attempt(s)", entry.Write.Key, entry.Attempt)
	}
	metrics.PendingWrites.Set(float64(e.retry.Len()))
}

// shutdown makes a last attempt to store anything not yet written.
func (e *Engine) shutdown() {
	if e.pass != nil {
		e.pass.cancel()
	}
	if !e.dirty && e.retry.Len() == 0 {
		return
	}
	w := domain.Write{Key: e.cfg.Key}
	if e.dirty {
		snap := e.snap
		w.Snapshot = &snap
	}
	e.persist(context.Background(), w)
	if n := e.retry.Len(); n > 0 {
		e.logger.Printf("[game] ERROR: %d write(s) still failing at shutdown: %s", n, e.retry.RetryStats().LastError)
		return
	}
	e.dirty = false
}

func notify(waiters []chan outcome, out outcome) {
	for _, ch := range waiters {
		ch <- out
	}
}
