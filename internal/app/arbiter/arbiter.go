// Package arbiter validates and applies task completions.
//
// The decision is a pure function of the snapshot, the task and the clock.
// Flavor text for rejections is fetched afterwards and never influences it.
package arbiter

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tutu-network/rivals/internal/app/engagement"
	"github.com/tutu-network/rivals/internal/domain"
)

// Anti-cheat thresholds.
const (
	// TimeLockLeeway is subtracted from a time-locked task's duration.
	TimeLockLeeway = 2 * time.Second
	// SpamWindow is the minimum gap between two successful completions.
	SpamWindow = 1 * time.Second
)

// FallbackJustification is shown when no narrator text is available.
const FallbackJustification = "Suspicious activity detected. Task completion blocked."

// Violation names a failed anti-cheat check.
type Violation string

const (
	ViolationTimeLock Violation = "time_lock"
	ViolationSpam     Violation = "completion_spam"
)

// Verdict is the result of a completion attempt.
type Verdict struct {
	TaskID     string      `json:"task_id"`
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`
	// UserActions describes what the player did, for the justification text.
	UserActions   string  `json:"user_actions,omitempty"`
	Justification string  `json:"justification,omitempty"`
	AwardedXP     float64 `json:"awarded_xp,omitempty"`
	LeveledUp     bool    `json:"leveled_up,omitempty"`
}

// Check runs the anti-cheat checks for completing task at now.
func Check(task domain.Task, s domain.Snapshot, now time.Time) Verdict {
	v := Verdict{TaskID: task.ID, Passed: true}
	var actions []string

	if task.TimeLocked && task.StartTime != nil {
		elapsed := now.Sub(*task.StartTime)
		if elapsed < task.MinDuration()-TimeLockLeeway {
			v.Violations = append(v.Violations, ViolationTimeLock)
			actions = append(actions, fmt.Sprintf("Attempted to complete a %ds task in %.1fs.", task.Duration, elapsed.Seconds()))
		}
	}
	if s.LastCompletedTaskAt != nil {
		since := now.Sub(*s.LastCompletedTaskAt)
		if since < SpamWindow {
			v.Violations = append(v.Violations, ViolationSpam)
			actions = append(actions, fmt.Sprintf("Completed another task just %dms ago.", since.Milliseconds()))
		}
	}

	if len(v.Violations) > 0 {
		v.Passed = false
		v.UserActions = strings.Join(actions, " ")
	}
	return v
}

// Complete validates and applies a completion of taskID. On success the
// returned snapshot has the task completed with its start time cleared, XP awarded at the current streak
// multiplier, the completion time recorded and the active date set. The
// streak itself changes only at day close.
//
// Missing or completed tasks fail with ErrTaskNotFound / ErrTaskCompleted.
// An anti-cheat rejection returns s unchanged, the failed verdict and
// ErrAntiCheat.
func Complete(s domain.Snapshot, taskID string, now time.Time, loc *time.Location) (domain.Snapshot, Verdict, error) {
	idx := s.TaskIndex(taskID)
	if idx < 0 {
		return s, Verdict{TaskID: taskID}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	task := s.Tasks[idx]
	if task.Completed {
		return s, Verdict{TaskID: taskID}, fmt.Errorf("%w: %s", domain.ErrTaskCompleted, taskID)
	}

	v := Check(task, s, now)
	if !v.Passed {
		return s, v, domain.ErrAntiCheat
	}

	next := s.Clone()
	next.Tasks[idx].Completed = true
	next.Tasks[idx].StartTime = nil
	v.AwardedXP = engagement.TaskXP(task.Difficulty, s.Streak)
	next.Player.XP += v.AwardedXP
	next.Player.Level = engagement.LevelForXP(next.Player.XP)
	v.LeveledUp = next.Player.Level > s.Player.Level

	at := now
	next.LastCompletedTaskAt = &at
	today := domain.DateOf(now, loc)
	next.LastActiveDate = today
	if next.LastPlayedDate.Before(today) {
		next.LastPlayedDate = today
	}
	return next, v, nil
}

// StartTask records the start time of a time-locked task.
func StartTask(s domain.Snapshot, taskID string, now time.Time) (domain.Snapshot, error) {
	idx := s.TaskIndex(taskID)
	if idx < 0 {
		return s, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	task := s.Tasks[idx]
	switch {
	case task.Completed:
		return s, fmt.Errorf("%w: %s", domain.ErrTaskCompleted, taskID)
	case !task.TimeLocked:
		return s, fmt.Errorf("%w: %s", domain.ErrTaskNotTimeLocked, taskID)
	case task.StartTime != nil:
		return s, fmt.Errorf("%w: %s", domain.ErrTaskAlreadyStarted, taskID)
	}

	next := s.Clone()
	at := now
	next.Tasks[idx].StartTime = &at
	return next, nil
}

// NewTask describes a custom task for the current day.
type NewTask struct {
	Name       string            `json:"name"`
	Difficulty domain.Difficulty `json:"difficulty"`
	Duration   int               `json:"duration"` // seconds; > 0 makes it time-locked
}

// AddTask appends a custom task with a fresh identity.
func AddTask(s domain.Snapshot, req NewTask) (domain.Snapshot, domain.Task, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return s, domain.Task{}, fmt.Errorf("%w: name is required", domain.ErrInvalidTask)
	}
	if !req.Difficulty.Valid() {
		return s, domain.Task{}, fmt.Errorf("%w: %q", domain.ErrInvalidDifficulty, req.Difficulty)
	}
	if req.Duration < 0 {
		return s, domain.Task{}, fmt.Errorf("%w: negative duration", domain.ErrInvalidTask)
	}

	task := domain.Task{
		ID:         uuid.New().String(),
		Name:       name,
		Difficulty: req.Difficulty,
		Duration:   req.Duration,
		TimeLocked: req.Duration > 0,
	}
	next := s.Clone()
	next.Tasks = append(next.Tasks, task)
	return next, task, nil
}

// ─── Justification ──────────────────────────────────────────────────────────

// Arbiter attaches narrator text to rejected verdicts.
type Arbiter struct {
	narrator domain.Narrator
	timeout  time.Duration
	logger   *log.Logger
}

// New creates an Arbiter. A nil narrator always yields the fallback text.
func New(narrator domain.Narrator, timeout time.Duration, logger *log.Logger) *Arbiter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Arbiter{narrator: narrator, timeout: timeout, logger: logger}
}

// Justify fills v.Justification for a failed verdict. Passed verdicts are
// returned untouched. It never fails.
func (a *Arbiter) Justify(ctx context.Context, v Verdict) Verdict {
	if v.Passed {
		return v
	}
	v.Justification = FallbackJustification
	if a.narrator == nil {
		return v
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	text, err := a.narrator.AntiCheatJustification(ctx, v.UserActions, false)
	if err != nil {
		a.logger.Printf("[arbiter] justification unavailable: %v", err)
		return v
	}
	if text = strings.TrimSpace(text); text != "" {
		v.Justification = text
	}
	return v
}
