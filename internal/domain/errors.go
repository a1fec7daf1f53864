package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency.

var (
	// Task errors
	ErrTaskNotFound       = errors.New("task not found")
	ErrTaskCompleted      = errors.New("task already completed")
	ErrTaskNotTimeLocked  = errors.New("task is not time-locked")
	ErrTaskAlreadyStarted = errors.New("task already started")
	ErrInvalidDifficulty  = errors.New("invalid difficulty")
	ErrInvalidTask        = errors.New("invalid task")
	ErrDayNotClosed       = errors.New("previous day has not been closed")

	// Anti-cheat rejection. The snapshot is left unchanged.
	ErrAntiCheat = errors.New("task completion blocked by anti-cheat")

	// Persistence errors
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrSnapshotCorrupt  = errors.New("snapshot is corrupt")
	ErrSummaryNotFound  = errors.New("no pending summary")
	ErrSummaryMismatch  = errors.New("pending summary is for a different date")

	// Engine errors
	ErrEngineStopped = errors.New("game engine is not running")
)
