package domain

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty determines a task's base XP.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// BaseXP returns the unmultiplied reward for the difficulty.
func (d Difficulty) BaseXP() float64 {
	switch d {
	case DifficultyEasy:
		return 10
	case DifficultyMedium:
		return 25
	case DifficultyHard:
		return 50
	}
	return 0
}

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// ParseDifficulty accepts the canonical names case-insensitively.
func ParseDifficulty(s string) (Difficulty, error) {
	for _, d := range []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard} {
		if strings.EqualFold(s, string(d)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDifficulty, s)
}

// Task is one of the day's quests.
type Task struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Difficulty Difficulty `json:"difficulty"`
	// Duration is the minimum time in seconds a time-locked task must run.
	Duration   int        `json:"duration"`
	TimeLocked bool       `json:"is_time_locked"`
	Completed  bool       `json:"completed"`
	StartTime  *time.Time `json:"start_time,omitempty"`
}

// MinDuration returns Duration as a time.Duration.
func (t Task) MinDuration() time.Duration {
	return time.Duration(t.Duration) * time.Second
}
