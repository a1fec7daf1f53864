// Package domain holds the pure game-state types shared by every layer.
// Nothing here touches storage, the network or the clock.
package domain

import "time"

// ─── Player / Rival ─────────────────────────────────────────────────────────

// Player is the tracked human.
type Player struct {
	Name  string  `json:"name"`
	XP    float64 `json:"xp"`
	Level int     `json:"level"`
}

// RivalBehavior selects a rival's simulated activity profile.
type RivalBehavior string

const (
	BehaviorLazy     RivalBehavior = "Lazy"
	BehaviorFocused  RivalBehavior = "Focused"
	BehaviorHardcore RivalBehavior = "Hardcore"
	BehaviorChaotic  RivalBehavior = "Chaotic"
)

// Valid reports whether b is one of the known behaviors.
func (b RivalBehavior) Valid() bool {
	switch b {
	case BehaviorLazy, BehaviorFocused, BehaviorHardcore, BehaviorChaotic:
		return true
	}
	return false
}

// Rival is a simulated opponent. ID is stable across days.
type Rival struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	XP       float64       `json:"xp"`
	Level    int           `json:"level"`
	Behavior RivalBehavior `json:"behavior"`
	ImageURL string        `json:"image_url,omitempty"`
}

// ─── Achievement Types ──────────────────────────────────────────────────────

// AchievementKind is the predicate family of an achievement.
type AchievementKind string

const (
	KindFirstTask    AchievementKind = "first_task"     // any task completed
	KindReachLevel   AchievementKind = "reach_level"    // player.level >= Threshold
	KindStreakDays   AchievementKind = "streak_days"    // streak >= Threshold
	KindAllTasksDone AchievementKind = "all_tasks_done" // every current task completed
)

// Achievement is a one-way unlockable. Unlocked never goes back to false.
type Achievement struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Kind        AchievementKind `json:"kind"`
	Threshold   int             `json:"threshold,omitempty"`
	Unlocked    bool            `json:"unlocked"`
}

// ─── Notification Types ─────────────────────────────────────────────────────

// NotificationKind categorizes a notification for display.
type NotificationKind string

const (
	NotifyWelcome      NotificationKind = "welcome"
	NotifyAchievement  NotificationKind = "achievement"
	NotifyRivalLevelUp NotificationKind = "rival_level_up"
	NotifyRivalGain    NotificationKind = "rival_gain"
	NotifyAntiCheat    NotificationKind = "anti_cheat"
	NotifySystem       NotificationKind = "system"
)

// Notification is an append-only message shown to the player.
// IDs are ULIDs, so lexical order is creation order.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
	Read      bool             `json:"read"`
}

// ─── Daily Summary ──────────────────────────────────────────────────────────

// Outcome compares the player's daily gain with the rivals' combined gain.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeTie  Outcome = "tie"
)

// OutcomeOf returns the outcome of a day given both gains.
func OutcomeOf(playerGain, rivalsGain float64) Outcome {
	switch {
	case playerGain > rivalsGain:
		return OutcomeWin
	case playerGain < rivalsGain:
		return OutcomeLoss
	default:
		return OutcomeTie
	}
}

// RivalGain is one rival's line in a DailySummary.
type RivalGain struct {
	RivalID  string  `json:"rival_id"`
	Name     string  `json:"name"`
	XPGained float64 `json:"xp_gained"`
	Reason   string  `json:"reason"`
}

// DailySummary is the report for a closed day. It is produced once per day
// close and handed to the presentation layer exactly once.
type DailySummary struct {
	Date           Date        `json:"date"`
	PlayerXPGained float64     `json:"player_xp_gained"`
	Rivals         []RivalGain `json:"rivals"`
	RivalsXPGained float64     `json:"rivals_xp_gained"`
	Outcome        Outcome     `json:"outcome"`
	Streak         int         `json:"streak"`
	CreatedAt      time.Time   `json:"created_at"`
}
