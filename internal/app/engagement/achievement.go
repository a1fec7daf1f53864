package engagement

import (
	"fmt"
	"time"

	"github.com/tutu-network/rivals/internal/domain"
)

// Satisfied reports whether the predicate of a holds for s.
// Unknown kinds never unlock.
func Satisfied(a domain.Achievement, s domain.Snapshot) bool {
	switch a.Kind {
	case domain.KindFirstTask:
		return s.AnyTaskCompleted()
	case domain.KindReachLevel:
		return s.Player.Level >= a.Threshold
	case domain.KindStreakDays:
		return s.Streak >= a.Threshold
	case domain.KindAllTasksDone:
		return s.AllTasksCompleted()
	}
	return false
}

// EvaluateAchievements unlocks every locked achievement whose predicate now
// holds and appends one notification per unlock, in catalog order.
// Already-unlocked achievements are skipped, so a second call on the result
// returns it unchanged.
func EvaluateAchievements(s domain.Snapshot, now time.Time) (domain.Snapshot, []domain.Achievement) {
	var newlyUnlocked []domain.Achievement
	var achievements []domain.Achievement

	for i, a := range s.Achievements {
		if a.Unlocked || !Satisfied(a, s) {
			continue
		}
		if achievements == nil {
			achievements = append([]domain.Achievement(nil), s.Achievements...)
		}
		achievements[i].Unlocked = true
		newlyUnlocked = append(newlyUnlocked, achievements[i])
	}
	if len(newlyUnlocked) == 0 {
		return s, nil
	}

	s.Achievements = achievements
	for _, a := range newlyUnlocked {
		s = AppendNotification(s, NewNotification(domain.NotifyAchievement, AchievementMessage(a), now))
	}
	return s, newlyUnlocked
}

// AchievementMessage is the notification text for an unlock.
func AchievementMessage(a domain.Achievement) string {
	return fmt.Sprintf("Achievement Unlocked: %s!", a.Name)
}

// ─── Achievement Definitions ────────────────────────────────────────────────

// DefaultAchievements returns the achievement catalog, all locked.
// Declaration order is evaluation order.
func DefaultAchievements() []domain.Achievement {
	return []domain.Achievement{
		{ID: "ach-1", Name: "First Step", Description: "Complete your first task.", Kind: domain.KindFirstTask},
		{ID: "ach-2", Name: "Getting Stronger", Description: "Reach level 5.", Kind: domain.KindReachLevel, Threshold: 5},
		{ID: "ach-3", Name: "Dedicated Trainer", Description: "Maintain a 7-day streak.", Kind: domain.KindStreakDays, Threshold: 7},
		{ID: "ach-4", Name: "Taskmaster", Description: "Complete all of today's tasks.", Kind: domain.KindAllTasksDone},
		{ID: "ach-5", Name: "Champion in the Making", Description: "Reach level 10.", Kind: domain.KindReachLevel, Threshold: 10},
	}
}
