// Package engagement implements the progression rules: the level curve,
// streak arithmetic, achievements and notifications. Everything here is a
// pure function of its inputs.
package engagement

import "github.com/tutu-network/rivals/internal/domain"

// Streak bonus: +15% per consecutive day, capped at 2×.
const (
	streakStepPct = 15
	streakCapPct  = 200
)

// StreakMultiplier returns the XP multiplier for the streak.
// 0 → 1.0, 5 → 1.75, 7 and above → 2.0.
func StreakMultiplier(streak int) float64 {
	if streak <= 0 {
		return 1.0
	}
	pct := 100 + streak*streakStepPct
	if pct > streakCapPct || pct < 0 {
		pct = streakCapPct
	}
	return float64(pct) / 100
}

// TaskXP returns the reward for completing a task of difficulty d at streak.
func TaskXP(d domain.Difficulty, streak int) float64 {
	return d.BaseXP() * StreakMultiplier(streak)
}

// NextStreak computes the streak after closing the day `closed` on `today`.
//
// More than one calendar day since the last observed play breaks the streak
// silently. Otherwise the streak extends only if the closed day had a
// qualifying action.
func NextStreak(streak int, lastPlayed, lastActive, closed, today domain.Date) int {
	if !lastPlayed.IsZero() && domain.DaysBetween(lastPlayed, today) > 1 {
		return 0
	}
	if !lastActive.IsZero() && lastActive == closed {
		return streak + 1
	}
	return streak
}
