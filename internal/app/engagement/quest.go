package engagement

import (
	"time"

	"github.com/tutu-network/rivals/internal/domain"
)

// DefaultPlayerName is the name of a fresh player.
const DefaultPlayerName = "Ash"

// WelcomeMessage is the first notification of a fresh game.
const WelcomeMessage = "Welcome to PokeQuest! Complete tasks to level up."

// DefaultTasks returns the daily task template. Every day starts from a
// fresh copy of it.
func DefaultTasks() []domain.Task {
	return []domain.Task{
		{ID: "task-1", Name: "Catch a Pidgey", Difficulty: domain.DifficultyEasy, Duration: 10, TimeLocked: true},
		{ID: "task-2", Name: "Walk 1km", Difficulty: domain.DifficultyEasy},
		{ID: "task-3", Name: "Win a Trainer Battle", Difficulty: domain.DifficultyMedium, Duration: 60, TimeLocked: true},
		{ID: "task-4", Name: "Evolve a Pokemon", Difficulty: domain.DifficultyMedium},
		{ID: "task-5", Name: "Defeat a Gym Leader", Difficulty: domain.DifficultyHard, Duration: 300, TimeLocked: true},
		{ID: "task-6", Name: "Hatch an Egg", Difficulty: domain.DifficultyHard},
	}
}

// DefaultRivals returns the rival roster at its starting XP.
func DefaultRivals() []domain.Rival {
	rivals := []domain.Rival{
		{ID: "jessie", Name: "Jessie", XP: 25, Behavior: domain.BehaviorFocused},
		{ID: "james", Name: "James", XP: 5, Behavior: domain.BehaviorLazy},
		{ID: "meowth", Name: "Meowth", XP: 15, Behavior: domain.BehaviorChaotic},
		{ID: "giovanni", Name: "Giovanni", XP: 75, Behavior: domain.BehaviorHardcore},
	}
	for i := range rivals {
		rivals[i].Level = LevelForXP(rivals[i].XP)
	}
	return rivals
}

// InitialSnapshot returns the state of a brand-new game at now.
func InitialSnapshot(now time.Time, loc *time.Location) domain.Snapshot {
	today := domain.DateOf(now, loc)
	return domain.Snapshot{
		Player:       domain.Player{Name: DefaultPlayerName, XP: 0, Level: 1},
		Rivals:       DefaultRivals(),
		Tasks:        DefaultTasks(),
		Achievements: DefaultAchievements(),
		Notifications: []domain.Notification{
			NewNotification(domain.NotifyWelcome, WelcomeMessage, now),
		},
		LastPlayedDate:  today,
		LastSummaryDate: today,
		LastSimulatedAt: now,
	}
}

// DayReset applies the per-day reset for a new day: tasks return to the
// template, the completion timestamp is cleared and notifications are
// trimmed. Progress, rivals, achievements and streak carry over.
func DayReset(s domain.Snapshot, today domain.Date) domain.Snapshot {
	s.Tasks = DefaultTasks()
	s.LastCompletedTaskAt = nil
	s.Notifications = TrimNotifications(s.Notifications, MaxNotifications)
	s.LastSummaryDate = today
	s.LastPlayedDate = today
	return s
}
