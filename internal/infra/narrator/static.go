package narrator

import (
	"context"
	"fmt"

	"github.com/tutu-network/rivals/internal/domain"
)

// Static answers from fixed templates.
type Static struct{}

// RivalReason picks a line matching the rival's behavior.
func (Static) RivalReason(_ context.Context, name string, behavior domain.RivalBehavior, xpGained float64) (string, error) {
	switch behavior {
	case domain.BehaviorLazy:
		return fmt.Sprintf("%s napped most of the day and still stumbled into %.0f XP.", name, xpGained), nil
	case domain.BehaviorFocused:
		return fmt.Sprintf("%s stuck to the training plan and banked %.0f XP.", name, xpGained), nil
	case domain.BehaviorHardcore:
		return fmt.Sprintf("%s skipped sleep to grind gyms for %.0f XP.", name, xpGained), nil
	case domain.BehaviorChaotic:
		return fmt.Sprintf("Nobody knows how, but %s came back with %.0f XP.", name, xpGained), nil
	}
	return fmt.Sprintf("%s trained quietly for %.0f XP.", name, xpGained), nil
}

// NotificationText nudges the player depending on who is ahead.
func (Static) NotificationText(_ context.Context, streak int, rivalName string, rivalXP, userXP float64) (string, error) {
	switch {
	case rivalXP > userXP:
		return fmt.Sprintf("%s is pulling ahead!", rivalName), nil
	case streak > 0:
		return fmt.Sprintf("Keep your %d-day streak alive!", streak), nil
	}
	return "Your rival is catching up!", nil
}

// AntiCheatJustification restates the recorded actions.
func (Static) AntiCheatJustification(_ context.Context, userActions string, checksPassed bool) (string, error) {
	if checksPassed {
		return "All checks passed; the completion looks legitimate.", nil
	}
	return "Completion blocked: " + userActions, nil
}

var _ domain.Narrator = Static{}
