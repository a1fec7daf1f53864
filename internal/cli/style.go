package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tutu-network/rivals/internal/api"
	"github.com/tutu-network/rivals/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	accent     = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	cardStyle  = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
)

// progressBar renders pct (0-100) as a fixed-width bar.
func progressBar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / 100 * float64(width))
	return accent.Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", width-filled))
}

func renderStatus(v api.StateView) string {
	p := v.Progress
	player := strings.Join([]string{
		titleStyle.Render(fmt.Sprintf("%s  Lv %d", v.Player.Name, v.Player.Level)),
		fmt.Sprintf("%s %.0f/%d XP", progressBar(p.Percent, 20), p.IntoLevel, p.Span),
		mutedStyle.Render(fmt.Sprintf("total %.0f XP · streak %d day(s) · x%.1f XP", v.Player.XP, v.Streak, v.Multiplier)),
	}, "\n")

	var rivals []string
	rivals = append(rivals, titleStyle.Render("Rivals"))
	for _, r := range v.Rivals {
		line := fmt.Sprintf("%-9s Lv %-3d %6.0f XP  %s", r.Name, r.Level, r.XP, mutedStyle.Render(string(r.Behavior)))
		if r.XP > v.Player.XP {
			line = badStyle.Render("▲ ") + line
		} else {
			line = goodStyle.Render("▼ ") + line
		}
		rivals = append(rivals, line)
	}

	done := 0
	for _, t := range v.Tasks {
		if t.Completed {
			done++
		}
	}
	footer := mutedStyle.Render(fmt.Sprintf("%s · tasks %d/%d · %d unread", v.Today, done, len(v.Tasks), v.Unread))
	if v.SummaryPending {
		footer += "\n" + accent.Render("Yesterday's summary is waiting: run 'rivals summary'")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		cardStyle.Render(player),
		cardStyle.Render(strings.Join(rivals, "\n")),
		footer,
	)
}

func renderSummary(s domain.DailySummary) string {
	outcome := string(s.Outcome)
	switch s.Outcome {
	case domain.OutcomeWin:
		outcome = goodStyle.Render("You won the day!")
	case domain.OutcomeLoss:
		outcome = badStyle.Render("Your rivals out-trained you.")
	case domain.OutcomeTie:
		outcome = accent.Render("A draw.")
	}

	lines := []string{
		titleStyle.Render("Daily summary for " + s.Date.String()),
		outcome,
		fmt.Sprintf("You gained %.0f XP · rivals gained %.0f XP · streak %d", s.PlayerXPGained, s.RivalsXPGained, s.Streak),
	}
	for _, r := range s.Rivals {
		lines = append(lines, fmt.Sprintf("  %s +%.0f  %s", r.Name, r.XPGained, mutedStyle.Render(r.Reason)))
	}
	return cardStyle.Render(strings.Join(lines, "\n"))
}
