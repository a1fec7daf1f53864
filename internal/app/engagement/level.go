package engagement

import (
	"math"

	"github.com/tutu-network/rivals/internal/domain"
)

// Curve constants. Leveling from L to L+1 costs
// BaseXPRequirement + (L-1)*XPGrowthFactor.
const (
	BaseXPRequirement = 100
	XPGrowthFactor    = 75

	// MaxLevel bounds LevelForXP for absurd inputs.
	MaxLevel = 1_000_000
)

// XPForLevel returns the cumulative XP required to reach a given level.
// XPForLevel(1) = 0, XPForLevel(2) = 100, XPForLevel(3) = 275.
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	n := int64(level - 1)
	// Arithmetic series; n*(2B+(n-1)G) is always even.
	return n * (2*BaseXPRequirement + (n-1)*XPGrowthFactor) / 2
}

// LevelForXP returns the largest level L with XPForLevel(L) <= xp.
// Negative or NaN xp is level 1.
func LevelForXP(xp float64) int {
	if math.IsNaN(xp) || xp < float64(XPForLevel(2)) {
		return 1
	}
	if xp >= float64(XPForLevel(MaxLevel)) {
		return MaxLevel
	}

	// Invert (G/2)n² + (B - G/2)n = xp for n = L-1, then settle on the
	// exact boundary with the integer curve.
	const g, b = float64(XPGrowthFactor), float64(BaseXPRequirement)
	lin := b - g/2
	n := (-lin + math.Sqrt(lin*lin+2*g*xp)) / g
	level := int(n) + 1

	for level < MaxLevel && float64(XPForLevel(level+1)) <= xp {
		level++
	}
	for level > 1 && float64(XPForLevel(level)) > xp {
		level--
	}
	return level
}

// LevelProgress describes where xp sits inside its level.
type LevelProgress struct {
	Level     int     `json:"level"`
	IntoLevel float64 `json:"into_level"` // XP earned since reaching Level
	Span      int64   `json:"span"`       // XP between Level and Level+1
	Percent   float64 `json:"percent"`    // 0.0–100.0
}

// Progress returns the progress toward the next level for display.
func Progress(xp float64) LevelProgress {
	if xp < 0 || math.IsNaN(xp) {
		xp = 0
	}
	level := LevelForXP(xp)
	if level >= MaxLevel {
		return LevelProgress{Level: level, Percent: 100}
	}
	floor := XPForLevel(level)
	span := XPForLevel(level+1) - floor
	into := xp - float64(floor)

	pct := into / float64(span) * 100.0
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return LevelProgress{Level: level, IntoLevel: into, Span: span, Percent: pct}
}

// RecomputeLevels returns s with every level derived from its XP.
func RecomputeLevels(s domain.Snapshot) domain.Snapshot {
	s.Player.Level = LevelForXP(s.Player.XP)
	if len(s.Rivals) > 0 {
		rivals := make([]domain.Rival, len(s.Rivals))
		for i, r := range s.Rivals {
			r.Level = LevelForXP(r.XP)
			rivals[i] = r
		}
		s.Rivals = rivals
	}
	return s
}
