// Package rival simulates rival activity while the player is away.
//
// Time is cut into whole simulation units. In each unit a rival is active
// with a probability set by its behavior and, when active, completes one
// task whose difficulty is drawn from the behavior's weights.
package rival

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/tutu-network/rivals/internal/domain"
)

// Unit is the length of one simulation step.
const Unit = time.Hour

// Profile is the activity table for one behavior.
type Profile struct {
	Activity float64    // probability of being active in a unit
	Weights  [3]float64 // Easy, Medium, Hard; sums to 1
}

var profiles = map[domain.RivalBehavior]Profile{
	domain.BehaviorLazy:     {Activity: 0.3, Weights: [3]float64{1, 0, 0}},
	domain.BehaviorFocused:  {Activity: 0.7, Weights: [3]float64{0.4, 0.6, 0}},
	domain.BehaviorHardcore: {Activity: 0.9, Weights: [3]float64{0, 0.5, 0.5}},
	domain.BehaviorChaotic:  {Activity: 0.9, Weights: [3]float64{1.0 / 3, 1.0 / 3, 1.0 / 3}},
}

var difficulties = [3]domain.Difficulty{domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard}

// ProfileFor returns the profile for b. Unknown behaviors are never active.
func ProfileFor(b domain.RivalBehavior) Profile {
	return profiles[b]
}

// ExpectedPerUnit returns the mean XP a behavior earns per unit.
func (p Profile) ExpectedPerUnit() float64 {
	var mean float64
	for i, w := range p.Weights {
		mean += w * difficulties[i].BaseXP()
	}
	return p.Activity * mean
}

// MaxPerUnit is the most XP any behavior can earn in a single unit.
func MaxPerUnit() float64 {
	return domain.DifficultyHard.BaseXP()
}

// Units returns the number of whole units in [from, to).
// Non-positive spans and a zero from yield 0.
func Units(from, to time.Time) int {
	if from.IsZero() || !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / Unit)
}

// Simulator samples rival activity. It is safe for concurrent use.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator returns a simulator with a fixed seed, for reproducible runs.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{rng: rand.New(rand.NewSource(seed))}
}

// NewRandomSimulator returns a simulator seeded from crypto/rand.
func NewRandomSimulator() (*Simulator, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	return NewSimulator(int64(binary.LittleEndian.Uint64(b[:]))), nil
}

// Simulate returns the XP a rival with behavior b gains over units.
// The result is always >= 0 and 0 when units <= 0.
func (s *Simulator) Simulate(b domain.RivalBehavior, units int) float64 {
	if units <= 0 {
		return 0
	}
	p, ok := profiles[b]
	if !ok {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var gained float64
	for i := 0; i < units; i++ {
		if s.rng.Float64() >= p.Activity {
			continue
		}
		gained += pick(p.Weights, s.rng.Float64()).BaseXP()
	}
	return gained
}

// pick maps r in [0,1) onto the cumulative weights.
func pick(weights [3]float64, r float64) domain.Difficulty {
	var acc float64
	for i, w := range weights {
		acc += w
		if r < acc {
			return difficulties[i]
		}
	}
	// Rounding left r just above the total: take the last weighted bucket.
	for i := len(weights) - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return difficulties[i]
		}
	}
	return domain.DifficultyEasy
}

// Gain is one rival's result from CatchUp.
type Gain struct {
	RivalID  string
	XPGained float64
}

// CatchUp simulates every rival over [from, to) and returns the updated
// rivals, the gains in roster order and the new anchor. The anchor advances
// by whole units only, so a repeated call over the same span adds nothing.
func (s *Simulator) CatchUp(rivals []domain.Rival, from, to time.Time) ([]domain.Rival, []Gain, time.Time) {
	units := Units(from, to)
	out := append([]domain.Rival(nil), rivals...)
	gains := make([]Gain, len(out))
	for i := range out {
		g := s.Simulate(out[i].Behavior, units)
		out[i].XP += g
		gains[i] = Gain{RivalID: out[i].ID, XPGained: g}
	}
	if from.IsZero() {
		return out, gains, to
	}
	return out, gains, from.Add(time.Duration(units) * Unit)
}
