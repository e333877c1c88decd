package game

import (
	"fmt"
	"math"
)

// Outcome is the result of one click, used for feedback and metrics.
type Outcome struct {
	Found    bool          `json:"found"`
	TokenID  string        `json:"token_id"`
	Kind     Kind          `json:"kind,omitempty"`
	Delta    int64         `json:"delta"`
	Score    int64         `json:"score"`
	Combo    string        `json:"combo,omitempty"`
	Unlocked []Achievement `json:"unlocked,omitempty"`
}

// Click resolves a click on a live token. Unknown ids (already culled or
// already clicked) and clicks outside the running phase are ignored.
func Click(s *Session, id string) Outcome {
	out := Outcome{TokenID: id}
	if !s.Running() {
		return out
	}
	idx := s.findToken(id)
	if idx < 0 {
		return out
	}
	t := s.Tokens[idx]
	out.Found = true
	out.Kind = t.Kind

	var delta int64
	combo := ""
	switch t.Kind {
	case KindNormal, KindBonus:
		delta = t.Value * int64(s.Multiplier)
		s.Streak++
		s.TokensCollected++
		if s.Streak > s.HighestStreak {
			s.HighestStreak = s.Streak
		}
		if s.Streak >= BonusStreak {
			delta *= 2
			combo = "STREAK BONUS! x2"
		} else if s.Streak >= ComboStreak {
			delta = int64(math.Floor(float64(delta) * 1.5))
			combo = "COMBO! x1.5"
		}
	case KindMultiplier:
		s.Multiplier = min(s.Multiplier+1, MaxMultiplier)
		s.PowerUps = append(s.PowerUps, PowerUp{Kind: PowerMultiplier, Duration: MultiplierPowerUpSec, Active: true})
		combo = fmt.Sprintf("MULTIPLIER x%d!", s.Multiplier)
	case KindBomb:
		if s.Shields > 0 {
			s.Shields--
			combo = "SHIELD PROTECTED!"
		} else {
			delta = t.Value
			s.Streak = 0
			s.Multiplier = 1
			combo = "BOMB HIT!"
		}
	case KindShield:
		s.Shields = min(s.Shields+1, MaxShields)
		combo = "SHIELD GAINED!"
	case KindTime:
		s.TimeLeft = min(s.TimeLeft+TimeBonusSec, s.Profile.TimeCapSec)
		combo = fmt.Sprintf("+%d SECONDS!", TimeBonusSec)
	}

	s.Score = max(0, s.Score+delta)
	s.setCombo(combo)

	s.Tokens = append(s.Tokens[:idx], s.Tokens[idx+1:]...)
	burst(s, t, delta)

	out.Delta = delta
	out.Score = s.Score
	out.Combo = combo
	out.Unlocked = s.checkAchievements()
	return out
}

// burst emits feedback particles from the token centre.
func burst(s *Session, t *Token, value int64) {
	n := ParticlesPlain
	if t.Kind == KindBonus {
		n = ParticlesBonus
	}
	cx, cy := t.X+t.Size/2, t.Y+t.Size/2
	for i := 0; i < n; i++ {
		s.Particles = append(s.Particles, Particle{
			X:     cx,
			Y:     cy,
			VX:    (s.rng.Float64() - 0.5) * ParticleSpread,
			VY:    (s.rng.Float64() - 0.5) * ParticleSpread,
			Life:  1,
			Value: value,
			Kind:  t.Kind,
		})
	}
}
