package game

import "time"

const (
	MaxMultiplier        = 5
	MaxShields           = 3
	ComboStreak          = 5   // streak at which gains are x1.5
	BonusStreak          = 10  // streak at which gains are x2
	TimeBonusSec         = 5
	MultiplierPowerUpSec = 10
	DefaultCountdown     = 3
	ComboDisplay         = 2 * time.Second

	CullMargin      = 100.0 // px below the field before a token is dropped
	RotationPulse   = 3.0   // deg per tick for special tokens
	RotationPlain   = 1.0
	ParticleDecay   = 0.02
	ParticleDamping = 0.98
	ParticleSpread  = 15.0 // velocity components drawn from +-Spread/2
	ParticlesPlain  = 5
	ParticlesBonus  = 8

	StreakMasterAt  = 20
	HighScorerAt    = 500
	MultiplierMaxAt = MaxMultiplier
)
