package game

import (
	"math/rand"
	"time"
)

// Rand is the subset of *rand.Rand the engine draws from. Tests substitute
// seeded sources to make spawns and opponents reproducible.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

type Field struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Token struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Speed    float64 `json:"speed"`
	Kind     Kind    `json:"kind"`
	Value    int64   `json:"value"`
	Size     float64 `json:"size"`
	Rotation float64 `json:"rotation"`
	Pulse    bool    `json:"pulse"`
}

type Particle struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
	Life  float64 `json:"life"`
	Value int64   `json:"value"`
	Kind  Kind    `json:"kind"`
}

type PowerUp struct {
	Kind     PowerUpKind `json:"kind"`
	Duration int         `json:"duration"`
	Active   bool        `json:"active"`
}

// Profile is everything the engine needs to know about a mode.
type Profile struct {
	Mode          string
	DurationSec   int
	TimeCapSec    int
	Countdown     int
	FrameHz       int
	SpawnInterval time.Duration
	BurstInterval time.Duration
	BurstMin      int
	BurstMax      int
	BurstStagger  time.Duration
	SpeedMin      float64
	SpeedMax      float64
	Table         []TokenSpec
}

type Phase string

const (
	PhaseCountdown Phase = "countdown"
	PhaseRunning   Phase = "running"
	PhaseEnded     Phase = "ended"
	PhaseAbandoned Phase = "abandoned"
)

// Terminal reports whether no further play can happen in this phase.
func (p Phase) Terminal() bool { return p == PhaseEnded || p == PhaseAbandoned }
