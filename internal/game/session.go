package game

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Session is the single-owner state of one play-through. It is not safe for
// concurrent use; the Controller serializes every mutation.
type Session struct {
	ID      string
	Profile Profile
	Field   Field

	Phase           Phase
	Countdown       int
	Score           int64
	TimeLeft        int
	Elapsed         int
	Streak          int
	HighestStreak   int
	Multiplier      int
	Shields         int
	TokensCollected int
	Achievements    []Achievement
	Combo           string
	comboFrames     int

	Tokens    []*Token
	Particles []Particle
	PowerUps  []PowerUp
	Frames    int64

	spawner *Spawner
	rng     Rand
}

func NewSession(p Profile, field Field, rng Rand) (*Session, error) {
	if p.DurationSec <= 0 {
		return nil, fmt.Errorf("duration must be > 0, got %d", p.DurationSec)
	}
	if p.TimeCapSec < p.DurationSec {
		p.TimeCapSec = p.DurationSec
	}
	if p.FrameHz <= 0 {
		p.FrameHz = 60
	}
	if p.Countdown < 0 {
		p.Countdown = 0
	}
	if p.SpeedMax < p.SpeedMin {
		return nil, fmt.Errorf("speed range [%.2f,%.2f] is invalid", p.SpeedMin, p.SpeedMax)
	}
	if field.Width <= 0 || field.Height <= 0 {
		return nil, errors.New("field dimensions must be positive")
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	if len(p.Table) == 0 {
		p.Table = DefaultTable()
	}
	sp, err := NewSpawner(p.Table)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:      uuid.NewString(),
		Profile: p,
		Field:   field,
		spawner: sp,
		rng:     rng,
	}
	s.Reset()
	return s, nil
}

// Reset zeroes all play state and re-enters the countdown. It is how
// "play again" works after a session ended.
func (s *Session) Reset() {
	s.Phase = PhaseCountdown
	s.Countdown = s.Profile.Countdown
	s.Score = 0
	s.TimeLeft = s.Profile.DurationSec
	s.Elapsed = 0
	s.Streak = 0
	s.HighestStreak = 0
	s.Multiplier = 1
	s.Shields = 0
	s.TokensCollected = 0
	s.Achievements = nil
	s.Combo = ""
	s.comboFrames = 0
	s.Tokens = nil
	s.Particles = nil
	s.PowerUps = nil
	s.Frames = 0
	if s.Countdown == 0 {
		s.Phase = PhaseRunning
	}
}

func (s *Session) Running() bool { return s.Phase == PhaseRunning }

// Exit abandons the session from any phase.
func (s *Session) Exit() {
	if s.Phase == PhaseAbandoned {
		return
	}
	s.Phase = PhaseAbandoned
	s.Tokens = nil
	s.Particles = nil
}

func (s *Session) end() {
	s.Phase = PhaseEnded
	s.TimeLeft = 0
	s.Tokens = nil
}

func (s *Session) setCombo(msg string) {
	s.Combo = msg
	if msg == "" {
		s.comboFrames = 0
		return
	}
	s.comboFrames = int(ComboDisplay.Seconds() * float64(s.Profile.FrameHz))
}

func (s *Session) findToken(id string) int {
	for i, t := range s.Tokens {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Summary is the immutable record of a finished (or abandoned) session.
type Summary struct {
	SessionID       string        `json:"session_id"`
	Mode            string        `json:"mode"`
	Phase           Phase         `json:"phase"`
	Score           int64         `json:"score"`
	TokensCollected int           `json:"tokens_collected"`
	HighestStreak   int           `json:"highest_streak"`
	Multiplier      int           `json:"multiplier"`
	Elapsed         int           `json:"elapsed_sec"`
	Achievements    []Achievement `json:"achievements"`
}

func (s *Session) Summary() Summary {
	ach := make([]Achievement, len(s.Achievements))
	copy(ach, s.Achievements)
	return Summary{
		SessionID:       s.ID,
		Mode:            s.Profile.Mode,
		Phase:           s.Phase,
		Score:           s.Score,
		TokensCollected: s.TokensCollected,
		HighestStreak:   s.HighestStreak,
		Multiplier:      s.Multiplier,
		Elapsed:         s.Elapsed,
		Achievements:    ach,
	}
}

// Snapshot is the render view sent to the display collaborator.
type Snapshot struct {
	SessionID       string        `json:"session_id"`
	Frame           int64         `json:"frame"`
	Phase           Phase         `json:"phase"`
	Countdown       int           `json:"countdown"`
	Score           int64         `json:"score"`
	TimeLeft        int           `json:"time_left"`
	Streak          int           `json:"streak"`
	HighestStreak   int           `json:"highest_streak"`
	Multiplier      int           `json:"multiplier"`
	Shields         int           `json:"shields"`
	TokensCollected int           `json:"tokens_collected"`
	Combo           string        `json:"combo,omitempty"`
	Achievements    []Achievement `json:"achievements"`
	Tokens          []Token       `json:"tokens"`
	Particles       []Particle    `json:"particles"`
	PowerUps        []PowerUp     `json:"power_ups"`
	Opponents       []Opponent    `json:"opponents,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID:       s.ID,
		Frame:           s.Frames,
		Phase:           s.Phase,
		Countdown:       s.Countdown,
		Score:           s.Score,
		TimeLeft:        s.TimeLeft,
		Streak:          s.Streak,
		HighestStreak:   s.HighestStreak,
		Multiplier:      s.Multiplier,
		Shields:         s.Shields,
		TokensCollected: s.TokensCollected,
		Combo:           s.Combo,
		Achievements:    append([]Achievement(nil), s.Achievements...),
		Tokens:          make([]Token, 0, len(s.Tokens)),
		Particles:       append([]Particle(nil), s.Particles...),
		PowerUps:        append([]PowerUp(nil), s.PowerUps...),
	}
	for _, t := range s.Tokens {
		snap.Tokens = append(snap.Tokens, *t)
	}
	return snap
}
