package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type ModeID string

const (
	ModePractice   ModeID = "practice"
	ModeBlitz      ModeID = "blitz"
	ModeEndurance  ModeID = "endurance"
	ModeTournament ModeID = "tournament"
)

// Mode is a game-mode profile: economics (entry fee, reward band) plus the
// pacing knobs the engine needs (clock, spawn cadence, fall speeds).
type Mode struct {
	ID          ModeID `json:"id"`
	Name        string `json:"name"`
	Tier        int    `json:"tier"`
	Description string `json:"description"`

	EntryFee  int64 `json:"entry_fee"`
	MinReward int64 `json:"min_reward"`
	MaxReward int64 `json:"max_reward"`
	// FreePlay skips the wallet-type and balance checks for paid actions.
	FreePlay bool `json:"free_play"`

	DurationSec int `json:"duration_sec"`
	TimeCapSec  int `json:"time_cap_sec"`

	SpawnInterval time.Duration `json:"spawn_interval"`
	BurstInterval time.Duration `json:"burst_interval"` // 0 disables bursts
	BurstMin      int           `json:"burst_min"`
	BurstMax      int           `json:"burst_max"`
	BurstStagger  time.Duration `json:"burst_stagger"`

	SpeedMin float64 `json:"speed_min"`
	SpeedMax float64 `json:"speed_max"`

	// PowerTokens adds shield and time tokens to the spawn table.
	PowerTokens bool `json:"power_tokens"`
}

var defaultModes = map[ModeID]Mode{
	ModePractice: {
		ID:            ModePractice,
		Name:          "Practice Run",
		Tier:          0,
		Description:   "Free warm-up round, small rewards",
		EntryFee:      0,
		MinReward:     1,
		MaxReward:     10,
		FreePlay:      true,
		DurationSec:   60,
		TimeCapSec:    120,
		SpawnInterval: time.Second,
		SpeedMin:      1.5,
		SpeedMax:      3.0,
	},
	ModeBlitz: {
		ID:            ModeBlitz,
		Name:          "Blitz Rush",
		Tier:          1,
		Description:   "60 seconds of pure token grabbing",
		EntryFee:      10,
		MinReward:     5,
		MaxReward:     50,
		DurationSec:   60,
		TimeCapSec:    120,
		SpawnInterval: time.Second,
		SpeedMin:      1.5,
		SpeedMax:      3.0,
	},
	ModeEndurance: {
		ID:            ModeEndurance,
		Name:          "Endurance Race",
		Tier:          2,
		Description:   "Longer round with shields and time bonuses",
		EntryFee:      25,
		MinReward:     15,
		MaxReward:     150,
		DurationSec:   180,
		TimeCapSec:    300,
		SpawnInterval: 1200 * time.Millisecond,
		SpeedMin:      1.2,
		SpeedMax:      2.5,
		PowerTokens:   true,
	},
	ModeTournament: {
		ID:            ModeTournament,
		Name:          "Tournament",
		Tier:          3,
		Description:   "Fast spawns with token bursts",
		EntryFee:      50,
		MinReward:     25,
		MaxReward:     500,
		DurationSec:   120,
		TimeCapSec:    180,
		SpawnInterval: 800 * time.Millisecond,
		BurstInterval: 5 * time.Second,
		BurstMin:      2,
		BurstMax:      4,
		BurstStagger:  150 * time.Millisecond,
		SpeedMin:      2.0,
		SpeedMax:      3.5,
		PowerTokens:   true,
	},
}

// Modes is the registry of playable modes.
type Modes struct {
	byID map[ModeID]Mode
}

func DefaultModes() Modes {
	m := make(map[ModeID]Mode, len(defaultModes))
	for id, mode := range defaultModes {
		m[id] = mode
	}
	return Modes{byID: m}
}

func (m Modes) Get(id ModeID) (Mode, bool) {
	mode, ok := m.byID[ModeID(strings.ToLower(strings.TrimSpace(string(id))))]
	return mode, ok
}

// List returns modes ordered by tier.
func (m Modes) List() []Mode {
	out := make([]Mode, 0, len(m.byID))
	for _, mode := range m.byID {
		out = append(out, mode)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out
}

func (m Modes) set(mode Mode) { m.byID[mode.ID] = mode }

func (mode Mode) Validate() error {
	switch {
	case mode.ID == "":
		return fmt.Errorf("mode id is empty")
	case mode.MinReward < 0 || mode.MaxReward < mode.MinReward:
		return fmt.Errorf("mode %s: reward band [%d,%d] is invalid", mode.ID, mode.MinReward, mode.MaxReward)
	case mode.EntryFee < 0:
		return fmt.Errorf("mode %s: entry fee must be >= 0", mode.ID)
	case mode.DurationSec <= 0 || mode.TimeCapSec < mode.DurationSec:
		return fmt.Errorf("mode %s: duration %ds / cap %ds is invalid", mode.ID, mode.DurationSec, mode.TimeCapSec)
	case mode.SpawnInterval <= 0:
		return fmt.Errorf("mode %s: spawn interval must be > 0", mode.ID)
	case mode.SpeedMin <= 0 || mode.SpeedMax < mode.SpeedMin:
		return fmt.Errorf("mode %s: speed range [%.2f,%.2f] is invalid", mode.ID, mode.SpeedMin, mode.SpeedMax)
	case mode.BurstInterval > 0 && (mode.BurstMin < 1 || mode.BurstMax < mode.BurstMin):
		return fmt.Errorf("mode %s: burst size [%d,%d] is invalid", mode.ID, mode.BurstMin, mode.BurstMax)
	}
	return nil
}
