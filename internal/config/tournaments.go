package config

import (
	"fmt"
	"time"
)

// TournamentSpec schedules a recurring tournament. The first edition opens
// StartIn after boot; a new one follows every Every (0 runs it once).
type TournamentSpec struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Mode       ModeID        `json:"mode"`
	EntryFee   int64         `json:"entry_fee"`
	PrizePool  int64         `json:"prize_pool"`
	MaxPlayers int           `json:"max_players"`
	StartIn    time.Duration `json:"start_in"`
	Duration   time.Duration `json:"duration"`
	Every      time.Duration `json:"every"`
}

func DefaultTournaments() []TournamentSpec {
	return []TournamentSpec{
		{
			ID:         "mega",
			Name:       "Mega Tournament",
			Mode:       ModeTournament,
			EntryFee:   100,
			PrizePool:  10000,
			MaxPlayers: 100,
			StartIn:    2 * time.Hour,
			Duration:   30 * time.Minute,
			Every:      24 * time.Hour,
		},
		{
			ID:         "speed",
			Name:       "Speed Challenge",
			Mode:       ModeBlitz,
			EntryFee:   50,
			PrizePool:  5000,
			MaxPlayers: 50,
			StartIn:    6 * time.Hour,
			Duration:   15 * time.Minute,
			Every:      12 * time.Hour,
		},
	}
}

func (t TournamentSpec) Validate(modes Modes) error {
	switch {
	case t.ID == "":
		return fmt.Errorf("tournament id is empty")
	case t.EntryFee < 0 || t.PrizePool < 0:
		return fmt.Errorf("tournament %s: fee and prize pool must be >= 0", t.ID)
	case t.MaxPlayers < 1:
		return fmt.Errorf("tournament %s: max players must be >= 1", t.ID)
	case t.Duration <= 0:
		return fmt.Errorf("tournament %s: duration must be > 0", t.ID)
	case t.Every != 0 && t.Every < t.Duration:
		return fmt.Errorf("tournament %s: editions may not overlap", t.ID)
	}
	if _, ok := modes.Get(t.Mode); !ok {
		return fmt.Errorf("tournament %s: unknown mode %q", t.ID, t.Mode)
	}
	return nil
}
