// Package store keeps the ledger of finished games and wallet transactions.
package store

import (
	"context"
	"errors"
	"time"

	"coinrush/internal/wallet"
)

var ErrNotFound = errors.New("not found")

// Result is one finished (or abandoned) play-through.
type Result struct {
	SessionID       string    `json:"session_id"`
	Round           int       `json:"round"`
	Address         string    `json:"address"`
	Mode            string    `json:"mode"`
	Phase           string    `json:"phase"`
	Score           int64     `json:"score"`
	TokensCollected int       `json:"tokens_collected"`
	HighestStreak   int       `json:"highest_streak"`
	DurationSec     int       `json:"duration_sec"`
	Rank            int       `json:"rank"`
	Total           int       `json:"total"`
	Reward          int64     `json:"reward"`
	Valid           bool      `json:"valid"`
	Failed          []string  `json:"failed,omitempty"`
	Achievements    []string  `json:"achievements,omitempty"`
	RewardTx        string    `json:"reward_tx,omitempty"`
	FinishedAt      time.Time `json:"finished_at"`
}

type Store interface {
	wallet.Recorder
	SaveResult(ctx context.Context, r Result) error
	Result(ctx context.Context, sessionID string, round int) (Result, error)
	RecentResults(ctx context.Context, address string, limit int) ([]Result, error)
	// PlayerStats returns a zero profile (level 1) for unknown addresses.
	PlayerStats(ctx context.Context, address string) (PlayerStats, error)
	RecordPlacement(ctx context.Context, address string, rank int, prize int64) error
	Ping(ctx context.Context) error
	Close()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}
