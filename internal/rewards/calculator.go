// Package rewards prices finished games: result validation and the reward
// paid out of a mode's band.
package rewards

import (
	"math"

	"coinrush/internal/config"
)

const (
	ScorePerStep      = 500.0 // score worth one extra base reward
	MaxScoreMultiple  = 3.0
	UnrankedRankBonus = 0.0
)

// Reward computes the payout for a finished game:
//
//	floor(min * (1 + min(score/500, 3) + (total-rank+1)/total))
//
// clamped to the mode's [MinReward, MaxReward]. An out-of-range rank or a
// non-positive total earns no rank bonus.
func Reward(score int64, mode config.Mode, rank, total int) int64 {
	if score < 0 {
		score = 0
	}
	base := float64(mode.MinReward)
	scoreMult := math.Min(float64(score)/ScorePerStep, MaxScoreMultiple)
	reward := int64(math.Floor(base * (1 + scoreMult + RankBonus(rank, total))))
	if reward < mode.MinReward {
		reward = mode.MinReward
	}
	if mode.MaxReward > 0 && reward > mode.MaxReward {
		reward = mode.MaxReward
	}
	return reward
}

// RankBonus is 1 for first place falling linearly to 1/total for last.
func RankBonus(rank, total int) float64 {
	if total <= 0 || rank < 1 || rank > total {
		return UnrankedRankBonus
	}
	return float64(total-rank+1) / float64(total)
}

// Breakdown explains a reward for result screens and the ledger.
type Breakdown struct {
	Base            int64   `json:"base"`
	ScoreMultiplier float64 `json:"score_multiplier"`
	RankBonus       float64 `json:"rank_bonus"`
	Rank            int     `json:"rank"`
	Total           int     `json:"total"`
	Reward          int64   `json:"reward"`
	Capped          bool    `json:"capped"`
}

func Explain(score int64, mode config.Mode, rank, total int) Breakdown {
	reward := Reward(score, mode, rank, total)
	b := Breakdown{
		Base:            mode.MinReward,
		ScoreMultiplier: math.Min(math.Max(float64(score), 0)/ScorePerStep, MaxScoreMultiple),
		RankBonus:       RankBonus(rank, total),
		Rank:            rank,
		Total:           total,
		Reward:          reward,
	}
	raw := int64(math.Floor(float64(b.Base) * (1 + b.ScoreMultiplier + b.RankBonus)))
	b.Capped = mode.MaxReward > 0 && raw > mode.MaxReward
	return b
}
