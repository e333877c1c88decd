package rewards

import (
	"testing"

	"coinrush/internal/config"
)

func mode(t *testing.T, id config.ModeID) config.Mode {
	t.Helper()
	m, ok := config.DefaultModes().Get(id)
	if !ok {
		t.Fatalf("mode %s missing", id)
	}
	return m
}

func TestReward(t *testing.T) {
	blitz := mode(t, config.ModeBlitz)
	endurance := mode(t, config.ModeEndurance)
	tournament := mode(t, config.ModeTournament)

	tests := []struct {
		name  string
		score int64
		mode  config.Mode
		rank  int
		total int
		want  int64
	}{
		{"blitz winner 500 of 10", 500, blitz, 1, 10, 15},
		{"blitz last with no score", 0, blitz, 10, 10, 5},
		{"blitz score multiple capped", 10000, blitz, 1, 1, 25},
		{"endurance mid table", 250, endurance, 3, 5, 31},
		{"tournament top", 1500, tournament, 1, 5, 125},
		{"invalid rank gets no bonus", 500, blitz, 0, 10, 10},
		{"rank past total gets no bonus", 500, blitz, 11, 10, 10},
		{"empty table gets no bonus", 500, blitz, 1, 0, 10},
		{"negative score", -50, blitz, 10, 10, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reward(tt.score, tt.mode, tt.rank, tt.total)
			if got != tt.want {
				t.Fatalf("Reward(%d, %s, %d, %d) = %d, want %d", tt.score, tt.mode.ID, tt.rank, tt.total, got, tt.want)
			}
			if got < tt.mode.MinReward || got > tt.mode.MaxReward {
				t.Fatalf("reward %d outside band [%d,%d]", got, tt.mode.MinReward, tt.mode.MaxReward)
			}
		})
	}
}

func TestRewardClampsToMax(t *testing.T) {
	m := config.Mode{ID: "tight", MinReward: 20, MaxReward: 30}
	if got := Reward(1500, m, 1, 1); got != 30 {
		t.Fatalf("reward = %d, want 30", got)
	}
	b := Explain(1500, m, 1, 1)
	if !b.Capped || b.Reward != 30 || b.ScoreMultiplier != 3 || b.RankBonus != 1 {
		t.Fatalf("breakdown = %+v", b)
	}
}

func TestRewardIsMonotonicInRank(t *testing.T) {
	m := mode(t, config.ModeTournament)
	prev := Reward(800, m, 1, 8)
	for rank := 2; rank <= 8; rank++ {
		got := Reward(800, m, rank, 8)
		if got > prev {
			t.Fatalf("rank %d paid %d, more than rank %d (%d)", rank, got, rank-1, prev)
		}
		prev = got
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		m      Metrics
		failed []Check
	}{
		{"plausible blitz", Metrics{Score: 300, TokensCollected: 25, DurationSec: 60, Streak: 12}, nil},
		{"score too fast", Metrics{Score: 10000, TokensCollected: 5, DurationSec: 10, Streak: 5}, []Check{CheckScore}},
		{"streak beyond tokens", Metrics{Score: 10, TokensCollected: 3, DurationSec: 60, Streak: 4}, []Check{CheckStreak}},
		{"zero duration", Metrics{}, []Check{CheckDuration}},
		{"too long", Metrics{Score: 10, TokensCollected: 1, DurationSec: 601, Streak: 1}, []Check{CheckDuration}},
		{"too many tokens", Metrics{Score: 31, TokensCollected: 31, DurationSec: 60, Streak: 1}, []Check{CheckCollection}},
		{"boundary", Metrics{Score: 900, TokensCollected: 30, DurationSec: 60, Streak: 30}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Inspect(tt.m)
			if v.Valid != (len(tt.failed) == 0) || Validate(tt.m) != v.Valid {
				t.Fatalf("valid = %v, failed = %v", v.Valid, v.Failed)
			}
			if len(v.Failed) != len(tt.failed) {
				t.Fatalf("failed = %v, want %v", v.Failed, tt.failed)
			}
			for i := range tt.failed {
				if v.Failed[i] != tt.failed[i] {
					t.Fatalf("failed = %v, want %v", v.Failed, tt.failed)
				}
			}
		})
	}
}

func TestVerdictString(t *testing.T) {
	v := Inspect(Metrics{Score: 10000, TokensCollected: 50, DurationSec: 10, Streak: 60})
	if got := v.String(); got != "result rejected: score_rate, streak, collection_rate" {
		t.Fatalf("String() = %q", got)
	}
	if got := Inspect(Metrics{Score: 1, TokensCollected: 1, DurationSec: 60, Streak: 1}).String(); got != "ok" {
		t.Fatalf("String() = %q", got)
	}
}
