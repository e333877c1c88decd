package store

import "time"

// AchievementTournamentWinner is granted to a tournament's first place.
const AchievementTournamentWinner = "tournament_winner"

// PlayerStats is the running profile of one wallet. A result is folded in
// the first time its round is saved; later upserts of the same round leave
// the stats alone.
type PlayerStats struct {
	Address         string    `json:"address"`
	GamesPlayed     int       `json:"games_played"`
	GamesWon        int       `json:"games_won"`
	WinRate         float64   `json:"win_rate"`
	TotalScore      int64     `json:"total_score"`
	HighScore       int64     `json:"high_score"`
	TokensCollected int64     `json:"tokens_collected"`
	MaxStreak       int       `json:"max_streak"`
	TotalEarned     int64     `json:"total_earned"`
	TournamentWins  int       `json:"tournament_wins"`
	Experience      int64     `json:"experience"`
	Level           int       `json:"level"`
	Achievements    []string  `json:"achievements"`
	LastPlayedAt    time.Time `json:"last_played_at,omitempty"`
}

// ExperienceFor is the experience a result earns: a tenth of the score plus
// one point per token. Rejected and abandoned rounds earn nothing.
func ExperienceFor(r Result) int64 {
	if !r.Valid {
		return 0
	}
	return r.Score/10 + int64(r.TokensCollected)
}

// LevelFor maps experience onto levels; level n+1 needs 100*n^2 experience.
func LevelFor(experience int64) int {
	level := 1
	for experience >= int64(100*level*level) {
		level++
	}
	return level
}

func (s *PlayerStats) apply(r Result) {
	s.GamesPlayed++
	if r.FinishedAt.After(s.LastPlayedAt) {
		s.LastPlayedAt = r.FinishedAt
	}
	s.TotalEarned += r.Reward
	if !r.Valid {
		return
	}
	if r.Rank == 1 {
		s.GamesWon++
	}
	s.TotalScore += r.Score
	s.HighScore = max(s.HighScore, r.Score)
	s.TokensCollected += int64(r.TokensCollected)
	s.MaxStreak = max(s.MaxStreak, r.HighestStreak)
	s.Experience += ExperienceFor(r)
	s.Achievements = mergeAchievements(s.Achievements, r.Achievements)
}

func (s *PlayerStats) placement(rank int, prize int64) {
	s.TotalEarned += prize
	if rank == 1 {
		s.TournamentWins++
		s.Achievements = mergeAchievements(s.Achievements, []string{AchievementTournamentWinner})
	}
}

// finish fills the derived fields.
func (s *PlayerStats) finish() {
	s.Level = LevelFor(s.Experience)
	s.WinRate = 0
	if s.GamesPlayed > 0 {
		s.WinRate = float64(s.GamesWon) * 100 / float64(s.GamesPlayed)
	}
	if s.Achievements == nil {
		s.Achievements = []string{}
	}
}

func mergeAchievements(have, add []string) []string {
	out := append([]string(nil), have...)
	for _, a := range add {
		found := false
		for _, h := range out {
			if h == a {
				found = true
				break
			}
		}
		if !found {
			out = append(out, a)
		}
	}
	return out
}
