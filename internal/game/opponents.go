package game

import (
	"fmt"
	"sort"
)

const (
	opponentMaxGain    = 12
	opponentBombChance = 0.04
	opponentBombCost   = 10
)

// Opponent is a simulated rival whose score follows a random walk.
type Opponent struct {
	Name  string  `json:"name"`
	Score int64   `json:"score"`
	Skill float64 `json:"skill"` // chance per second of collecting something
}

var opponentNames = []string{
	"TokenMaster", "GORCollector", "SpeedRunner", "CoinHunter", "FastClicker",
	"TokenKing", "GORGrabber", "ClickMaster", "TokenNinja", "RushBot",
}

// NewOpponents builds n rivals with skills spread over [0.35, 0.9).
func NewOpponents(n int, r Rand) []*Opponent {
	out := make([]*Opponent, 0, n)
	for i := 0; i < n; i++ {
		name := opponentNames[i%len(opponentNames)]
		if i >= len(opponentNames) {
			name = fmt.Sprintf("%s_%d", name, i/len(opponentNames)+1)
		}
		out = append(out, &Opponent{Name: name, Skill: 0.35 + r.Float64()*0.55})
	}
	return out
}

// Step advances one opponent by one second of play.
func (o *Opponent) Step(r Rand) {
	if r.Float64() < o.Skill {
		o.Score += int64(1 + r.Intn(opponentMaxGain))
	}
	if r.Float64() < opponentBombChance {
		o.Score -= opponentBombCost
		if o.Score < 0 {
			o.Score = 0
		}
	}
}

func (o *Opponent) Reset() { o.Score = 0 }

// Standing is one row of the final table.
type Standing struct {
	Rank   int    `json:"rank"`
	Name   string `json:"name"`
	Score  int64  `json:"score"`
	Player bool   `json:"player"`
}

// Standings ranks the player among opponents by score, player first on ties.
func Standings(playerName string, playerScore int64, opponents []*Opponent) []Standing {
	rows := make([]Standing, 0, len(opponents)+1)
	rows = append(rows, Standing{Name: playerName, Score: playerScore, Player: true})
	for _, o := range opponents {
		rows = append(rows, Standing{Name: o.Name, Score: o.Score})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Score > rows[j].Score })
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

// PlayerRank returns the player's rank and the participant count.
func PlayerRank(rows []Standing) (rank, total int) {
	for _, r := range rows {
		if r.Player {
			return r.Rank, len(rows)
		}
	}
	return 0, len(rows)
}
