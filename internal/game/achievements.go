package game

type Achievement string

const (
	AchievementStreakMaster  Achievement = "streak_master"
	AchievementHighScorer    Achievement = "high_scorer"
	AchievementMultiplierMax Achievement = "multiplier_max"
)

// AchievementInfo describes an in-game achievement for display.
type AchievementInfo struct {
	ID          Achievement `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Rarity      string      `json:"rarity"`
}

var Catalog = []AchievementInfo{
	{ID: AchievementStreakMaster, Name: "Streak Master", Description: "Reach a 20 token streak", Rarity: "epic"},
	{ID: AchievementHighScorer, Name: "High Scorer", Description: "Score 500 points in a single game", Rarity: "rare"},
	{ID: AchievementMultiplierMax, Name: "Maxed Out", Description: "Push the multiplier to x5", Rarity: "rare"},
}

func (s *Session) HasAchievement(a Achievement) bool {
	for _, have := range s.Achievements {
		if have == a {
			return true
		}
	}
	return false
}

// checkAchievements unlocks thresholds reached by the current state and
// returns only the newly unlocked ones.
func (s *Session) checkAchievements() []Achievement {
	var unlocked []Achievement
	grant := func(a Achievement, reached bool) {
		if reached && !s.HasAchievement(a) {
			s.Achievements = append(s.Achievements, a)
			unlocked = append(unlocked, a)
		}
	}
	grant(AchievementStreakMaster, s.Streak >= StreakMasterAt)
	grant(AchievementHighScorer, s.Score >= HighScorerAt)
	grant(AchievementMultiplierMax, s.Multiplier >= MultiplierMaxAt)
	return unlocked
}
