package rewards

import (
	"fmt"
	"strings"
)

const (
	MaxPointsPerSecond = 15
	MaxDurationSec     = 600
	SecondsPerToken    = 2 // at most one collected token per this many seconds
)

// Metrics is what a finished session reports for validation.
type Metrics struct {
	Score           int64  `json:"score"`
	TokensCollected int    `json:"tokens_collected"`
	Mode            string `json:"mode"`
	DurationSec     int    `json:"duration_sec"`
	Streak          int    `json:"streak"`
}

// Check names one plausibility rule.
type Check string

const (
	CheckScore      Check = "score_rate"
	CheckStreak     Check = "streak"
	CheckDuration   Check = "duration"
	CheckCollection Check = "collection_rate"
)

type Verdict struct {
	Valid  bool    `json:"valid"`
	Failed []Check `json:"failed,omitempty"`
}

func (v Verdict) String() string {
	if v.Valid {
		return "ok"
	}
	names := make([]string, len(v.Failed))
	for i, c := range v.Failed {
		names[i] = string(c)
	}
	return fmt.Sprintf("result rejected: %s", strings.Join(names, ", "))
}

// Inspect runs every plausibility rule and reports the ones that failed.
func Inspect(m Metrics) Verdict {
	var failed []Check
	if m.Score > int64(m.DurationSec)*MaxPointsPerSecond {
		failed = append(failed, CheckScore)
	}
	if m.Streak > m.TokensCollected {
		failed = append(failed, CheckStreak)
	}
	if m.DurationSec <= 0 || m.DurationSec > MaxDurationSec {
		failed = append(failed, CheckDuration)
	}
	if m.TokensCollected*SecondsPerToken > m.DurationSec {
		failed = append(failed, CheckCollection)
	}
	return Verdict{Valid: len(failed) == 0, Failed: failed}
}

// Validate reports whether a result is plausible enough to be paid.
func Validate(m Metrics) bool {
	return Inspect(m).Valid
}
