// Package leaderboard ranks best scores per mode over daily, weekly and
// all-time windows.
package leaderboard

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Frame string

const (
	Daily   Frame = "daily"
	Weekly  Frame = "weekly"
	AllTime Frame = "alltime"
)

var Frames = []Frame{Daily, Weekly, AllTime}

func ParseFrame(s string) (Frame, error) {
	switch Frame(strings.ToLower(strings.TrimSpace(s))) {
	case "", AllTime, "all":
		return AllTime, nil
	case Daily:
		return Daily, nil
	case Weekly:
		return Weekly, nil
	}
	return "", fmt.Errorf("unknown leaderboard frame %q", s)
}

// Entry is one ranked player.
type Entry struct {
	Rank    int    `json:"rank"`
	Address string `json:"address"`
	Score   int64  `json:"score"`
}

// Submission is a finished game offered to the board.
type Submission struct {
	Mode    string
	Address string
	Score   int64
	At      time.Time
}

type Board interface {
	// Submit records the score in every frame, keeping each player's best.
	Submit(ctx context.Context, s Submission) error
	Top(ctx context.Context, mode string, frame Frame, limit int) ([]Entry, error)
	// Rank returns the player's 1-based rank, or 0 when unranked.
	Rank(ctx context.Context, mode string, frame Frame, address string) (int, int64, error)
}

// bucket names the window a time falls into.
func bucket(frame Frame, at time.Time) string {
	at = at.UTC()
	switch frame {
	case Daily:
		return at.Format("2006-01-02")
	case Weekly:
		y, w := at.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	default:
		return "all"
	}
}

// ttl is how long a window's key is kept after its last write.
func ttl(frame Frame) time.Duration {
	switch frame {
	case Daily:
		return 48 * time.Hour
	case Weekly:
		return 15 * 24 * time.Hour
	default:
		return 0
	}
}

func key(prefix, mode string, frame Frame, at time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", prefix, strings.ToLower(mode), frame, bucket(frame, at))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	if limit > 100 {
		return 100
	}
	return limit
}
