package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"coinrush/internal/config"
)

const DefaultPrefix = "coinrush:lb"

func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	redisURL = config.NormalizeRedisURL(redisURL)
	if redisURL == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// Redis keeps one sorted set per mode, frame and window.
type Redis struct {
	Rdb    *redis.Client
	Prefix string
	Now    func() time.Time
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{Rdb: rdb, Prefix: DefaultPrefix, Now: time.Now}
}

func (r *Redis) Submit(ctx context.Context, s Submission) error {
	if s.At.IsZero() {
		s.At = r.Now()
	}
	pipe := r.Rdb.Pipeline()
	for _, f := range Frames {
		k := key(r.Prefix, s.Mode, f, s.At)
		pipe.ZAddGT(ctx, k, redis.Z{Score: float64(s.Score), Member: s.Address})
		if d := ttl(f); d > 0 {
			pipe.Expire(ctx, k, d)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("leaderboard submit: %w", err)
	}
	return nil
}

func (r *Redis) Top(ctx context.Context, mode string, frame Frame, limit int) ([]Entry, error) {
	limit = clampLimit(limit)
	zs, err := r.Rdb.ZRevRangeWithScores(ctx, key(r.Prefix, mode, frame, r.Now()), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	out := make([]Entry, 0, len(zs))
	for i, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, Entry{Rank: i + 1, Address: member, Score: int64(z.Score)})
	}
	return out, nil
}

func (r *Redis) Rank(ctx context.Context, mode string, frame Frame, address string) (int, int64, error) {
	k := key(r.Prefix, mode, frame, r.Now())
	pipe := r.Rdb.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, k, address)
	scoreCmd := pipe.ZScore(ctx, k, address)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, err
	}
	rank, err := rankCmd.Result()
	if errors.Is(err, redis.Nil) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	score, _ := scoreCmd.Result()
	return int(rank) + 1, int64(score), nil
}
