package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"coinrush/internal/wallet"
)

type Postgres struct {
	Pool *pgxpool.Pool
}

func Connect(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 5
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{Pool: pool}, nil
}

func (d *Postgres) Close() {
	if d.Pool != nil {
		d.Pool.Close()
	}
}

func (d *Postgres) Ping(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}

func (d *Postgres) Migrate(ctx context.Context) error {
	sql := `
CREATE TABLE IF NOT EXISTS game_results (
  session_id TEXT NOT NULL,
  round INT NOT NULL DEFAULT 1,
  address TEXT NOT NULL,
  mode TEXT NOT NULL,
  phase TEXT NOT NULL,
  score BIGINT NOT NULL DEFAULT 0,
  tokens_collected INT NOT NULL DEFAULT 0,
  highest_streak INT NOT NULL DEFAULT 0,
  duration_sec INT NOT NULL DEFAULT 0,
  rank INT NOT NULL DEFAULT 0,
  total INT NOT NULL DEFAULT 0,
  reward BIGINT NOT NULL DEFAULT 0,
  valid BOOLEAN NOT NULL DEFAULT false,
  failed_checks TEXT[] NOT NULL DEFAULT '{}',
  achievements TEXT[] NOT NULL DEFAULT '{}',
  reward_tx TEXT,
  finished_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (session_id, round)
);

CREATE INDEX IF NOT EXISTS game_results_address_idx ON game_results(address, finished_at DESC);

CREATE TABLE IF NOT EXISTS wallet_transactions (
  tx_id TEXT PRIMARY KEY,
  signature TEXT NOT NULL,
  address TEXT NOT NULL,
  kind TEXT NOT NULL,
  amount BIGINT NOT NULL,
  status TEXT NOT NULL,
  mode TEXT,
  error TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS wallet_transactions_address_idx ON wallet_transactions(address, created_at DESC);

CREATE TABLE IF NOT EXISTS player_stats (
  address TEXT PRIMARY KEY,
  games_played INT NOT NULL DEFAULT 0,
  games_won INT NOT NULL DEFAULT 0,
  total_score BIGINT NOT NULL DEFAULT 0,
  high_score BIGINT NOT NULL DEFAULT 0,
  tokens_collected BIGINT NOT NULL DEFAULT 0,
  max_streak INT NOT NULL DEFAULT 0,
  total_earned BIGINT NOT NULL DEFAULT 0,
  tournament_wins INT NOT NULL DEFAULT 0,
  experience BIGINT NOT NULL DEFAULT 0,
  achievements TEXT[] NOT NULL DEFAULT '{}',
  last_played_at TIMESTAMPTZ
);
`
	if _, err := d.Pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (d *Postgres) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := d.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SaveResult upserts the result and, when the round is new, folds it into
// the player's stats in the same transaction.
func (d *Postgres) SaveResult(ctx context.Context, r Result) error {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now().UTC()
	}
	failed := r.Failed
	if failed == nil {
		failed = []string{}
	}
	ach := r.Achievements
	if ach == nil {
		ach = []string{}
	}
	err := d.WithTx(ctx, func(tx pgx.Tx) error {
		var inserted bool
		err := tx.QueryRow(ctx, `
INSERT INTO game_results (
  session_id, round, address, mode, phase, score, tokens_collected, highest_streak,
  duration_sec, rank, total, reward, valid, failed_checks, achievements, reward_tx, finished_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NULLIF($16,''),$17)
ON CONFLICT (session_id, round) DO UPDATE SET
  phase = EXCLUDED.phase,
  score = EXCLUDED.score,
  tokens_collected = EXCLUDED.tokens_collected,
  highest_streak = EXCLUDED.highest_streak,
  duration_sec = EXCLUDED.duration_sec,
  rank = EXCLUDED.rank,
  total = EXCLUDED.total,
  reward = EXCLUDED.reward,
  valid = EXCLUDED.valid,
  failed_checks = EXCLUDED.failed_checks,
  achievements = EXCLUDED.achievements,
  reward_tx = EXCLUDED.reward_tx,
  finished_at = EXCLUDED.finished_at
RETURNING (xmax = 0)
`, r.SessionID, r.Round, r.Address, r.Mode, r.Phase, r.Score, r.TokensCollected, r.HighestStreak,
			r.DurationSec, r.Rank, r.Total, r.Reward, r.Valid, failed, ach, r.RewardTx, r.FinishedAt).Scan(&inserted)
		if err != nil || !inserted {
			return err
		}

		var delta PlayerStats
		delta.apply(r)
		if delta.Achievements == nil {
			delta.Achievements = []string{}
		}
		_, err = tx.Exec(ctx, `
INSERT INTO player_stats (
  address, games_played, games_won, total_score, high_score, tokens_collected,
  max_streak, total_earned, experience, achievements, last_played_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (address) DO UPDATE SET
  games_played = player_stats.games_played + EXCLUDED.games_played,
  games_won = player_stats.games_won + EXCLUDED.games_won,
  total_score = player_stats.total_score + EXCLUDED.total_score,
  high_score = GREATEST(player_stats.high_score, EXCLUDED.high_score),
  tokens_collected = player_stats.tokens_collected + EXCLUDED.tokens_collected,
  max_streak = GREATEST(player_stats.max_streak, EXCLUDED.max_streak),
  total_earned = player_stats.total_earned + EXCLUDED.total_earned,
  experience = player_stats.experience + EXCLUDED.experience,
  achievements = ARRAY(SELECT DISTINCT unnest(player_stats.achievements || EXCLUDED.achievements)),
  last_played_at = GREATEST(player_stats.last_played_at, EXCLUDED.last_played_at)
`, r.Address, delta.GamesPlayed, delta.GamesWon, delta.TotalScore, delta.HighScore, delta.TokensCollected,
			delta.MaxStreak, delta.TotalEarned, delta.Experience, delta.Achievements, r.FinishedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("save result %s/%d: %w", r.SessionID, r.Round, err)
	}
	return nil
}

func (d *Postgres) PlayerStats(ctx context.Context, address string) (PlayerStats, error) {
	st := PlayerStats{Address: address}
	var last *time.Time
	err := d.Pool.QueryRow(ctx, `
SELECT games_played, games_won, total_score, high_score, tokens_collected, max_streak,
  total_earned, tournament_wins, experience, achievements, last_played_at
FROM player_stats WHERE address=$1
`, address).Scan(&st.GamesPlayed, &st.GamesWon, &st.TotalScore, &st.HighScore, &st.TokensCollected,
		&st.MaxStreak, &st.TotalEarned, &st.TournamentWins, &st.Experience, &st.Achievements, &last)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return PlayerStats{}, fmt.Errorf("player stats %s: %w", address, err)
	}
	if last != nil {
		st.LastPlayedAt = *last
	}
	st.finish()
	return st, nil
}

func (d *Postgres) RecordPlacement(ctx context.Context, address string, rank int, prize int64) error {
	var delta PlayerStats
	delta.placement(rank, prize)
	if delta.Achievements == nil {
		delta.Achievements = []string{}
	}
	_, err := d.Pool.Exec(ctx, `
INSERT INTO player_stats (address, total_earned, tournament_wins, achievements)
VALUES ($1,$2,$3,$4)
ON CONFLICT (address) DO UPDATE SET
  total_earned = player_stats.total_earned + EXCLUDED.total_earned,
  tournament_wins = player_stats.tournament_wins + EXCLUDED.tournament_wins,
  achievements = ARRAY(SELECT DISTINCT unnest(player_stats.achievements || EXCLUDED.achievements))
`, address, delta.TotalEarned, delta.TournamentWins, delta.Achievements)
	if err != nil {
		return fmt.Errorf("record placement %s: %w", address, err)
	}
	return nil
}

const resultColumns = `session_id, round, address, mode, phase, score, tokens_collected, highest_streak,
  duration_sec, rank, total, reward, valid, failed_checks, achievements, COALESCE(reward_tx,''), finished_at`

func scanResult(row pgx.Row) (Result, error) {
	var r Result
	err := row.Scan(&r.SessionID, &r.Round, &r.Address, &r.Mode, &r.Phase, &r.Score, &r.TokensCollected,
		&r.HighestStreak, &r.DurationSec, &r.Rank, &r.Total, &r.Reward, &r.Valid, &r.Failed,
		&r.Achievements, &r.RewardTx, &r.FinishedAt)
	return r, err
}

func (d *Postgres) Result(ctx context.Context, sessionID string, round int) (Result, error) {
	row := d.Pool.QueryRow(ctx, `SELECT `+resultColumns+` FROM game_results WHERE session_id=$1 AND round=$2`, sessionID, round)
	r, err := scanResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Result{}, ErrNotFound
	}
	return r, err
}

func (d *Postgres) RecentResults(ctx context.Context, address string, limit int) ([]Result, error) {
	rows, err := d.Pool.Query(ctx, `
SELECT `+resultColumns+`
FROM game_results
WHERE ($1 = '' OR address = $1)
ORDER BY finished_at DESC
LIMIT $2
`, address, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *Postgres) RecordTransaction(ctx context.Context, tx wallet.Transaction) error {
	_, err := d.Pool.Exec(ctx, `
INSERT INTO wallet_transactions (tx_id, signature, address, kind, amount, status, mode, error, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),NULLIF($8,''),$9)
ON CONFLICT (tx_id) DO NOTHING
`, tx.ID, tx.Signature, tx.Address, string(tx.Kind), tx.Amount, string(tx.Status), tx.Mode, tx.Error, tx.Timestamp)
	return err
}

func (d *Postgres) Transactions(ctx context.Context, address string, limit int) ([]wallet.Transaction, error) {
	rows, err := d.Pool.Query(ctx, `
SELECT tx_id, signature, address, kind, amount, status, COALESCE(mode,''), COALESCE(error,''), created_at
FROM wallet_transactions
WHERE address=$1
ORDER BY created_at DESC
LIMIT $2
`, address, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []wallet.Transaction
	for rows.Next() {
		var tx wallet.Transaction
		var kind, status string
		if err := rows.Scan(&tx.ID, &tx.Signature, &tx.Address, &kind, &tx.Amount, &status, &tx.Mode, &tx.Error, &tx.Timestamp); err != nil {
			return nil, err
		}
		tx.Kind = wallet.TxKind(kind)
		tx.Status = wallet.TxStatus(status)
		out = append(out, tx)
	}
	return out, rows.Err()
}
