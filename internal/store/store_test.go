package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"coinrush/internal/wallet"
)

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	addr := "addr-" + uuid.NewString()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	session := uuid.NewString()

	t.Run("SaveAndLoadResult", func(t *testing.T) {
		r := Result{
			SessionID: session, Round: 1, Address: addr, Mode: "blitz", Phase: "ended",
			Score: 500, TokensCollected: 28, HighestStreak: 12, DurationSec: 60,
			Rank: 1, Total: 5, Reward: 15, Valid: true,
			Achievements: []string{"high_scorer"}, FinishedAt: base,
		}
		if err := s.SaveResult(ctx, r); err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
		got, err := s.Result(ctx, session, 1)
		if err != nil {
			t.Fatalf("Result: %v", err)
		}
		if got.Score != 500 || got.Reward != 15 || !got.Valid || len(got.Achievements) != 1 {
			t.Errorf("result = %+v", got)
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		r, _ := s.Result(ctx, session, 1)
		r.Reward = 0
		r.Valid = false
		r.Failed = []string{"score_rate"}
		if err := s.SaveResult(ctx, r); err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
		got, _ := s.Result(ctx, session, 1)
		if got.Valid || got.Reward != 0 || len(got.Failed) != 1 {
			t.Errorf("upsert not applied: %+v", got)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		if _, err := s.Result(ctx, session, 99); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("RecentResults", func(t *testing.T) {
		if err := s.SaveResult(ctx, Result{SessionID: session, Round: 2, Address: addr, Mode: "blitz", Phase: "abandoned", FinishedAt: base.Add(time.Minute)}); err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
		list, err := s.RecentResults(ctx, addr, 10)
		if err != nil {
			t.Fatalf("RecentResults: %v", err)
		}
		if len(list) != 2 || list[0].Round != 2 {
			t.Errorf("recent = %+v", list)
		}
	})

	t.Run("PlayerStats", func(t *testing.T) {
		st, err := s.PlayerStats(ctx, addr)
		if err != nil {
			t.Fatalf("PlayerStats: %v", err)
		}
		// Round 1 is counted once even though it was saved twice.
		if st.GamesPlayed != 2 || st.GamesWon != 1 || st.WinRate != 50 {
			t.Errorf("games = %d won %d rate %.1f", st.GamesPlayed, st.GamesWon, st.WinRate)
		}
		if st.HighScore != 500 || st.TokensCollected != 28 || st.MaxStreak != 12 || st.TotalEarned != 15 {
			t.Errorf("stats = %+v", st)
		}
		if st.Experience != 78 || st.Level != 1 {
			t.Errorf("experience %d level %d, want 78 and 1", st.Experience, st.Level)
		}

		if err := s.RecordPlacement(ctx, addr, 1, 200); err != nil {
			t.Fatalf("RecordPlacement: %v", err)
		}
		st, _ = s.PlayerStats(ctx, addr)
		if st.TotalEarned != 215 || st.TournamentWins != 1 {
			t.Errorf("after placement: %+v", st)
		}
		have := map[string]bool{}
		for _, a := range st.Achievements {
			have[a] = true
		}
		if !have["high_scorer"] || !have[AchievementTournamentWinner] || len(st.Achievements) != 2 {
			t.Errorf("achievements = %v", st.Achievements)
		}

		fresh, err := s.PlayerStats(ctx, "nobody-"+uuid.NewString())
		if err != nil || fresh.GamesPlayed != 0 || fresh.Level != 1 || fresh.Achievements == nil {
			t.Errorf("unknown player = %+v, %v", fresh, err)
		}
	})

	t.Run("Transactions", func(t *testing.T) {
		for i, kind := range []wallet.TxKind{wallet.TxEntryFee, wallet.TxReward} {
			tx := wallet.Transaction{
				ID: uuid.NewString(), Signature: "sig", Address: addr, Kind: kind,
				Amount: 10, Status: wallet.TxConfirmed, Mode: "blitz",
				Timestamp: base.Add(time.Duration(i) * time.Second),
			}
			if err := s.RecordTransaction(ctx, tx); err != nil {
				t.Fatalf("RecordTransaction: %v", err)
			}
		}
		txs, err := s.Transactions(ctx, addr, 10)
		if err != nil {
			t.Fatalf("Transactions: %v", err)
		}
		if len(txs) != 2 || txs[0].Kind != wallet.TxReward {
			t.Errorf("transactions = %+v", txs)
		}
		if other, _ := s.Transactions(ctx, "someone-else", 10); len(other) != 0 {
			t.Errorf("leaked transactions: %+v", other)
		}
	})
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		xp   int64
		want int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{399, 2},
		{400, 3},
		{10000, 11},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.xp); got != tt.want {
			t.Errorf("LevelFor(%d) = %d, want %d", tt.xp, got, tt.want)
		}
	}
	if ExperienceFor(Result{Score: 900, TokensCollected: 40}) != 0 {
		t.Error("rejected results should earn no experience")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping test: database not available")
	}
	ctx := context.Background()
	db, err := Connect(ctx, url)
	if err != nil {
		t.Skip("Skipping test: database not available")
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		t.Skip("Skipping test: database not available")
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	exerciseStore(t, db)
}
