package arena

import (
	"context"
	"errors"
	"testing"
	"time"

	"coinrush/internal/config"
	"coinrush/internal/wallet"
)

func TestPrizeTable(t *testing.T) {
	tests := []struct {
		rank  int
		score int64
		want  int64
	}{
		{1, 0, 200},
		{2, 499, 100},
		{3, 500, 100},
		{4, 0, 25},
		{10, 1000, 175},
		{11, 0, 5},
		{40, 1200, 155},
	}
	for _, tt := range tests {
		if got := Prize(tt.rank, tt.score); got != tt.want {
			t.Errorf("Prize(%d, %d) = %d, want %d", tt.rank, tt.score, got, tt.want)
		}
	}
}

func TestPrizePoolCapsPayouts(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := &tournament{
		spec:     config.TournamentSpec{ID: "cup", PrizePool: 250},
		entrants: map[string]*entrant{},
	}
	for i, addr := range []string{addrA, addrB, addrC} {
		w, _ := wallet.Connect(addr, "")
		tr.entrants[addr] = &entrant{wallet: w, joinedAt: base.Add(time.Duration(i) * time.Second), best: 100, paid: true}
	}
	tr.entrants[addrC].best = 300

	got := tr.rank()
	if len(got) != 3 {
		t.Fatalf("standings = %+v", got)
	}
	// Highest score first, then earlier entry.
	if got[0].Address != addrC || got[1].Address != addrA || got[2].Address != addrB {
		t.Errorf("order = %s, %s, %s", got[0].Address, got[1].Address, got[2].Address)
	}
	if got[0].Prize != 200 || got[1].Prize != 50 || got[2].Prize != 0 {
		t.Errorf("prizes = %d, %d, %d", got[0].Prize, got[1].Prize, got[2].Prize)
	}
}

func TestTournamentLifecycle(t *testing.T) {
	f := newFixture(t, 0, nil)
	ctx := context.Background()
	clk := &clock{now: time.Now()}
	f.arena.opts.Now = clk.Now
	start := clk.Now().Add(time.Minute)

	spec := config.TournamentSpec{
		ID: "cup", Name: "Cup", Mode: config.ModeBlitz,
		EntryFee: 50, PrizePool: 1000, MaxPlayers: 2, Duration: time.Hour,
	}
	created, err := f.arena.CreateTournament(spec, start)
	if err != nil {
		t.Fatalf("CreateTournament: %v", err)
	}
	if created.ID != "cup-1" || created.Status != TournamentUpcoming {
		t.Fatalf("created = %+v", created)
	}
	if _, err := f.arena.CreateTournament(spec, start); err == nil {
		t.Error("duplicate series should be rejected")
	}

	startB := balance(t, f, addrB)
	tr, tx, err := f.arena.JoinTournament(ctx, "cup-1", addrA, "")
	if err != nil {
		t.Fatalf("JoinTournament: %v", err)
	}
	if tx.Kind != wallet.TxTournamentEntry || tx.Amount != 50 || tr.Players != 1 {
		t.Errorf("join: tx=%+v players=%d", tx, tr.Players)
	}
	if _, _, err := f.arena.JoinTournament(ctx, "cup-1", addrA, ""); !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("second join: %v", err)
	}
	if _, _, err := f.arena.JoinTournament(ctx, "cup-1", addrB, ""); err != nil {
		t.Fatalf("join B: %v", err)
	}
	if _, _, err := f.arena.JoinTournament(ctx, "cup-1", addrC, ""); !errors.Is(err, ErrTournamentFull) {
		t.Errorf("join when full: %v", err)
	}
	if _, _, err := f.arena.JoinTournament(ctx, "nope", addrC, ""); !errors.Is(err, ErrTournamentNotFound) {
		t.Errorf("unknown tournament: %v", err)
	}
	if list := f.arena.Tournaments(); len(list) != 1 || list[0].Players != 2 {
		t.Fatalf("listed = %+v", list)
	}

	// A played round inside the window counts towards the entrant's best.
	clk.Set(start.Add(time.Minute))
	room, _, err := f.arena.Open(ctx, OpenRequest{Address: addrA, Mode: config.ModeBlitz})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	waitFor(t, "result", func() bool { return room.Info().Result != nil })
	played := room.Info().Result.Result
	if !played.Valid {
		t.Fatalf("result rejected: %v", played.Failed)
	}
	f.arena.recordTournamentScore(addrB, config.ModeBlitz, 1200, clk.Now())
	f.arena.recordTournamentScore(addrB, config.ModeEndurance, 5000, clk.Now())
	f.arena.recordTournamentScore(addrB, config.ModeBlitz, 9000, start.Add(-time.Second))

	clk.Set(start.Add(2 * time.Hour))
	f.arena.Sweep(clk.Now())
	if list := f.arena.Tournaments(); len(list) != 0 {
		t.Errorf("completed tournament still listed: %+v", list)
	}
	waitFor(t, "prizes", func() bool {
		done, _ := f.arena.Tournament("cup-1")
		for _, p := range done.Standings {
			if p.PrizeTx == "" {
				return false
			}
		}
		return len(done.Standings) == 2
	})

	done, _ := f.arena.Tournament("cup-1")
	if done.Status != TournamentCompleted {
		t.Errorf("status = %s", done.Status)
	}
	first, second := done.Standings[0], done.Standings[1]
	if first.Address != addrB || first.Score != 1200 || first.Prize != Prize(1, 1200) {
		t.Errorf("first = %+v", first)
	}
	if second.Address != addrA || second.Score != played.Score || second.Prize != Prize(2, played.Score) {
		t.Errorf("second = %+v, played %d", second, played.Score)
	}
	if got, want := balance(t, f, addrB), startB-50+first.Prize; got != want {
		t.Errorf("winner balance = %d, want %d", got, want)
	}

	stats, err := f.store.PlayerStats(ctx, addrB)
	if err != nil {
		t.Fatalf("PlayerStats: %v", err)
	}
	if stats.TournamentWins != 1 || stats.TotalEarned != first.Prize {
		t.Errorf("winner stats = %+v", stats)
	}

	if _, _, err := f.arena.JoinTournament(ctx, "cup-1", addrC, ""); !errors.Is(err, ErrTournamentClosed) {
		t.Errorf("join after close: %v", err)
	}
}

func TestFailedTournamentEntryFreesSeat(t *testing.T) {
	f := newFixture(t, 1, nil)
	ctx := context.Background()
	spec := config.TournamentSpec{ID: "solo", Mode: config.ModeBlitz, EntryFee: 20, MaxPlayers: 1, Duration: time.Hour}
	if _, err := f.arena.CreateTournament(spec, time.Now()); err != nil {
		t.Fatalf("CreateTournament: %v", err)
	}
	before := balance(t, f, addrA)
	if _, tx, err := f.arena.JoinTournament(ctx, "solo-1", addrA, ""); !errors.Is(err, wallet.ErrTransactionFailed) || tx.Status != wallet.TxFailed {
		t.Fatalf("join: tx=%+v err=%v", tx, err)
	}
	if after := balance(t, f, addrA); after != before {
		t.Errorf("failed entry moved balance %d -> %d", before, after)
	}
	tr, _ := f.arena.Tournament("solo-1")
	if tr.Players != 0 {
		t.Errorf("players = %d after failed entry", tr.Players)
	}
	// The seat was released, so the next attempt is not rejected as full.
	if _, _, err := f.arena.JoinTournament(ctx, "solo-1", addrB, ""); errors.Is(err, ErrTournamentFull) {
		t.Error("seat still held by failed entry")
	}
}

func TestTournamentEditionsRecur(t *testing.T) {
	f := newFixture(t, 0, func(c *config.Config) {
		c.TournamentsEnabled = true
		c.Tournaments = []config.TournamentSpec{{
			ID: "daily", Mode: config.ModeEndurance, MaxPlayers: 10,
			Duration: time.Hour, Every: 2 * time.Hour,
		}}
	})
	first, ok := f.arena.Tournament("daily-1")
	if !ok {
		t.Fatal("first edition not scheduled")
	}
	start := first.StartsAt

	f.arena.Sweep(start.Add(90 * time.Minute))
	next, ok := f.arena.Tournament("daily-2")
	if !ok || !next.StartsAt.Equal(start.Add(2*time.Hour)) {
		t.Fatalf("second edition = %+v, %v", next, ok)
	}

	// Editions whose whole window was missed are skipped.
	f.arena.Sweep(start.Add(5 * time.Hour))
	third, ok := f.arena.Tournament("daily-3")
	if !ok || !third.StartsAt.Equal(start.Add(6*time.Hour)) {
		t.Fatalf("third edition = %+v, %v", third, ok)
	}
}

func TestDefaultTournamentsScheduled(t *testing.T) {
	f := newFixture(t, 0, func(c *config.Config) {
		c.TournamentsEnabled = true
		c.Tournaments = config.DefaultTournaments()
	})
	list := f.arena.Tournaments()
	if len(list) != 2 || list[0].ID != "mega-1" || list[1].ID != "speed-1" {
		t.Fatalf("tournaments = %+v", list)
	}
	if list[0].Status != TournamentUpcoming || list[0].EntryFee != 100 || list[0].MaxPlayers != 100 {
		t.Errorf("mega = %+v", list[0])
	}
}
