package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"coinrush/internal/config"
)

const (
	addrA = "So11111111111111111111111111111111111111112"
	addrB = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

type sleepLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

type memRecorder struct {
	mu  sync.Mutex
	txs []Transaction
}

func (m *memRecorder) RecordTransaction(_ context.Context, tx Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, tx)
	return nil
}

func (m *memRecorder) Transactions(_ context.Context, address string, limit int) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transaction
	for i := len(m.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.txs[i].Address == address {
			out = append(out, m.txs[i])
		}
	}
	return out, nil
}

func newTestChain(t *testing.T, failDraw float64) (*Chain, *sleepLog) {
	t.Helper()
	sl := &sleepLog{}
	c, err := NewChain(Options{
		RequiredWallet: "Backpack",
		FailProb:       0.05,
		DelayScale:     1,
		Rand:           fixedRand(failDraw),
		Sleep:          sl.sleep,
	})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	return c, sl
}

func backpack(t *testing.T, addr string) Wallet {
	t.Helper()
	w, err := Connect(addr, "Backpack")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return w
}

func mode(t *testing.T, id config.ModeID) config.Mode {
	t.Helper()
	m, ok := config.DefaultModes().Get(id)
	if !ok {
		t.Fatalf("mode %s missing", id)
	}
	return m
}

func TestConnect(t *testing.T) {
	if _, err := Connect("not-base58-!!", "Backpack"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("err = %v, want ErrInvalidAddress", err)
	}
	w, err := Connect("", "Backpack")
	if err != nil || w.Connected {
		t.Fatalf("empty address: wallet=%+v err=%v", w, err)
	}
	c, _ := newTestChain(t, 0.9)
	if _, err := c.Balance(context.Background(), w); !errors.Is(err, ErrWalletNotConnected) {
		t.Fatalf("err = %v, want ErrWalletNotConnected", err)
	}
	if got := backpack(t, addrA).String(); got != addrA {
		t.Errorf("String() = %q", got)
	}
}

func TestSeedBalance(t *testing.T) {
	for _, addr := range []string{addrA, addrB} {
		w := backpack(t, addr)
		b := SeedBalance(w.Address)
		if b < 500 || b >= 2000 {
			t.Errorf("%s: seed balance %d outside [500,2000)", addr, b)
		}
		if SeedBalance(w.Address) != b {
			t.Errorf("%s: seed balance not deterministic", addr)
		}
	}
}

func TestPayEntryFee(t *testing.T) {
	ctx := context.Background()
	c, sl := newTestChain(t, 0.9)
	w := backpack(t, addrA)
	before, _ := c.Balance(ctx, w)

	tx, err := c.PayEntryFee(ctx, w, mode(t, config.ModeBlitz))
	if err != nil {
		t.Fatalf("PayEntryFee: %v", err)
	}
	if tx.Status != TxConfirmed || tx.Amount != 10 || tx.Kind != TxEntryFee || tx.Mode != "blitz" {
		t.Errorf("tx = %+v", tx)
	}
	if tx.Signature == "" || tx.ID == "" {
		t.Error("transaction should carry an id and signature")
	}
	after, _ := c.Balance(ctx, w)
	if after != before-10 {
		t.Errorf("balance %d -> %d, want -10", before, after)
	}
	if len(sl.waits) != 1 || sl.waits[0] != EntryFeeDelay {
		t.Errorf("waits = %v, want [%s]", sl.waits, EntryFeeDelay)
	}
}

func TestPayEntryFeeFailure(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestChain(t, 0.01)
	w := backpack(t, addrA)
	before, _ := c.Balance(ctx, w)

	tx, err := c.PayEntryFee(ctx, w, mode(t, config.ModeEndurance))
	if !errors.Is(err, ErrTransactionFailed) {
		t.Fatalf("err = %v, want ErrTransactionFailed", err)
	}
	if tx.Status != TxFailed || tx.Amount != 25 {
		t.Errorf("tx = %+v", tx)
	}
	if after, _ := c.Balance(ctx, w); after != before {
		t.Errorf("failed transfer moved balance %d -> %d", before, after)
	}
	hist, _ := c.History(ctx, w, 10)
	if len(hist) != 1 || hist[0].Status != TxFailed {
		t.Errorf("history = %+v", hist)
	}
}

func TestPayEntryFeeChecks(t *testing.T) {
	ctx := context.Background()
	c, sl := newTestChain(t, 0.9)

	phantom, _ := Connect(addrA, "Phantom")
	if _, err := c.PayEntryFee(ctx, phantom, mode(t, config.ModeBlitz)); !errors.Is(err, ErrWrongWallet) {
		t.Fatalf("err = %v, want ErrWrongWallet", err)
	}

	rich := config.Mode{ID: "vip", EntryFee: 5000, MinReward: 1, MaxReward: 2}
	if _, err := c.PayEntryFee(ctx, backpack(t, addrA), rich); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if len(sl.waits) != 0 {
		t.Fatalf("rejected payments should not wait, got %v", sl.waits)
	}

	// Free play bypasses the adapter and balance checks.
	tx, err := c.PayEntryFee(ctx, phantom, mode(t, config.ModePractice))
	if err != nil || tx.Status != TxConfirmed || tx.Amount != 0 {
		t.Fatalf("practice: tx=%+v err=%v", tx, err)
	}
	rich.FreePlay = true
	if _, err := c.PayEntryFee(ctx, phantom, rich); err != nil {
		t.Fatalf("free play with large fee: %v", err)
	}
}

func TestClaimReward(t *testing.T) {
	ctx := context.Background()
	c, sl := newTestChain(t, 0.01)
	w := backpack(t, addrB)
	before, _ := c.Balance(ctx, w)

	tx, err := c.ClaimReward(ctx, w, mode(t, config.ModeBlitz), 15)
	if err != nil {
		t.Fatalf("ClaimReward: %v", err)
	}
	if tx.Status != TxConfirmed || tx.Amount != 15 || tx.Kind != TxReward {
		t.Errorf("tx = %+v", tx)
	}
	if after, _ := c.Balance(ctx, w); after != before+15 {
		t.Errorf("balance %d -> %d, want +15", before, after)
	}
	if len(sl.waits) != 1 || sl.waits[0] != RewardDelay {
		t.Errorf("waits = %v", sl.waits)
	}
	if _, err := c.ClaimReward(ctx, w, mode(t, config.ModeBlitz), -1); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestClaimDailyBonus(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &memRecorder{}
	sl := &sleepLog{}
	c, err := NewChain(Options{
		RequiredWallet: "Backpack",
		DelayScale:     1,
		Sleep:          sl.sleep,
		Now:            func() time.Time { return now },
		Recorder:       rec,
	})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	w := backpack(t, addrA)

	tx, err := c.ClaimDailyBonus(ctx, w)
	if err != nil || tx.Amount != 50 || tx.Kind != TxDailyBonus {
		t.Fatalf("first claim: tx=%+v err=%v", tx, err)
	}
	if _, err := c.ClaimDailyBonus(ctx, w); !errors.Is(err, ErrDailyClaimed) {
		t.Fatalf("err = %v, want ErrDailyClaimed", err)
	}
	now = now.Add(DailyCooldown)
	if _, err := c.ClaimDailyBonus(ctx, w); err != nil {
		t.Fatalf("claim after cooldown: %v", err)
	}

	hist, err := c.History(ctx, w, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 || !hist[0].Timestamp.After(hist[1].Timestamp) {
		t.Fatalf("history = %+v", hist)
	}
	if len(sl.waits) != 2 || sl.waits[0] != DailyBonusDelay {
		t.Errorf("waits = %v", sl.waits)
	}
}

func TestCancelledPaymentReleasesNothing(t *testing.T) {
	c, err := NewChain(Options{DelayScale: 1, Rand: fixedRand(0.9)})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	w, _ := Connect(addrA, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	before, _ := c.Balance(context.Background(), w)
	if _, err := c.PayEntryFee(ctx, w, mode(t, config.ModeBlitz)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if after, _ := c.Balance(context.Background(), w); after != before {
		t.Fatalf("cancelled payment moved balance %d -> %d", before, after)
	}
	if _, err := c.ClaimDailyBonus(ctx, w); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	// The reserved daily slot is released on cancellation.
	if _, err := c.ClaimDailyBonus(context.Background(), w); err != nil {
		t.Fatalf("claim after cancelled claim: %v", err)
	}
}

func TestNewChainValidation(t *testing.T) {
	bad := []Options{
		{FailProb: 1.5},
		{DelayScale: -1},
		{Treasury: "nope"},
	}
	for _, o := range bad {
		if _, err := NewChain(o); err == nil {
			t.Errorf("NewChain(%+v) should fail", o)
		}
	}
}

func TestConcurrentEntriesCannotOverdraw(t *testing.T) {
	ctx := context.Background()
	c, err := NewChain(Options{
		RequiredWallet: "Backpack",
		DelayScale:     1,
		Rand:           fixedRand(0.9),
		Sleep: func(ctx context.Context, _ time.Duration) error {
			time.Sleep(5 * time.Millisecond)
			return ctx.Err()
		},
	})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	w := backpack(t, addrA)
	start, _ := c.Balance(ctx, w)
	fee := start / 10
	vip := config.Mode{ID: "vip", EntryFee: fee, MinReward: 1, MaxReward: 2}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		paid     int
		rejected int
		others   []error
	)
	for i := 0; i < 11; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.PayEntryFee(ctx, w, vip)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				paid++
			case errors.Is(err, ErrInsufficientBalance):
				rejected++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	if len(others) > 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if paid != 10 || rejected != 1 {
		t.Fatalf("paid=%d rejected=%d, want 10 and 1", paid, rejected)
	}
	if bal, _ := c.Balance(ctx, w); bal != start-10*fee {
		t.Errorf("balance = %d, want %d", bal, start-10*fee)
	}
}

func TestFailedEntryReleasesHold(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestChain(t, 0.01)
	w := backpack(t, addrA)
	start, _ := c.Balance(ctx, w)

	// A fee equal to the whole balance must be payable again once the
	// failed attempt has released its hold.
	all := config.Mode{ID: "all_in", EntryFee: start, MinReward: 1, MaxReward: 2}
	if _, err := c.PayEntryFee(ctx, w, all); !errors.Is(err, ErrTransactionFailed) {
		t.Fatalf("err = %v, want ErrTransactionFailed", err)
	}
	if bal, _ := c.Balance(ctx, w); bal != start {
		t.Fatalf("balance = %d after failed transfer, want %d", bal, start)
	}
}

func TestRefund(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestChain(t, 0.9)
	w := backpack(t, addrB)
	start, _ := c.Balance(ctx, w)

	paid, err := c.PayEntryFee(ctx, w, mode(t, config.ModeEndurance))
	if err != nil {
		t.Fatalf("PayEntryFee: %v", err)
	}
	back, err := c.Refund(ctx, w, paid)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if back.Kind != TxRefund || back.Amount != paid.Amount || back.Mode != "endurance" {
		t.Errorf("refund tx = %+v", back)
	}
	if bal, _ := c.Balance(ctx, w); bal != start {
		t.Errorf("balance = %d, want %d", bal, start)
	}
	if _, err := c.Refund(ctx, w, paid); !errors.Is(err, ErrAlreadyRefunded) {
		t.Errorf("second refund: %v", err)
	}
	if _, err := c.Refund(ctx, w, back); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("refunding a refund: %v", err)
	}
	other := backpack(t, addrA)
	if _, err := c.Refund(ctx, other, paid); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("refund to another wallet: %v", err)
	}
}

func TestTournamentEntryAndPrize(t *testing.T) {
	ctx := context.Background()
	c, sl := newTestChain(t, 0.9)
	w := backpack(t, addrA)
	start, _ := c.Balance(ctx, w)

	tx, err := c.PayTournamentEntry(ctx, w, "speed_challenge", 50)
	if err != nil {
		t.Fatalf("PayTournamentEntry: %v", err)
	}
	if tx.Kind != TxTournamentEntry || tx.Mode != "speed_challenge" || tx.Amount != 50 {
		t.Errorf("entry tx = %+v", tx)
	}
	prize, err := c.ClaimPrize(ctx, w, "speed_challenge", 200)
	if err != nil || prize.Kind != TxTournamentPrize {
		t.Fatalf("prize tx=%+v err=%v", prize, err)
	}
	if bal, _ := c.Balance(ctx, w); bal != start+150 {
		t.Errorf("balance = %d, want %d", bal, start+150)
	}
	if len(sl.waits) != 2 || sl.waits[0] != EntryFeeDelay || sl.waits[1] != RewardDelay {
		t.Errorf("waits = %v", sl.waits)
	}

	phantom, _ := Connect(addrA, "Phantom")
	if _, err := c.PayTournamentEntry(ctx, phantom, "speed_challenge", 50); !errors.Is(err, ErrWrongWallet) {
		t.Errorf("err = %v, want ErrWrongWallet", err)
	}
}
