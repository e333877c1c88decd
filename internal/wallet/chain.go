package wallet

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"coinrush/internal/config"
)

type TxKind string

const (
	TxEntryFee   TxKind = "entry_fee"
	TxReward     TxKind = "reward"
	TxDailyBonus TxKind = "daily_bonus"
	TxRefund     TxKind = "refund"

	TxTournamentEntry TxKind = "tournament_entry"
	TxTournamentPrize TxKind = "tournament_prize"
)

type TxStatus string

const (
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

const (
	EntryFeeDelay   = 1500 * time.Millisecond
	RewardDelay     = 1000 * time.Millisecond
	DailyBonusDelay = 1200 * time.Millisecond
	DailyCooldown   = 24 * time.Hour

	seedBalanceBase  = 500
	seedBalanceRange = 1500
)

type Transaction struct {
	ID        string    `json:"id"`
	Signature string    `json:"signature"`
	Address   string    `json:"address"`
	Kind      TxKind    `json:"kind"`
	Amount    int64     `json:"amount"`
	Status    TxStatus  `json:"status"`
	Mode      string    `json:"mode,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorder persists transactions. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordTransaction(ctx context.Context, tx Transaction) error
	Transactions(ctx context.Context, address string, limit int) ([]Transaction, error)
}

type Rand interface {
	Float64() float64
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Options struct {
	RequiredWallet string
	Treasury       string
	FailProb       float64
	DelayScale     float64
	DailyBonus     int64

	Rand     Rand
	Sleep    Sleeper
	Now      func() time.Time
	Recorder Recorder
}

// Chain is the simulated ledger. Balances start from an address-derived
// seed and move with every confirmed transaction.
type Chain struct {
	opts     Options
	treasury solana.PublicKey

	mu       sync.Mutex
	rng      Rand
	deltas   map[solana.PublicKey]int64
	daily    map[solana.PublicKey]time.Time
	history  map[solana.PublicKey][]Transaction
	refunded map[string]bool
}

func NewChain(opts Options) (*Chain, error) {
	if opts.FailProb < 0 || opts.FailProb > 1 {
		return nil, fmt.Errorf("failure probability %.3f outside [0,1]", opts.FailProb)
	}
	if opts.DelayScale < 0 {
		return nil, fmt.Errorf("delay scale must be >= 0")
	}
	if opts.DailyBonus <= 0 {
		opts.DailyBonus = 50
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Chain{
		opts:     opts,
		rng:      opts.Rand,
		deltas:   make(map[solana.PublicKey]int64),
		daily:    make(map[solana.PublicKey]time.Time),
		history:  make(map[solana.PublicKey][]Transaction),
		refunded: make(map[string]bool),
	}
	if opts.Treasury != "" {
		pk, err := solana.PublicKeyFromBase58(opts.Treasury)
		if err != nil {
			return nil, fmt.Errorf("invalid treasury wallet: %w", err)
		}
		c.treasury = pk
	}
	return c, nil
}

func (c *Chain) Treasury() solana.PublicKey { return c.treasury }

// SeedBalance is the starting balance for an address: 500 plus the
// address hash folded into [0,1500).
func SeedBalance(addr solana.PublicKey) int64 {
	sum := blake2b.Sum256(addr[:])
	h := int64(binary.BigEndian.Uint64(sum[:8]))
	m := h % seedBalanceRange
	if m < 0 {
		m = -m
	}
	return seedBalanceBase + m
}

func (c *Chain) balanceLocked(addr solana.PublicKey) int64 {
	b := SeedBalance(addr) + c.deltas[addr]
	if b < 0 {
		return 0
	}
	return b
}

// Balance returns the current balance of a connected wallet.
func (c *Chain) Balance(ctx context.Context, w Wallet) (int64, error) {
	if err := w.verify(c.opts.RequiredWallet); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balanceLocked(w.Address), nil
}

// PayEntryFee charges the mode's entry fee. Free-play modes skip the adapter
// and balance checks; a zero fee confirms immediately. A failed transfer is
// returned alongside ErrTransactionFailed.
func (c *Chain) PayEntryFee(ctx context.Context, w Wallet, mode config.Mode) (Transaction, error) {
	required := c.opts.RequiredWallet
	if mode.FreePlay {
		required = ""
	}
	if err := w.verify(required); err != nil {
		return Transaction{}, err
	}
	return c.charge(ctx, w, TxEntryFee, mode.EntryFee, string(mode.ID), !mode.FreePlay)
}

// PayTournamentEntry charges a tournament's entry fee. The transaction is
// tagged with the tournament id.
func (c *Chain) PayTournamentEntry(ctx context.Context, w Wallet, tournamentID string, fee int64) (Transaction, error) {
	if err := w.verify(c.opts.RequiredWallet); err != nil {
		return Transaction{}, err
	}
	return c.charge(ctx, w, TxTournamentEntry, fee, tournamentID, true)
}

// charge holds fee against the balance while the transfer confirms and
// releases it again if the transfer fails or ctx ends first.
func (c *Chain) charge(ctx context.Context, w Wallet, kind TxKind, fee int64, tag string, checkBalance bool) (Transaction, error) {
	if fee < 0 {
		return Transaction{}, fmt.Errorf("%w: %d", ErrInvalidAmount, fee)
	}
	if fee == 0 {
		return c.commit(ctx, w, kind, 0, tag), nil
	}

	c.mu.Lock()
	if bal := c.balanceLocked(w.Address); checkBalance && bal < fee {
		c.mu.Unlock()
		return Transaction{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, bal, fee)
	}
	c.deltas[w.Address] -= fee
	c.mu.Unlock()

	log.Printf("wallet: %s %d for %s from %s", kind, fee, tag, w)
	err := c.opts.Sleep(ctx, c.scaled(EntryFeeDelay))
	c.mu.Lock()
	failed := err == nil && c.rng.Float64() < c.opts.FailProb
	if err != nil || failed {
		c.deltas[w.Address] += fee
	}
	c.mu.Unlock()
	if err != nil {
		return Transaction{}, err
	}

	tx := c.newTx(w, kind, fee, tag)
	if failed {
		tx.Status = TxFailed
		tx.Error = ErrTransactionFailed.Error()
		c.record(ctx, w, tx, 0)
		return tx, ErrTransactionFailed
	}
	tx.Status = TxConfirmed
	c.record(ctx, w, tx, 0)
	return tx, nil
}

// Refund returns a confirmed fee to the wallet that paid it. Each
// transaction can be refunded once.
func (c *Chain) Refund(ctx context.Context, w Wallet, paid Transaction) (Transaction, error) {
	if paid.Kind != TxEntryFee && paid.Kind != TxTournamentEntry {
		return Transaction{}, fmt.Errorf("%w: %s is not refundable", ErrInvalidAmount, paid.Kind)
	}
	if paid.Status != TxConfirmed || paid.Address != w.Address.String() {
		return Transaction{}, fmt.Errorf("%w: transaction %s", ErrInvalidAmount, paid.ID)
	}
	c.mu.Lock()
	if c.refunded[paid.ID] {
		c.mu.Unlock()
		return Transaction{}, fmt.Errorf("%w: %s", ErrAlreadyRefunded, paid.ID)
	}
	c.refunded[paid.ID] = true
	c.mu.Unlock()

	log.Printf("wallet: refund %d of %s to %s", paid.Amount, paid.ID, w)
	return c.commit(ctx, w, TxRefund, paid.Amount, paid.Mode), nil
}

// ClaimReward pays amount to the wallet.
func (c *Chain) ClaimReward(ctx context.Context, w Wallet, mode config.Mode, amount int64) (Transaction, error) {
	required := c.opts.RequiredWallet
	if mode.FreePlay {
		required = ""
	}
	if err := w.verify(required); err != nil {
		return Transaction{}, err
	}
	return c.credit(ctx, w, TxReward, amount, string(mode.ID))
}

// ClaimPrize pays a tournament placement.
func (c *Chain) ClaimPrize(ctx context.Context, w Wallet, tournamentID string, amount int64) (Transaction, error) {
	if err := w.verify(c.opts.RequiredWallet); err != nil {
		return Transaction{}, err
	}
	return c.credit(ctx, w, TxTournamentPrize, amount, tournamentID)
}

func (c *Chain) credit(ctx context.Context, w Wallet, kind TxKind, amount int64, tag string) (Transaction, error) {
	if amount < 0 {
		return Transaction{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if amount > 0 {
		log.Printf("wallet: %s %d for %s to %s", kind, amount, tag, w)
		if err := c.opts.Sleep(ctx, c.scaled(RewardDelay)); err != nil {
			return Transaction{}, err
		}
	}
	return c.commit(ctx, w, kind, amount, tag), nil
}

// ClaimDailyBonus credits the daily bonus once per DailyCooldown.
func (c *Chain) ClaimDailyBonus(ctx context.Context, w Wallet) (Transaction, error) {
	if err := w.verify(c.opts.RequiredWallet); err != nil {
		return Transaction{}, err
	}
	c.mu.Lock()
	last, ok := c.daily[w.Address]
	now := c.opts.Now()
	if ok && now.Sub(last) < DailyCooldown {
		c.mu.Unlock()
		return Transaction{}, fmt.Errorf("%w: next claim at %s", ErrDailyClaimed, last.Add(DailyCooldown).Format(time.RFC3339))
	}
	// Reserve the slot before sleeping so concurrent claims cannot double up.
	c.daily[w.Address] = now
	c.mu.Unlock()

	if err := c.opts.Sleep(ctx, c.scaled(DailyBonusDelay)); err != nil {
		c.mu.Lock()
		if ok {
			c.daily[w.Address] = last
		} else {
			delete(c.daily, w.Address)
		}
		c.mu.Unlock()
		return Transaction{}, err
	}
	return c.commit(ctx, w, TxDailyBonus, c.opts.DailyBonus, ""), nil
}

// History returns the newest transactions first.
func (c *Chain) History(ctx context.Context, w Wallet, limit int) ([]Transaction, error) {
	if err := w.verify(c.opts.RequiredWallet); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if c.opts.Recorder != nil {
		txs, err := c.opts.Recorder.Transactions(ctx, w.Address.String(), limit)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		return txs, nil
	}
	c.mu.Lock()
	src := c.history[w.Address]
	out := make([]Transaction, len(src))
	copy(out, src)
	c.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *Chain) scaled(d time.Duration) time.Duration {
	return time.Duration(float64(d) * c.opts.DelayScale)
}

// commit applies a confirmed balance change and records it. delta is the
// signed balance movement; the transaction carries its absolute amount.
func (c *Chain) commit(ctx context.Context, w Wallet, kind TxKind, delta int64, mode string) Transaction {
	amount := delta
	if amount < 0 {
		amount = -amount
	}
	tx := c.newTx(w, kind, amount, mode)
	tx.Status = TxConfirmed
	c.record(ctx, w, tx, delta)
	return tx
}

func (c *Chain) record(ctx context.Context, w Wallet, tx Transaction, delta int64) {
	c.mu.Lock()
	c.deltas[w.Address] += delta
	c.history[w.Address] = append(c.history[w.Address], tx)
	c.mu.Unlock()
	if c.opts.Recorder != nil {
		if err := c.opts.Recorder.RecordTransaction(ctx, tx); err != nil {
			log.Printf("wallet: record %s %s: %v", tx.Kind, tx.ID, err)
		}
	}
}

func (c *Chain) newTx(w Wallet, kind TxKind, amount int64, mode string) Transaction {
	id := uuid.New()
	digest := blake2b.Sum512(append(id[:], w.Address[:]...))
	var sig solana.Signature
	copy(sig[:], digest[:])
	return Transaction{
		ID:        id.String(),
		Signature: sig.String(),
		Address:   w.Address.String(),
		Kind:      kind,
		Amount:    amount,
		Mode:      mode,
		Timestamp: c.opts.Now(),
	}
}
