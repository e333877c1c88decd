// Package arena owns the live game sessions: it charges entry, runs each
// session's controller, streams frames to subscribers and settles finished
// rounds against the validator, the reward schedule and the wallet.
package arena

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"coinrush/internal/config"
	"coinrush/internal/game"
	"coinrush/internal/leaderboard"
	"coinrush/internal/monitoring"
	"coinrush/internal/rewards"
	"coinrush/internal/store"
	"coinrush/internal/wallet"
)

var (
	ErrUnknownMode = errors.New("arena: unknown game mode")
	ErrArenaFull   = errors.New("arena: too many live sessions")
	ErrNotFound    = errors.New("arena: session not found")
	ErrShutdown    = errors.New("arena: shutting down")
)

const (
	minFieldWidth  = 320.0
	minFieldHeight = 240.0
	maxFieldWidth  = 3840.0
	maxFieldHeight = 2160.0

	finalizeTimeout = 15 * time.Second
	sweepEvery      = 30 * time.Second
)

type Options struct {
	Cfg     config.Config
	Chain   *wallet.Chain
	Store   store.Store
	Board   leaderboard.Board
	Metrics *monitoring.Metrics

	// Seed returns the random seed for a new session. Defaults to the clock.
	Seed func() int64
	// SecondLength shortens the game clock in tests.
	SecondLength time.Duration
	Now          func() time.Time
}

type Arena struct {
	opts Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	mu    sync.RWMutex
	rooms map[string]*Room
	// opening counts Open calls holding a slot while their entry settles.
	opening int

	tournaments *tournaments
}

func New(opts Options) (*Arena, error) {
	if opts.Chain == nil {
		return nil, errors.New("arena: chain is required")
	}
	if opts.Store == nil {
		return nil, errors.New("arena: store is required")
	}
	if opts.Board == nil {
		return nil, errors.New("arena: leaderboard is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = monitoring.NewMetrics(0)
	}
	if opts.Seed == nil {
		var n atomic.Int64
		opts.Seed = func() int64 { return time.Now().UnixNano() + n.Add(1) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Cfg.FrameHz <= 0 {
		opts.Cfg.FrameHz = 60
	}
	if opts.Cfg.PublishEvery <= 0 {
		opts.Cfg.PublishEvery = 1
	}
	if opts.Cfg.FieldWidth <= 0 || opts.Cfg.FieldHeight <= 0 {
		opts.Cfg.FieldWidth, opts.Cfg.FieldHeight = 800, 600
	}
	if len(opts.Cfg.Modes.List()) == 0 {
		opts.Cfg.Modes = config.DefaultModes()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Arena{
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		rooms:       make(map[string]*Room),
		tournaments: newTournaments(),
	}
	if opts.Cfg.TournamentsEnabled {
		now := opts.Now()
		for _, spec := range opts.Cfg.Tournaments {
			if _, err := a.CreateTournament(spec, now.Add(spec.StartIn)); err != nil {
				cancel()
				return nil, err
			}
		}
	}
	return a, nil
}

func (a *Arena) Modes() config.Modes { return a.opts.Cfg.Modes }

// OpenRequest asks for a new paid session.
type OpenRequest struct {
	Address string
	Adapter string
	Mode    config.ModeID
	Width   float64
	Height  float64
}

// ProfileFor maps a mode onto the engine's tuning.
func ProfileFor(mode config.Mode, frameHz int) game.Profile {
	p := game.Profile{
		Mode:          string(mode.ID),
		DurationSec:   mode.DurationSec,
		TimeCapSec:    mode.TimeCapSec,
		Countdown:     game.DefaultCountdown,
		FrameHz:       frameHz,
		SpawnInterval: mode.SpawnInterval,
		BurstInterval: mode.BurstInterval,
		BurstMin:      mode.BurstMin,
		BurstMax:      mode.BurstMax,
		BurstStagger:  mode.BurstStagger,
		SpeedMin:      mode.SpeedMin,
		SpeedMax:      mode.SpeedMax,
		Table:         game.DefaultTable(),
	}
	if mode.PowerTokens {
		p.Table = game.PowerTable()
	}
	return p
}

func (a *Arena) field(w, h float64) game.Field {
	if w <= 0 || h <= 0 {
		w, h = a.opts.Cfg.FieldWidth, a.opts.Cfg.FieldHeight
	}
	return game.Field{
		Width:  math.Min(math.Max(w, minFieldWidth), maxFieldWidth),
		Height: math.Min(math.Max(h, minFieldHeight), maxFieldHeight),
	}
}

// Open charges the entry fee and starts a session. On a failed payment the
// failed transaction is returned with the error.
func (a *Arena) Open(ctx context.Context, req OpenRequest) (*Room, wallet.Transaction, error) {
	if a.closed.Load() {
		return nil, wallet.Transaction{}, ErrShutdown
	}
	mode, ok := a.opts.Cfg.Modes.Get(req.Mode)
	if !ok {
		return nil, wallet.Transaction{}, fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
	}
	w, err := wallet.Connect(req.Address, req.Adapter)
	if err != nil {
		return nil, wallet.Transaction{}, err
	}
	if err := a.reserveSlot(); err != nil {
		return nil, wallet.Transaction{}, err
	}
	registered := false
	defer func() {
		if !registered {
			a.releaseSlot()
		}
	}()

	tx, err := a.payEntry(ctx, w, mode)
	if err != nil {
		return nil, tx, err
	}

	field := a.field(req.Width, req.Height)
	rng := game.NewRand(a.opts.Seed())
	sess, err := game.NewSession(ProfileFor(mode, a.opts.Cfg.FrameHz), field, rng)
	if err != nil {
		a.refund(ctx, w, tx)
		return nil, tx, fmt.Errorf("arena: new session: %w", err)
	}

	r := &Room{
		ID:        sess.ID,
		Mode:      mode,
		Wallet:    w,
		Field:     field,
		EntryTx:   tx,
		CreatedAt: a.opts.Now(),
		arena:     a,
		conns:     make(map[Conn]struct{}),
		round:     1,
		phase:     game.PhaseCountdown,
		timeLeft:  mode.DurationSec,
	}
	r.ctrl = game.NewController(sess, game.Options{
		PublishEvery: a.opts.Cfg.PublishEvery,
		SecondLength: a.opts.SecondLength,
		Opponents:    game.NewOpponents(a.opts.Cfg.Opponents, rng),
		OnFrame:      r.onFrame,
		OnFinish:     r.onFinish,
	})

	a.mu.Lock()
	a.rooms[r.ID] = r
	a.opening--
	live := len(a.rooms)
	a.mu.Unlock()
	registered = true
	a.opts.Metrics.SetLiveSessions(live)
	a.opts.Metrics.SessionStarted(string(mode.ID))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := r.ctrl.Run(a.ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("arena: session %s stopped: %v", r.ID, err)
		}
		r.mu.Lock()
		if !r.phase.Terminal() {
			r.phase = game.PhaseAbandoned
		}
		if r.finishedAt.IsZero() {
			r.finishedAt = a.opts.Now()
		}
		r.mu.Unlock()
	}()

	log.Printf("arena: session %s opened: mode=%s wallet=%s entry=%s", r.ID, mode.ID, w, tx.ID)
	return r, tx, nil
}

// reserveSlot counts an Open against MaxLiveSession before its entry fee
// is paid.
func (a *Arena) reserveSlot() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if limit := a.opts.Cfg.MaxLiveSession; limit > 0 && len(a.rooms)+a.opening >= limit {
		return ErrArenaFull
	}
	a.opening++
	return nil
}

func (a *Arena) releaseSlot() {
	a.mu.Lock()
	a.opening--
	a.mu.Unlock()
}

func (a *Arena) payEntry(ctx context.Context, w wallet.Wallet, mode config.Mode) (wallet.Transaction, error) {
	start := time.Now()
	tx, err := a.opts.Chain.PayEntryFee(ctx, w, mode)
	if tx.ID != "" {
		a.opts.Metrics.WalletTx(string(tx.Kind), string(tx.Status), time.Since(start))
	}
	return tx, err
}

// refund returns a paid entry fee. It runs even when ctx is already done.
func (a *Arena) refund(ctx context.Context, w wallet.Wallet, paid wallet.Transaction) {
	if paid.Amount == 0 {
		return
	}
	start := time.Now()
	tx, err := a.opts.Chain.Refund(context.WithoutCancel(ctx), w, paid)
	if err != nil {
		log.Printf("arena: refund %s for %s: %v", paid.ID, w, err)
		return
	}
	a.opts.Metrics.WalletTx(string(tx.Kind), string(tx.Status), time.Since(start))
}

func (a *Arena) Get(id string) (*Room, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.rooms[id]
	return r, ok
}

func (a *Arena) Live() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.rooms)
}

// finalize settles one finished round. It runs off the session goroutine.
func (a *Arena) finalize(r *Room, round int, sum game.Summary, standings []game.Standing) {
	defer a.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	res := store.Result{
		SessionID:       r.ID,
		Round:           round,
		Address:         r.Wallet.String(),
		Mode:            string(r.Mode.ID),
		Phase:           string(sum.Phase),
		Score:           sum.Score,
		TokensCollected: sum.TokensCollected,
		HighestStreak:   sum.HighestStreak,
		DurationSec:     sum.Elapsed,
		FinishedAt:      a.opts.Now(),
	}
	for _, ach := range sum.Achievements {
		res.Achievements = append(res.Achievements, string(ach))
	}
	msg := &ResultMsg{Standings: standings}

	if sum.Phase == game.PhaseEnded {
		a.settle(ctx, r, sum, &res, msg)
	}

	if err := a.opts.Store.SaveResult(ctx, res); err != nil {
		log.Printf("arena: save result %s/%d: %v", r.ID, round, err)
	}
	msg.Result = res
	r.setResult(round, msg)
	// Subscribers tell rounds apart by result.round.
	r.broadcast(MsgResult, msg)
}

func (a *Arena) settle(ctx context.Context, r *Room, sum game.Summary, res *store.Result, msg *ResultMsg) {
	rank, total := game.PlayerRank(msg.Standings)
	res.Rank, res.Total = rank, total

	verdict := rewards.Inspect(rewards.Metrics{
		Score:           sum.Score,
		TokensCollected: sum.TokensCollected,
		Mode:            string(r.Mode.ID),
		DurationSec:     sum.Elapsed,
		Streak:          sum.HighestStreak,
	})
	res.Valid = verdict.Valid
	for _, c := range verdict.Failed {
		res.Failed = append(res.Failed, string(c))
	}
	msg.Breakdown = rewards.Explain(sum.Score, r.Mode, rank, total)

	if !verdict.Valid {
		msg.Breakdown.Reward = 0
		a.opts.Metrics.ResultRejected(string(r.Mode.ID), res.Failed)
		log.Printf("arena: session %s round %d rejected: %s", r.ID, res.Round, verdict)
		return
	}

	if err := a.opts.Board.Submit(ctx, leaderboard.Submission{
		Mode:    string(r.Mode.ID),
		Address: res.Address,
		Score:   sum.Score,
		At:      res.FinishedAt,
	}); err != nil {
		log.Printf("arena: leaderboard submit %s: %v", r.ID, err)
	}
	a.recordTournamentScore(res.Address, r.Mode.ID, sum.Score, res.FinishedAt)

	amount := msg.Breakdown.Reward
	if amount <= 0 {
		return
	}
	start := time.Now()
	tx, err := a.opts.Chain.ClaimReward(ctx, r.Wallet, r.Mode, amount)
	if tx.ID != "" {
		a.opts.Metrics.WalletTx(string(tx.Kind), string(tx.Status), time.Since(start))
	}
	if err != nil {
		log.Printf("arena: reward for %s round %d: %v", r.ID, res.Round, err)
		return
	}
	res.Reward = amount
	res.RewardTx = tx.ID
	msg.RewardTx = &tx
	a.opts.Metrics.RewardPaid(string(r.Mode.ID), amount)
}

// Sweep exits rooms that sat ended for longer than the linger window,
// forgets rooms whose loop has stopped for that long and settles finished
// tournaments.
func (a *Arena) Sweep(now time.Time) {
	linger := a.opts.Cfg.SessionLinger
	if linger <= 0 {
		linger = 5 * time.Minute
	}

	a.mu.RLock()
	rooms := make([]*Room, 0, len(a.rooms))
	for _, r := range a.rooms {
		rooms = append(rooms, r)
	}
	a.mu.RUnlock()

	var gone []*Room
	for _, r := range rooms {
		r.mu.Lock()
		finished := r.finishedAt
		phase := r.phase
		restarting := r.restarting
		r.mu.Unlock()
		if restarting || finished.IsZero() || now.Sub(finished) < linger {
			continue
		}
		switch {
		case r.closed():
			gone = append(gone, r)
		case phase == game.PhaseEnded:
			ctx, cancel := context.WithTimeout(a.ctx, time.Second)
			if _, err := r.Exit(ctx); err != nil && !errors.Is(err, game.ErrClosed) {
				log.Printf("arena: expire session %s: %v", r.ID, err)
			}
			cancel()
		}
	}

	a.settleTournaments(now)

	a.mu.Lock()
	for _, r := range gone {
		delete(a.rooms, r.ID)
	}
	live := len(a.rooms)
	a.mu.Unlock()
	for _, r := range gone {
		r.closeConns()
	}
	a.opts.Metrics.SetLiveSessions(live)
}

// Run sweeps idle rooms until ctx is done.
func (a *Arena) Run(ctx context.Context) {
	t := time.NewTicker(sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.ctx.Done():
			return
		case now := <-t.C:
			a.Sweep(now)
		}
	}
}

// Shutdown abandons every live session and waits for pending settlements.
func (a *Arena) Shutdown(ctx context.Context) error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	a.cancel()
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("arena: shutdown: %w", ctx.Err())
	}

	a.mu.Lock()
	rooms := a.rooms
	a.rooms = make(map[string]*Room)
	a.mu.Unlock()
	for _, r := range rooms {
		r.closeConns()
	}
	a.opts.Metrics.SetLiveSessions(0)
	return nil
}
