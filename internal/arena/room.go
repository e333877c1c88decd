package arena

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"coinrush/internal/config"
	"coinrush/internal/game"
	"coinrush/internal/wallet"
)

var ErrBusy = errors.New("arena: restart already in progress")

// Conn is a subscriber to a room's stream. Send must not block.
type Conn interface {
	Send([]byte) error
	Close() error
}

// Room is one player's live session plus everything around it: the wallet
// that paid for it, its stream subscribers and its latest settled result.
type Room struct {
	ID        string
	Mode      config.Mode
	Wallet    wallet.Wallet
	Field     game.Field
	EntryTx   wallet.Transaction
	CreatedAt time.Time

	arena *Arena
	ctrl  *game.Controller

	mu         sync.Mutex
	conns      map[Conn]struct{}
	round      int
	phase      game.Phase
	score      int64
	timeLeft   int
	finishedAt time.Time
	result     *ResultMsg
	restarting bool
}

// Info is the externally visible state of a room.
type Info struct {
	ID        string     `json:"session_id"`
	Mode      string     `json:"mode"`
	Address   string     `json:"address"`
	Round     int        `json:"round"`
	Phase     game.Phase `json:"phase"`
	Score     int64      `json:"score"`
	TimeLeft  int        `json:"time_left"`
	Result    *ResultMsg `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (r *Room) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Info{
		ID:        r.ID,
		Mode:      string(r.Mode.ID),
		Address:   r.Wallet.String(),
		Round:     r.round,
		Phase:     r.phase,
		Score:     r.score,
		TimeLeft:  r.timeLeft,
		Result:    r.result,
		CreatedAt: r.CreatedAt,
	}
}

// Snapshot asks the session loop for a fresh render view.
func (r *Room) Snapshot(ctx context.Context) (game.Snapshot, error) {
	return r.ctrl.Snapshot(ctx)
}

func (r *Room) Click(ctx context.Context, tokenID string) (game.Outcome, error) {
	out, err := r.ctrl.Click(ctx, tokenID)
	if err != nil {
		return out, err
	}
	m := r.arena.opts.Metrics
	m.Click(string(out.Kind), out.Found)
	for _, a := range out.Unlocked {
		m.AchievementUnlocked(string(a))
	}
	return out, nil
}

// Exit abandons the room. The settled result, if any, stays readable until
// the room is swept.
func (r *Room) Exit(ctx context.Context) (game.Summary, error) {
	if r.busy() {
		return game.Summary{}, ErrBusy
	}
	return r.ctrl.Exit(ctx)
}

func (r *Room) busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.restarting
}

// Restart charges the entry fee again and starts a new round. Only an ended
// round can be restarted; Exit and Sweep back off while it runs, and the fee
// is refunded if the session closes before the new round starts.
func (r *Room) Restart(ctx context.Context) (wallet.Transaction, error) {
	r.mu.Lock()
	if r.phase != game.PhaseEnded {
		r.mu.Unlock()
		return wallet.Transaction{}, game.ErrNotEnded
	}
	if r.restarting {
		r.mu.Unlock()
		return wallet.Transaction{}, ErrBusy
	}
	if r.closed() {
		r.mu.Unlock()
		return wallet.Transaction{}, game.ErrClosed
	}
	r.restarting = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.restarting = false
		r.mu.Unlock()
	}()

	tx, err := r.arena.payEntry(ctx, r.Wallet, r.Mode)
	if err != nil {
		return tx, err
	}
	if err := r.ctrl.Restart(ctx); err != nil {
		log.Printf("arena: room %s restart after paid entry %s failed: %v", r.ID, tx.ID, err)
		if errors.Is(err, game.ErrClosed) {
			r.arena.refund(ctx, r.Wallet, tx)
		}
		return tx, err
	}
	r.mu.Lock()
	r.round++
	r.phase = game.PhaseCountdown
	r.result = nil
	r.finishedAt = time.Time{}
	r.EntryTx = tx
	r.mu.Unlock()
	r.arena.opts.Metrics.SessionStarted(string(r.Mode.ID))
	r.sendWelcome(nil)
	return tx, nil
}

// Subscribe attaches a stream subscriber and returns its detach func.
func (r *Room) Subscribe(c Conn) func() {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	res := r.result
	r.mu.Unlock()

	r.sendWelcome(c)
	if res != nil {
		if b, err := Encode(MsgResult, res); err == nil {
			_ = c.Send(b)
		}
	}
	return func() {
		r.mu.Lock()
		delete(r.conns, c)
		r.mu.Unlock()
	}
}

func (r *Room) sendWelcome(c Conn) {
	r.mu.Lock()
	w := Welcome{
		SessionID: r.ID,
		Mode:      string(r.Mode.ID),
		Round:     r.round,
		FrameHz:   r.arena.opts.Cfg.FrameHz,
		Field:     r.Field,
	}
	r.mu.Unlock()
	if c == nil {
		r.broadcast(MsgWelcome, w)
		return
	}
	if b, err := Encode(MsgWelcome, w); err == nil {
		_ = c.Send(b)
	}
}

// broadcast sends one encoded message to every subscriber and drops those
// whose Send fails.
func (r *Room) broadcast(t string, payload any) {
	b, err := Encode(t, payload)
	if err != nil {
		log.Printf("arena: encode %s: %v", t, err)
		return
	}
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	var failed []Conn
	for _, c := range conns {
		if err := c.Send(b); err != nil {
			failed = append(failed, c)
		}
	}
	if len(failed) == 0 {
		return
	}
	r.mu.Lock()
	for _, c := range failed {
		delete(r.conns, c)
	}
	r.mu.Unlock()
	for _, c := range failed {
		_ = c.Close()
	}
}

func (r *Room) closeConns() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[Conn]struct{})
	r.mu.Unlock()
	for c := range conns {
		_ = c.Close()
	}
}

// onFrame runs on the session goroutine.
func (r *Room) onFrame(s game.Snapshot) {
	r.mu.Lock()
	r.phase = s.Phase
	r.score = s.Score
	r.timeLeft = s.TimeLeft
	r.mu.Unlock()
	r.broadcast(MsgSnapshot, s)
}

// onFinish runs on the session goroutine; settlement happens off it.
func (r *Room) onFinish(sum game.Summary, standings []game.Standing) {
	r.mu.Lock()
	r.phase = sum.Phase
	r.score = sum.Score
	r.timeLeft = 0
	r.finishedAt = time.Now()
	round := r.round
	r.mu.Unlock()

	r.arena.opts.Metrics.SessionFinished(string(r.Mode.ID), string(sum.Phase), sum.Score)
	r.arena.wg.Add(1)
	go r.arena.finalize(r, round, sum, standings)
}

// setResult keeps msg as the room's latest result unless a newer round has
// already started.
func (r *Room) setResult(round int, msg *ResultMsg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if round == r.round {
		r.result = msg
	}
}

func (r *Room) closed() bool {
	select {
	case <-r.ctrl.Done():
		return true
	default:
		return false
	}
}
