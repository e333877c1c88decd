package game

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed   = errors.New("game: session closed")
	ErrNotEnded = errors.New("game: session has not ended")
)

type clickCmd struct {
	id    string
	reply chan Outcome
}

type exitCmd struct{ reply chan Summary }

type restartCmd struct{ reply chan error }

type inspectCmd struct {
	fn   func(*Session, []*Opponent)
	done chan struct{}
}

// Options tune a Controller. Zero values pick the defaults.
type Options struct {
	PublishEvery int           // frames between OnFrame calls
	SecondLength time.Duration // length of one game second
	Opponents    []*Opponent

	OnFrame  func(Snapshot)
	OnFinish func(Summary, []Standing)
}

// Controller owns one Session and is the only code that mutates it once Run
// has started. Everything else talks to it through the inbox.
type Controller struct {
	sess      *Session
	opponents []*Opponent
	opts      Options

	inbox chan any
	done  chan struct{}

	ticks    int64
	pending  []int // frames until each queued burst spawn
	finished bool

	frameT, secondT, spawnT, burstT *time.Ticker
}

func NewController(s *Session, opts Options) *Controller {
	if opts.PublishEvery <= 0 {
		opts.PublishEvery = 1
	}
	if opts.SecondLength <= 0 {
		opts.SecondLength = time.Second
	}
	return &Controller{
		sess:      s,
		opponents: opts.Opponents,
		opts:      opts,
		inbox:     make(chan any, 64),
		done:      make(chan struct{}),
	}
}

func (c *Controller) SessionID() string { return c.sess.ID }

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Run drives the session until it is abandoned or ctx is cancelled. An ended
// session keeps the loop alive so it can be restarted.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	c.startTimers()
	defer c.stopTimers()

	for {
		var frameC, secondC, spawnC, burstC <-chan time.Time
		if c.frameT != nil {
			frameC, secondC, spawnC = c.frameT.C, c.secondT.C, c.spawnT.C
		}
		if c.burstT != nil {
			burstC = c.burstT.C
		}

		select {
		case <-ctx.Done():
			c.abandon()
			return ctx.Err()
		case cmd := <-c.inbox:
			if c.handle(cmd) {
				return nil
			}
		case <-frameC:
			c.Frame()
		case <-secondC:
			c.Second()
		case <-spawnC:
			c.SpawnTick()
		case <-burstC:
			c.BurstTick()
		}

		if c.sess.Phase.Terminal() && c.frameT != nil {
			c.stopTimers()
		}
	}
}

func (c *Controller) handle(cmd any) (stop bool) {
	switch m := cmd.(type) {
	case clickCmd:
		m.reply <- c.click(m.id)
	case exitCmd:
		m.reply <- c.abandon()
		return true
	case restartCmd:
		err := c.restart()
		if err == nil {
			c.startTimers()
		}
		m.reply <- err
	case inspectCmd:
		m.fn(c.sess, c.opponents)
		close(m.done)
	}
	return false
}

// Click resolves a click on the owner goroutine.
func (c *Controller) Click(ctx context.Context, tokenID string) (Outcome, error) {
	reply := make(chan Outcome, 1)
	if err := c.send(ctx, clickCmd{id: tokenID, reply: reply}); err != nil {
		return Outcome{TokenID: tokenID}, err
	}
	select {
	case out := <-reply:
		return out, nil
	case <-ctx.Done():
		return Outcome{TokenID: tokenID}, ctx.Err()
	}
}

// Exit abandons the session and stops the loop.
func (c *Controller) Exit(ctx context.Context) (Summary, error) {
	reply := make(chan Summary, 1)
	if err := c.send(ctx, exitCmd{reply: reply}); err != nil {
		return Summary{}, err
	}
	select {
	case sum := <-reply:
		return sum, nil
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}
}

// Restart resets an ended session back into the countdown.
func (c *Controller) Restart(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, restartCmd{reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inspect runs fn on the owner goroutine. fn must not retain its arguments.
func (c *Controller) Inspect(ctx context.Context, fn func(*Session, []*Opponent)) error {
	done := make(chan struct{})
	if err := c.send(ctx, inspectCmd{fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current render view.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.Inspect(ctx, func(*Session, []*Opponent) { snap = c.snapshot() })
	return snap, err
}

func (c *Controller) send(ctx context.Context, cmd any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.inbox <- cmd:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// The methods below advance the session directly. Run calls them from its
// loop; tests call them to step a session without real time.

// Frame advances physics, releases queued burst spawns and publishes a
// snapshot every PublishEvery frames.
func (c *Controller) Frame() {
	c.ticks++
	Update(c.sess)
	if c.sess.Running() && len(c.pending) > 0 {
		kept := c.pending[:0]
		for _, left := range c.pending {
			left--
			if left <= 0 {
				Spawn(c.sess)
				continue
			}
			kept = append(kept, left)
		}
		c.pending = kept
	}
	if c.opts.OnFrame != nil && c.ticks%int64(c.opts.PublishEvery) == 0 {
		c.opts.OnFrame(c.snapshot())
	}
}

// Second runs the play clock and opponents, finishing the session when the
// clock runs out.
func (c *Controller) Second() {
	wasRunning := c.sess.Running()
	ended := Second(c.sess)
	if wasRunning {
		for _, o := range c.opponents {
			o.Step(c.sess.rng)
		}
	}
	if ended {
		c.pending = nil
		c.finish()
	}
}

func (c *Controller) SpawnTick() {
	Spawn(c.sess)
}

// BurstTick spawns one token now and queues the rest of a burst, staggered
// across frames.
func (c *Controller) BurstTick() {
	p := c.sess.Profile
	if !c.sess.Running() || p.BurstMax <= 0 {
		return
	}
	n := p.BurstMin
	if p.BurstMax > p.BurstMin {
		n += c.sess.rng.Intn(p.BurstMax - p.BurstMin + 1)
	}
	if n <= 0 {
		return
	}
	stagger := int(p.BurstStagger.Seconds() * float64(p.FrameHz))
	if stagger < 1 {
		stagger = 1
	}
	Spawn(c.sess)
	for i := 1; i < n; i++ {
		c.pending = append(c.pending, i*stagger)
	}
}

func (c *Controller) click(id string) Outcome {
	return Click(c.sess, id)
}

func (c *Controller) restart() error {
	if c.sess.Phase != PhaseEnded {
		return ErrNotEnded
	}
	c.sess.Reset()
	for _, o := range c.opponents {
		o.Reset()
	}
	c.pending = nil
	c.finished = false
	return nil
}

func (c *Controller) abandon() Summary {
	c.sess.Exit()
	c.pending = nil
	c.finish()
	return c.sess.Summary()
}

// finish reports the outcome once per play-through.
func (c *Controller) finish() {
	if c.finished {
		return
	}
	c.finished = true
	if c.opts.OnFinish != nil {
		c.opts.OnFinish(c.sess.Summary(), Standings("You", c.sess.Score, c.opponents))
	}
}

func (c *Controller) snapshot() Snapshot {
	snap := c.sess.Snapshot()
	if len(c.opponents) > 0 {
		snap.Opponents = make([]Opponent, 0, len(c.opponents))
		for _, o := range c.opponents {
			snap.Opponents = append(snap.Opponents, *o)
		}
	}
	return snap
}

func (c *Controller) startTimers() {
	c.stopTimers()
	p := c.sess.Profile
	c.frameT = time.NewTicker(time.Second / time.Duration(p.FrameHz))
	c.secondT = time.NewTicker(c.opts.SecondLength)
	spawn := p.SpawnInterval
	if spawn <= 0 {
		spawn = time.Second
	}
	c.spawnT = time.NewTicker(spawn)
	if p.BurstInterval > 0 && p.BurstMax > 0 {
		c.burstT = time.NewTicker(p.BurstInterval)
	}
}

func (c *Controller) stopTimers() {
	for _, t := range []*time.Ticker{c.frameT, c.secondT, c.spawnT, c.burstT} {
		if t != nil {
			t.Stop()
		}
	}
	c.frameT, c.secondT, c.spawnT, c.burstT = nil, nil, nil, nil
}
