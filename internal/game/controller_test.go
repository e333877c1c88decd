package game

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestControllerManualDrive(t *testing.T) {
	s := newTestSession(t, testProfile())
	var finishes []Summary
	var table []Standing
	frames := 0
	c := NewController(s, Options{
		PublishEvery: 2,
		Opponents:    NewOpponents(3, NewRand(9)),
		OnFrame:      func(Snapshot) { frames++ },
		OnFinish: func(sum Summary, st []Standing) {
			finishes = append(finishes, sum)
			table = st
		},
	})

	c.SpawnTick()
	for i := 0; i < 4; i++ {
		c.Frame()
	}
	if frames != 2 {
		t.Errorf("published %d frames, want 2", frames)
	}
	if len(s.Tokens) != 1 || s.Tokens[0].Y <= -s.Tokens[0].Size {
		t.Fatalf("token did not fall: %+v", s.Tokens)
	}

	for i := 0; i < 60; i++ {
		c.Second()
	}
	if s.Phase != PhaseEnded {
		t.Fatalf("phase = %s", s.Phase)
	}
	c.Second()
	if len(finishes) != 1 {
		t.Fatalf("finish reported %d times", len(finishes))
	}
	if len(table) != 4 {
		t.Errorf("standings rows = %d, want 4", len(table))
	}
	moved := false
	for _, o := range c.opponents {
		if o.Score > 0 {
			moved = true
		}
	}
	if !moved {
		t.Error("opponents never scored over 60 seconds")
	}

	if err := c.restart(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	for _, o := range c.opponents {
		if o.Score != 0 {
			t.Fatal("restart should reset opponents")
		}
	}
}

func TestControllerBurst(t *testing.T) {
	p := testProfile()
	p.BurstInterval = 5 * time.Second
	p.BurstMin, p.BurstMax = 3, 3
	p.BurstStagger = 150 * time.Millisecond
	s := newTestSession(t, p)
	c := NewController(s, Options{})

	c.BurstTick()
	if len(s.Tokens) != 1 {
		t.Fatalf("tokens = %d, want 1", len(s.Tokens))
	}
	for i := 0; i < 9; i++ {
		c.Frame()
	}
	if len(s.Tokens) != 2 {
		t.Fatalf("tokens after 9 frames = %d, want 2", len(s.Tokens))
	}
	for i := 0; i < 9; i++ {
		c.Frame()
	}
	if len(s.Tokens) != 3 || len(c.pending) != 0 {
		t.Fatalf("tokens=%d pending=%d", len(s.Tokens), len(c.pending))
	}
}

func runController(t *testing.T, c *Controller) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()
	return cancel, errc
}

func TestControllerClickIsAtomic(t *testing.T) {
	p := testProfile()
	p.SpawnInterval = time.Hour
	s := newTestSession(t, p)
	c := NewController(s, Options{})
	cancel, errc := runController(t, c)
	defer cancel()

	ctx := context.Background()
	if err := c.Inspect(ctx, func(s *Session, _ []*Opponent) {
		tok := place(s, "prize", KindBonus, 25)
		tok.Speed = 0
	}); err != nil {
		t.Fatalf("inspect: %v", err)
	}

	var hits atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := c.Click(ctx, "prize")
			if err != nil {
				t.Errorf("click: %v", err)
				return
			}
			if out.Found {
				hits.Add(1)
			}
		}()
	}
	wg.Wait()
	if hits.Load() != 1 {
		t.Fatalf("token collected %d times", hits.Load())
	}

	snap, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Score != 25 {
		t.Errorf("score = %d, want 25", snap.Score)
	}

	sum, err := c.Exit(ctx)
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if sum.Phase != PhaseAbandoned || sum.Score != 25 {
		t.Errorf("summary = %+v", sum)
	}
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after exit")
	}
	if _, err := c.Click(ctx, "prize"); !errors.Is(err, ErrClosed) {
		t.Errorf("click after exit: %v, want ErrClosed", err)
	}
}

func TestControllerRestart(t *testing.T) {
	p := testProfile()
	p.Countdown = DefaultCountdown
	s := newTestSession(t, p)
	c := NewController(s, Options{})
	cancel, _ := runController(t, c)
	defer cancel()
	ctx := context.Background()

	if err := c.Restart(ctx); !errors.Is(err, ErrNotEnded) {
		t.Fatalf("restart during countdown: %v", err)
	}
	_ = c.Inspect(ctx, func(s *Session, _ []*Opponent) { s.end() })
	if err := c.Restart(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	snap, _ := c.Snapshot(ctx)
	if snap.Phase != PhaseCountdown {
		t.Errorf("phase after restart = %s", snap.Phase)
	}
}

func TestControllerCancel(t *testing.T) {
	s := newTestSession(t, testProfile())
	done := make(chan Summary, 1)
	c := NewController(s, Options{OnFinish: func(sum Summary, _ []Standing) { done <- sum }})
	cancel, errc := runController(t, c)
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run ignored cancellation")
	}
	if sum := <-done; sum.Phase != PhaseAbandoned {
		t.Errorf("phase = %s, want abandoned", sum.Phase)
	}
	<-c.Done()
}

func TestControllerRunsClock(t *testing.T) {
	p := testProfile()
	p.DurationSec = 2
	p.TimeCapSec = 2
	p.SpawnInterval = 5 * time.Millisecond
	s := newTestSession(t, p)
	done := make(chan Summary, 1)
	c := NewController(s, Options{
		SecondLength: 10 * time.Millisecond,
		OnFinish:     func(sum Summary, _ []Standing) { done <- sum },
	})
	cancel, _ := runController(t, c)
	defer cancel()

	select {
	case sum := <-done:
		if sum.Phase != PhaseEnded || sum.Elapsed != 2 {
			t.Errorf("summary = %+v", sum)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session never ended")
	}
}
