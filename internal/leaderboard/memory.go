package leaderboard

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is the in-process board used when Redis is not configured.
// Expired windows are never read again and are dropped on the next Submit.
type Memory struct {
	Now func() time.Time

	mu   sync.RWMutex
	sets map[string]map[string]int64
	seen map[string]window
}

type window struct {
	frame Frame
	at    time.Time
}

func NewMemory() *Memory {
	return &Memory{
		Now:  time.Now,
		sets: make(map[string]map[string]int64),
		seen: make(map[string]window),
	}
}

func (m *Memory) Submit(_ context.Context, s Submission) error {
	now := m.Now()
	if s.At.IsZero() {
		s.At = now
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range Frames {
		k := key(DefaultPrefix, s.Mode, f, s.At)
		set := m.sets[k]
		if set == nil {
			set = make(map[string]int64)
			m.sets[k] = set
		}
		if best, ok := set[s.Address]; !ok || s.Score > best {
			set[s.Address] = s.Score
		}
		m.seen[k] = window{frame: f, at: now}
	}
	m.evictLocked(now)
	return nil
}

func (m *Memory) evictLocked(now time.Time) {
	for k, w := range m.seen {
		if d := ttl(w.frame); d > 0 && now.Sub(w.at) > d {
			delete(m.sets, k)
			delete(m.seen, k)
		}
	}
}

func (m *Memory) sorted(mode string, frame Frame) []Entry {
	m.mu.RLock()
	set := m.sets[key(DefaultPrefix, mode, frame, m.Now())]
	out := make([]Entry, 0, len(set))
	for addr, score := range set {
		out = append(out, Entry{Address: addr, Score: score})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Address > out[j].Address
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func (m *Memory) Top(_ context.Context, mode string, frame Frame, limit int) ([]Entry, error) {
	out := m.sorted(mode, frame)
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Rank(_ context.Context, mode string, frame Frame, address string) (int, int64, error) {
	for _, e := range m.sorted(mode, frame) {
		if e.Address == address {
			return e.Rank, e.Score, nil
		}
	}
	return 0, 0, nil
}
