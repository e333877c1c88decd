package store

import (
	"context"
	"sort"
	"sync"

	"coinrush/internal/wallet"
)

type resultKey struct {
	session string
	round   int
}

// Memory is the fallback store used when no database is configured.
type Memory struct {
	mu      sync.RWMutex
	results map[resultKey]Result
	stats   map[string]*PlayerStats
	txs     []wallet.Transaction
}

func NewMemory() *Memory {
	return &Memory{
		results: make(map[resultKey]Result),
		stats:   make(map[string]*PlayerStats),
	}
}

func (m *Memory) statsLocked(address string) *PlayerStats {
	st, ok := m.stats[address]
	if !ok {
		st = &PlayerStats{Address: address}
		m.stats[address] = st
	}
	return st
}

func (m *Memory) SaveResult(_ context.Context, r Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Failed = append([]string(nil), r.Failed...)
	r.Achievements = append([]string(nil), r.Achievements...)
	key := resultKey{r.SessionID, r.Round}
	if _, seen := m.results[key]; !seen {
		m.statsLocked(r.Address).apply(r)
	}
	m.results[key] = r
	return nil
}

func (m *Memory) PlayerStats(_ context.Context, address string) (PlayerStats, error) {
	m.mu.RLock()
	out := PlayerStats{Address: address}
	if st, ok := m.stats[address]; ok {
		out = *st
		out.Achievements = append([]string(nil), st.Achievements...)
	}
	m.mu.RUnlock()
	out.finish()
	return out, nil
}

func (m *Memory) RecordPlacement(_ context.Context, address string, rank int, prize int64) error {
	m.mu.Lock()
	m.statsLocked(address).placement(rank, prize)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Result(_ context.Context, sessionID string, round int) (Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[resultKey{sessionID, round}]
	if !ok {
		return Result{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) RecentResults(_ context.Context, address string, limit int) ([]Result, error) {
	limit = clampLimit(limit)
	m.mu.RLock()
	var out []Result
	for _, r := range m.results {
		if address == "" || r.Address == address {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FinishedAt.After(out[j].FinishedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) RecordTransaction(_ context.Context, tx wallet.Transaction) error {
	m.mu.Lock()
	m.txs = append(m.txs, tx)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Transactions(_ context.Context, address string, limit int) ([]wallet.Transaction, error) {
	limit = clampLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]wallet.Transaction, 0, limit)
	for i := len(m.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.txs[i].Address == address {
			out = append(out, m.txs[i])
		}
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}
