package core

import (
	"context"
	"sort"
	"sync"
)

// PresenceCounter counts live connections per user. The in-memory version only sees this
// process; cluster.PresenceCounter shares the counts through Redis.
type PresenceCounter interface {
	// Incr adds one connection for userID and returns the new count.
	Incr(ctx context.Context, userID int64) (int64, error)
	// Decr removes one connection for userID and returns the new count, never below zero.
	Decr(ctx context.Context, userID int64) (int64, error)
	// Count returns the number of live connections for userID.
	Count(ctx context.Context, userID int64) (int64, error)
	// Online lists users with at least one live connection, in ascending order.
	Online(ctx context.Context) ([]int64, error)
}

// MemoryCounter is a process-local PresenceCounter.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[int64]int64
}

// NewMemoryCounter returns an empty counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[int64]int64)}
}

func (m *MemoryCounter) Incr(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[userID]++
	return m.counts[userID], nil
}

func (m *MemoryCounter) Decr(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.counts[userID] - 1
	if n <= 0 {
		delete(m.counts, userID)
		return 0, nil
	}
	m.counts[userID] = n
	return n, nil
}

func (m *MemoryCounter) Count(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[userID], nil
}

func (m *MemoryCounter) Online(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.counts))
	for id := range m.counts {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
