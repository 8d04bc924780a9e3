package core

import (
	"context"
	"fmt"
	"sync"
)

// Registry tracks which users have an open connection through this process.
// Callers serialize Register/Unregister per user; Hub does so with a keyed lock.
type Registry struct {
	mu       sync.RWMutex
	byHandle map[string]*Client
	byUser   map[int64]map[string]*Client

	counter       PresenceCounter
	allowMultiple bool
}

// NewRegistry builds a registry. A nil counter falls back to an in-memory one.
func NewRegistry(counter PresenceCounter, allowMultiple bool) *Registry {
	if counter == nil {
		counter = NewMemoryCounter()
	}
	return &Registry{
		byHandle:      make(map[string]*Client),
		byUser:        make(map[int64]map[string]*Client),
		counter:       counter,
		allowMultiple: allowMultiple,
	}
}

// Register records a connection. first reports whether it is the user's first live connection.
func (r *Registry) Register(ctx context.Context, c *Client) (first bool, err error) {
	r.mu.RLock()
	_, known := r.byHandle[c.ID]
	local := len(r.byUser[c.UserID])
	r.mu.RUnlock()

	if known {
		return false, nil
	}

	if !r.allowMultiple {
		if local > 0 {
			return false, ErrDuplicateConnection
		}
		n, err := r.counter.Count(ctx, c.UserID)
		if err != nil {
			return false, fmt.Errorf("count connections: %w", err)
		}
		if n > 0 {
			return false, ErrDuplicateConnection
		}
	}

	n, err := r.counter.Incr(ctx, c.UserID)
	if err != nil {
		return false, fmt.Errorf("incr presence: %w", err)
	}

	r.mu.Lock()
	r.byHandle[c.ID] = c
	conns, ok := r.byUser[c.UserID]
	if !ok {
		conns = make(map[string]*Client)
		r.byUser[c.UserID] = conns
	}
	conns[c.ID] = c
	r.mu.Unlock()

	return n == 1, nil
}

// Unregister forgets a connection handle. Unknown handles are a no-op (ok is false).
// last reports whether the user has no live connection left.
func (r *Registry) Unregister(ctx context.Context, handle string) (userID int64, last bool, ok bool, err error) {
	r.mu.Lock()
	c, known := r.byHandle[handle]
	if !known {
		r.mu.Unlock()
		return 0, false, false, nil
	}
	delete(r.byHandle, handle)
	if conns := r.byUser[c.UserID]; conns != nil {
		delete(conns, handle)
		if len(conns) == 0 {
			delete(r.byUser, c.UserID)
		}
	}
	r.mu.Unlock()

	n, err := r.counter.Decr(ctx, c.UserID)
	if err != nil {
		return c.UserID, false, true, fmt.Errorf("decr presence: %w", err)
	}
	return c.UserID, n <= 0, true, nil
}

// IsOnline reports whether userID has at least one live connection.
func (r *Registry) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := r.counter.Count(ctx, userID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Online lists the ids of users currently online.
func (r *Registry) Online(ctx context.Context) ([]int64, error) {
	return r.counter.Online(ctx)
}

// Connections returns the local connections of a user.
func (r *Registry) Connections(userID int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Client, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	return conns
}
