package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/utils"
)

// ConnState is the lifecycle stage of a client connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

// Client is one live transport session as seen by the core layer.
type Client struct {
	ID          string
	UserID      int64
	ConnectedAt time.Time
	Events      chan *Event

	state atomic.Int32

	mu     sync.Mutex
	closed bool

	// rooms is owned by the Router and only touched under its lock.
	rooms map[string]struct{}
}

// NewClient constructs a client with an ordered outbound queue of the given size.
func NewClient(userID int64, buffer int) *Client {
	if buffer <= 0 {
		buffer = 8
	}
	return &Client{
		ID:          utils.NewID(),
		UserID:      userID,
		ConnectedAt: time.Now(),
		Events:      make(chan *Event, buffer),
		rooms:       make(map[string]struct{}),
	}
}

// Channel is the personal delivery channel of the client's user.
func (c *Client) Channel() string {
	return UserChannel(c.UserID)
}

// State reports the current lifecycle stage.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// Enqueue appends an event to the outbound queue without blocking.
// It returns false when the queue is full or already closed.
func (c *Client) Enqueue(ev *Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

func (c *Client) markOpen() bool {
	return c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// beginClose moves the client into Closing. Only the first caller gets true.
func (c *Client) beginClose() bool {
	for {
		cur := ConnState(c.state.Load())
		if cur == StateClosing || cur == StateClosed {
			return false
		}
		if c.state.CompareAndSwap(int32(cur), int32(StateClosing)) {
			return true
		}
	}
}

// finishClose closes the outbound queue and discards anything still buffered.
func (c *Client) finishClose() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.Events)
	}
	c.mu.Unlock()

	for range c.Events {
	}
	c.state.Store(int32(StateClosed))
}
