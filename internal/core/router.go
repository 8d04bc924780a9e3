package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// PresenceChannel is the shared channel every connection subscribes to.
const PresenceChannel = "presence"

// UserChannel returns the personal delivery channel of a user.
func UserChannel(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

// Bus carries published events to every process sharing the same channels.
type Bus interface {
	// Publish sends ev for channel to all processes, this one included.
	Publish(ctx context.Context, channel string, ev *Event) error
	// Subscribe delivers events until ctx is done. ready is called once the subscription is live.
	Subscribe(ctx context.Context, deliver func(channel string, ev *Event), ready func()) error
}

// room groups clients subscribed to the same channel.
type room struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// Router maps channel names to subscribed clients and fans events out to them.
type Router struct {
	mu    sync.Mutex
	rooms map[string]*room
	bus   Bus
	log   *zerolog.Logger
}

// NewRouter builds a router. With a nil bus, Publish delivers in-process only.
func NewRouter(bus Bus, logger *zerolog.Logger) *Router {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Router{
		rooms: make(map[string]*room),
		bus:   bus,
		log:   logger,
	}
}

// Subscribe adds c to channel. Subscribing twice is a no-op.
func (r *Router) Subscribe(channel string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[channel]
	if !ok {
		rm = &room{clients: make(map[string]*Client)}
		r.rooms[channel] = rm
	}
	rm.mu.Lock()
	rm.clients[c.ID] = c
	rm.mu.Unlock()
	c.rooms[channel] = struct{}{}
}

// Unsubscribe removes c from channel. Empty channels are dropped.
func (r *Router) Unsubscribe(channel string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(channel, c)
}

// UnsubscribeAll removes c from every channel it joined.
func (r *Router) UnsubscribeAll(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for channel := range c.rooms {
		r.unsubscribeLocked(channel, c)
	}
}

func (r *Router) unsubscribeLocked(channel string, c *Client) {
	delete(c.rooms, channel)

	rm, ok := r.rooms[channel]
	if !ok {
		return
	}
	rm.mu.Lock()
	delete(rm.clients, c.ID)
	empty := len(rm.clients) == 0
	rm.mu.Unlock()

	if empty {
		delete(r.rooms, channel)
	}
}

// Subscribers returns the handles currently subscribed to channel.
func (r *Router) Subscribers(channel string) []string {
	r.mu.Lock()
	rm, ok := r.rooms[channel]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()
	handles := make([]string, 0, len(rm.clients))
	for id := range rm.clients {
		handles = append(handles, id)
	}
	return handles
}

// Publish sends ev to every subscriber of channel, through the bus when one is configured.
// Publishing to a channel nobody listens on is not an error.
func (r *Router) Publish(ctx context.Context, channel string, ev *Event) error {
	if r.bus != nil {
		return r.bus.Publish(ctx, channel, ev)
	}
	r.Deliver(channel, ev)
	return nil
}

// Deliver fans ev out to local subscribers of channel except ev.Origin and returns how many got it.
func (r *Router) Deliver(channel string, ev *Event) int {
	r.mu.Lock()
	rm, ok := r.rooms[channel]
	r.mu.Unlock()
	if !ok {
		return 0
	}

	rm.mu.RLock()
	targets := make([]*Client, 0, len(rm.clients))
	for id, c := range rm.clients {
		if id == ev.Origin {
			continue
		}
		targets = append(targets, c)
	}
	rm.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.Enqueue(ev) {
			delivered++
			continue
		}
		// Drop if slow consumer.
		r.log.Warn().
			Str("conn_id", c.ID).
			Int64("user_id", c.UserID).
			Str("channel", channel).
			Str("event", string(ev.Kind)).
			Msg("outbound queue full, event dropped")
	}
	return delivered
}
