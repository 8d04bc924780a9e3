package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/store"
)

// HubOptions configures NewHub. Users and Messages are required.
type HubOptions struct {
	Users    store.UserStore
	Messages store.MessageStore
	// Counter shares presence counts between processes. Nil means in-memory.
	Counter PresenceCounter
	// Bus shares published events between processes. Nil means in-process delivery.
	Bus                   Bus
	AllowMultipleSessions bool
	Logger                *zerolog.Logger
}

// Hub wires the registry, router, presence broadcaster and relay together and
// drives the lifecycle of every client.
type Hub struct {
	registry *Registry
	router   *Router
	presence *Presence
	relay    *Relay
	bus      Bus
	locks    *keyedMutex
	log      *zerolog.Logger

	ready chan struct{}
	now   func() time.Time
}

// NewHub constructs a hub from opts.
func NewHub(opts HubOptions) *Hub {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	router := NewRouter(opts.Bus, logger)
	return &Hub{
		registry: NewRegistry(opts.Counter, opts.AllowMultipleSessions),
		router:   router,
		presence: NewPresence(router, logger),
		relay:    NewRelay(opts.Users, opts.Messages, router, logger),
		bus:      opts.Bus,
		locks:    newKeyedMutex(),
		log:      logger,
		ready:    make(chan struct{}),
		now:      time.Now,
	}
}

// Ready is closed once the hub can deliver events published by other processes.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

// Run consumes the cluster bus until ctx is done. Without a bus it just waits.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus == nil {
		close(h.ready)
		<-ctx.Done()
		return nil
	}

	h.log.Info().Msg("hub subscribing to cluster bus")
	err := h.bus.Subscribe(ctx, func(channel string, ev *Event) {
		h.router.Deliver(channel, ev)
	}, func() { close(h.ready) })
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("cluster bus: %w", err)
	}
	return nil
}

// Connect registers c, subscribes it to its channels and announces the user if this is
// the first connection. On error nothing is left registered.
func (h *Hub) Connect(ctx context.Context, c *Client) error {
	unlock := h.locks.Lock(c.UserID)
	defer unlock()

	first, err := h.registry.Register(ctx, c)
	if err != nil {
		return err
	}

	c.Enqueue(&Event{
		Kind:      EventConnectionEstablished,
		UserID:    c.UserID,
		Channel:   c.Channel(),
		Timestamp: h.now().Unix(),
	})
	h.router.Subscribe(c.Channel(), c)
	h.router.Subscribe(PresenceChannel, c)
	c.markOpen()

	if online, err := h.registry.Online(ctx); err != nil {
		h.log.Warn().Err(err).Str("conn_id", c.ID).Msg("online snapshot")
	} else {
		c.Enqueue(&Event{Kind: EventOnlineUsers, OnlineUsers: online})
	}

	if first {
		if err := h.presence.Announce(ctx, c, StatusOnline); err != nil {
			h.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("announce online")
		}
	}

	h.log.Info().
		Str("conn_id", c.ID).
		Int64("user_id", c.UserID).
		Bool("first", first).
		Msg("client connected")
	return nil
}

// Disconnect tears c down. Only the first call for a client has any effect.
func (h *Hub) Disconnect(ctx context.Context, c *Client) {
	if !c.beginClose() {
		return
	}

	unlock := h.locks.Lock(c.UserID)
	defer unlock()

	h.router.UnsubscribeAll(c)

	_, last, ok, err := h.registry.Unregister(ctx, c.ID)
	if err != nil {
		h.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("unregister")
	}
	if ok && last {
		if err := h.presence.Announce(ctx, c, StatusOffline); err != nil {
			h.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("announce offline")
		}
	}

	c.finishClose()

	if ok {
		h.log.Info().
			Str("conn_id", c.ID).
			Int64("user_id", c.UserID).
			Bool("last", last).
			Msg("client disconnected")
	}
}

// Handle executes cmd on behalf of c. Replies, including error events, are queued on c.
// The returned error is for logging only.
func (h *Hub) Handle(ctx context.Context, c *Client, cmd *Command) error {
	err := h.handle(ctx, c, cmd)
	if err != nil {
		c.Enqueue(ErrorEvent(err))
	}
	return err
}

func (h *Hub) handle(ctx context.Context, c *Client, cmd *Command) error {
	switch cmd.Kind {
	case CommandSendMessage:
		if err := checkClaim("sender_id", cmd.SenderID, c.UserID); err != nil {
			return err
		}
		if cmd.ReceiverID <= 0 {
			return ProtocolError(ErrCodeBadRequest, "receiver_id is required")
		}
		msg, err := h.relay.Send(ctx, SendRequest{
			SenderID:   c.UserID,
			ReceiverID: cmd.ReceiverID,
			ContextID:  cmd.ContextID,
			Body:       cmd.Body,
			Attachment: cmd.Attachment,
		})
		if err != nil {
			return err
		}
		c.Enqueue(&Event{Kind: EventMessageSent, MessageID: msg.ID, Message: msg})
		return nil

	case CommandTyping:
		if err := checkClaim("sender_id", cmd.SenderID, c.UserID); err != nil {
			return err
		}
		if cmd.ReceiverID <= 0 {
			return ProtocolError(ErrCodeBadRequest, "receiver_id is required")
		}
		return h.relay.SetTyping(ctx, c.UserID, cmd.ReceiverID, cmd.IsTyping)

	case CommandMarkRead:
		if err := checkClaim("reader_id", cmd.ReaderID, c.UserID); err != nil {
			return err
		}
		_, err := h.relay.MarkRead(ctx, cmd.MessageIDs, c.UserID)
		return err

	case CommandPing:
		c.Enqueue(&Event{Kind: EventPong, Timestamp: h.now().Unix()})
		return nil

	case CommandListOnline:
		online, err := h.registry.Online(ctx)
		if err != nil {
			return fmt.Errorf("list online: %w", err)
		}
		c.Enqueue(&Event{Kind: EventOnlineUsers, OnlineUsers: online})
		return nil

	default:
		return ProtocolError(ErrCodeUnknownType, fmt.Sprintf("unknown command %q", cmd.Kind))
	}
}

// checkClaim rejects a client-supplied id that disagrees with the connection's user.
func checkClaim(field string, claimed, actual int64) error {
	if claimed != 0 && claimed != actual {
		return ProtocolError(ErrCodeBadRequest, field+" does not match the connected user")
	}
	return nil
}

// IsOnline reports whether userID has a live connection.
func (h *Hub) IsOnline(ctx context.Context, userID int64) (bool, error) {
	return h.registry.IsOnline(ctx, userID)
}

// LocalConnections counts the connections of userID held by this instance.
func (h *Hub) LocalConnections(userID int64) int {
	return len(h.registry.Connections(userID))
}

// OnlineUsers lists online user ids in ascending order.
func (h *Hub) OnlineUsers(ctx context.Context) ([]int64, error) {
	return h.registry.Online(ctx)
}
