package core

import (
	"context"

	"github.com/rs/zerolog"
)

// Presence announces online/offline transitions on the shared presence channel.
type Presence struct {
	router *Router
	log    *zerolog.Logger
}

// NewPresence builds a broadcaster on top of router.
func NewPresence(router *Router, logger *zerolog.Logger) *Presence {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Presence{router: router, log: logger}
}

// Announce publishes a user_status event for origin's user to everyone but origin itself.
func (p *Presence) Announce(ctx context.Context, origin *Client, status string) error {
	ev := &Event{
		Kind:   EventUserStatus,
		Origin: origin.ID,
		UserID: origin.UserID,
		Status: status,
	}
	if err := p.router.Publish(ctx, PresenceChannel, ev); err != nil {
		return err
	}
	p.log.Debug().Int64("user_id", origin.UserID).Str("status", status).Msg("presence announced")
	return nil
}
