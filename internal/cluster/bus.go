// Package cluster shares presence counts and published events between relay
// instances through Redis.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/core"
)

// envelope is the Pub/Sub payload. One Redis channel carries every router channel
// so that a single subscription preserves publish order.
type envelope struct {
	Channel string      `json:"channel"`
	Event   *core.Event `json:"event"`
}

// Bus implements core.Bus on Redis Pub/Sub.
type Bus struct {
	client redis.UniversalClient
	topic  string
	log    *zerolog.Logger
}

// NewBus returns a bus publishing on prefix+"events".
func NewBus(client redis.UniversalClient, prefix string, logger *zerolog.Logger) *Bus {
	return &Bus{client: client, topic: prefix + "events", log: logger}
}

// Publish sends ev for channel to every subscribed instance.
func (b *Bus) Publish(ctx context.Context, channel string, ev *core.Event) error {
	payload, err := json.Marshal(envelope{Channel: channel, Event: ev})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe feeds every received event to deliver until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, deliver func(channel string, ev *core.Event), ready func()) error {
	sub := b.client.Subscribe(ctx, b.topic)
	defer sub.Close()

	// Wait for the subscription confirmation so nothing published afterwards is missed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	if ready != nil {
		ready()
	}
	b.log.Info().Str("topic", b.topic).Msg("subscribed to cluster bus")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn().Err(err).Msg("discard malformed bus payload")
				continue
			}
			if env.Event == nil {
				continue
			}
			deliver(env.Channel, env.Event)
		}
	}
}
