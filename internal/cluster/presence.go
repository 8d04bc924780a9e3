package cluster

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// decrScript decrements a user's count and removes the field once it reaches zero.
var decrScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n <= 0 then
  redis.call('HDEL', KEYS[1], ARGV[1])
  return 0
end
return n
`)

// PresenceCounter implements core.PresenceCounter with a Redis hash of user id -> connection count.
type PresenceCounter struct {
	client redis.UniversalClient
	key    string
}

// NewPresenceCounter stores counts in the hash prefix+"presence".
func NewPresenceCounter(client redis.UniversalClient, prefix string) *PresenceCounter {
	return &PresenceCounter{client: client, key: prefix + "presence"}
}

func (p *PresenceCounter) Incr(ctx context.Context, userID int64) (int64, error) {
	n, err := p.client.HIncrBy(ctx, p.key, field(userID), 1).Result()
	if err != nil {
		return 0, fmt.Errorf("presence incr: %w", err)
	}
	return n, nil
}

func (p *PresenceCounter) Decr(ctx context.Context, userID int64) (int64, error) {
	n, err := decrScript.Run(ctx, p.client, []string{p.key}, field(userID)).Int64()
	if err != nil {
		return 0, fmt.Errorf("presence decr: %w", err)
	}
	return n, nil
}

func (p *PresenceCounter) Count(ctx context.Context, userID int64) (int64, error) {
	n, err := p.client.HGet(ctx, p.key, field(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("presence count: %w", err)
	}
	return n, nil
}

func (p *PresenceCounter) Online(ctx context.Context) ([]int64, error) {
	all, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, fmt.Errorf("presence list: %w", err)
	}

	ids := make([]int64, 0, len(all))
	for k, v := range all {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		if n, err := strconv.ParseInt(v, 10, 64); err != nil || n <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func field(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
