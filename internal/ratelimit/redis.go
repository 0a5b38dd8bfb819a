package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a limiter whose windows survive bot restarts. The slot is a key set
// with NX and a TTL equal to the interval, so the server clock decides.
type Redis struct {
	client   redis.Cmdable
	interval time.Duration
	prefix   string
}

// NewRedis creates a Redis-backed limiter
func NewRedis(client redis.Cmdable, interval time.Duration) *Redis {
	return &Redis{
		client:   client,
		interval: interval,
		prefix:   "uctrader:ratelimit:",
	}
}

// Admit claims the principal's slot or reports the remaining wait
func (r *Redis) Admit(ctx context.Context, principal int64, now time.Time) (Decision, error) {
	if r.interval <= 0 {
		return Decision{Allowed: true}, nil
	}

	key := r.prefix + strconv.FormatInt(principal, 10)

	// The slot can expire between SETNX and PTTL, so try twice.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := r.client.SetNX(ctx, key, now.UnixMilli(), r.interval).Result()
		if err != nil {
			return Decision{}, fmt.Errorf("failed to claim rate limit slot: %w", err)
		}
		if ok {
			return Decision{Allowed: true}, nil
		}

		ttl, err := r.client.PTTL(ctx, key).Result()
		if err != nil {
			return Decision{}, fmt.Errorf("failed to read rate limit slot: %w", err)
		}
		if ttl > 0 {
			return Decision{Wait: ttl}, nil
		}
		if ttl == -1 {
			// Key without expiry, repair it
			if err := r.client.PExpire(ctx, key, r.interval).Err(); err != nil {
				return Decision{}, fmt.Errorf("failed to repair rate limit slot: %w", err)
			}
			return Decision{Wait: r.interval}, nil
		}
	}
	return Decision{Wait: r.interval}, nil
}
