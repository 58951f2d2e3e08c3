package state

import (
	"context"
	"time"

	"github.com/DoyleJ11/color-war-backend/internal/kv"
)

// RateLimiter allows one accepted placement per actor per cooldown window.
type RateLimiter struct {
	kv       kv.Store
	keys     keys
	cooldown time.Duration
}

func (r *RateLimiter) Cooldown() time.Duration { return r.cooldown }

// TryAcquire atomically creates the actor's cooldown record if none exists.
func (r *RateLimiter) TryAcquire(ctx context.Context, actor string) (bool, error) {
	ok, err := r.kv.SetNX(ctx, r.keys.cooldown(actor), "1", r.cooldown)
	if err != nil {
		return false, unavailable("cooldown acquire", err)
	}
	return ok, nil
}

func (r *RateLimiter) Remaining(ctx context.Context, actor string) (time.Duration, error) {
	d, err := r.kv.TTL(ctx, r.keys.cooldown(actor))
	if err != nil {
		return 0, unavailable("cooldown ttl", err)
	}
	if d > r.cooldown {
		d = r.cooldown
	}
	return d, nil
}

// Seconds rounds a remaining cooldown up to whole seconds, so an active cooldown is
// never reported as zero.
func Seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
