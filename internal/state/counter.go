package state

import (
	"context"
	"errors"
	"strconv"

	"github.com/DoyleJ11/color-war-backend/internal/kv"
)

// Counter is the global count of accepted placements.
type Counter struct {
	kv   kv.Store
	keys keys
}

func (c *Counter) Incr(ctx context.Context) (int64, error) {
	n, err := c.kv.Incr(ctx, c.keys.counter())
	if err != nil {
		return 0, unavailable("counter incr", err)
	}
	return n, nil
}

func (c *Counter) Value(ctx context.Context) (int64, error) {
	v, err := c.kv.Get(ctx, c.keys.counter())
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return 0, nil
		}
		return 0, unavailable("counter get", err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, unavailable("counter parse", err)
	}
	return n, nil
}
