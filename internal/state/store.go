// Package state holds the authoritative canvas state: grid, cooldowns and the placement
// counter, all addressed through a kv.Store.
package state

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/DoyleJ11/color-war-backend/internal/canvas"
	"github.com/DoyleJ11/color-war-backend/internal/kv"
)

const DefaultReadTimeout = 5 * time.Second

type Options struct {
	GridSize  int
	Cooldown  time.Duration
	KeyPrefix string

	// ReadTimeout bounds a shared snapshot read. Defaults to DefaultReadTimeout.
	ReadTimeout time.Duration
}

// Store is built once at startup and shared by every request handler.
type Store struct {
	Grid    *GridStore
	Limiter *RateLimiter
	Counter *Counter

	kv          kv.Store
	group       singleflight.Group
	readTimeout time.Duration
}

// Snapshot pairs a grid with the counter value it is known to include.
type Snapshot struct {
	Count int64
	Grid  canvas.Grid
}

func New(backend kv.Store, opts Options) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("state: nil kv store")
	}
	if opts.GridSize <= 0 {
		return nil, fmt.Errorf("state: grid size must be positive, got %d", opts.GridSize)
	}
	if opts.Cooldown <= 0 {
		return nil, fmt.Errorf("state: cooldown must be positive, got %s", opts.Cooldown)
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	k := keys{prefix: opts.KeyPrefix}
	return &Store{
		Grid:        &GridStore{kv: backend, keys: k, size: opts.GridSize},
		Limiter:     &RateLimiter{kv: backend, keys: k, cooldown: opts.Cooldown},
		Counter:     &Counter{kv: backend, keys: k},
		kv:          backend,
		readTimeout: opts.ReadTimeout,
	}, nil
}

// Current reads the counter and then the grid. Commits happen before their increment,
// so the grid contains at least every placement counted in Count. Concurrent callers
// share one read, which runs detached from any single caller's cancellation and is
// bounded by the read timeout instead. Each caller still stops waiting when its own ctx ends.
func (s *Store) Current(ctx context.Context) (Snapshot, error) {
	ch := s.group.DoChan("current", func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.readTimeout)
		defer cancel()
		return s.read(readCtx)
	})
	select {
	case <-ctx.Done():
		return Snapshot{}, unavailable("snapshot", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		snap := res.Val.(Snapshot)
		snap.Grid = snap.Grid.Clone()
		return snap, nil
	}
}

// AfterCount reads the grid for a counter value the caller already holds.
func (s *Store) AfterCount(ctx context.Context, count int64) (Snapshot, error) {
	grid, err := s.Grid.Snapshot(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Count: count, Grid: grid}, nil
}

func (s *Store) read(ctx context.Context) (Snapshot, error) {
	count, err := s.Counter.Value(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return s.AfterCount(ctx, count)
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.kv.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}
