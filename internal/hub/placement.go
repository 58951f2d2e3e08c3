package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/color-war-backend/internal/actor"
	"github.com/DoyleJ11/color-war-backend/internal/canvas"
	"github.com/DoyleJ11/color-war-backend/internal/ledger"
	"github.com/DoyleJ11/color-war-backend/internal/state"
)

var ErrForbidden = errors.New("actor not allowed to place")

type Status int

const (
	// StatusInvalid requests are dropped without reply.
	StatusInvalid Status = iota
	StatusRateLimited
	StatusAccepted
	// StatusFailed means admission was consumed but the placement was not committed
	// or counted.
	StatusFailed
	StatusForbidden
)

func (s Status) String() string {
	switch s {
	case StatusInvalid:
		return "invalid"
	case StatusRateLimited:
		return "rate_limited"
	case StatusAccepted:
		return "accepted"
	case StatusFailed:
		return "failed"
	case StatusForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

type Outcome struct {
	Status    Status
	Remaining time.Duration // cooldown left for the requester
	Seq       int64         // placement number, set when accepted
	Err       error
}

// Placer runs validate -> admit -> commit -> count -> fan-out for one request.
type Placer struct {
	store    *state.Store
	hub      *Hub
	palette  canvas.Palette
	policy   actor.Policy
	recorder ledger.Recorder
	log      *zap.Logger
	now      func() time.Time
}

type PlacerOptions struct {
	Palette  canvas.Palette
	Policy   actor.Policy
	Recorder ledger.Recorder
	Logger   *zap.Logger
}

func NewPlacer(store *state.Store, h *Hub, opts PlacerOptions) *Placer {
	if opts.Recorder == nil {
		opts.Recorder = ledger.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Policy == "" {
		opts.Policy = actor.PolicyShared
	}
	return &Placer{
		store:    store,
		hub:      h,
		palette:  opts.Palette,
		policy:   opts.Policy,
		recorder: opts.Recorder,
		log:      opts.Logger.Named("placer"),
		now:      time.Now,
	}
}

func (p *Placer) Apply(ctx context.Context, actorID string, req canvas.Placement) Outcome {
	log := p.log.With(zap.String("actor", actorID), zap.Int("x", req.X), zap.Int("y", req.Y))

	req, err := req.Validate(p.store.Grid.Size(), p.palette)
	if err != nil {
		log.Debug("invalid placement", zap.Error(err))
		return Outcome{Status: StatusInvalid, Err: err}
	}
	if !p.policy.Allows(actorID) {
		return Outcome{Status: StatusForbidden, Err: ErrForbidden}
	}

	granted, err := p.store.Limiter.TryAcquire(ctx, actorID)
	if err != nil {
		log.Error("cooldown check failed", zap.Error(err))
		return Outcome{Status: StatusFailed, Err: err}
	}
	if !granted {
		return Outcome{Status: StatusRateLimited, Remaining: p.remaining(ctx, actorID, log)}
	}

	if err := p.store.Grid.SetCell(ctx, req.X, req.Y, req.Color); err != nil {
		log.Error("commit failed", zap.Error(err))
		return Outcome{Status: StatusFailed, Remaining: p.remaining(ctx, actorID, log), Err: err}
	}

	seq, err := p.store.Counter.Incr(ctx)
	if err != nil {
		log.Error("counter increment failed", zap.Error(err))
		return Outcome{Status: StatusFailed, Remaining: p.remaining(ctx, actorID, log), Err: err}
	}

	if err := p.recorder.Record(ctx, ledger.Entry{
		Seq:   seq,
		X:     req.X,
		Y:     req.Y,
		Color: req.Color,
		Actor: actorID,
		At:    p.now().UTC(),
	}); err != nil {
		log.Warn("ledger record failed", zap.Int64("seq", seq), zap.Error(err))
	}

	p.fanOut(ctx, seq, log)

	return Outcome{
		Status:    StatusAccepted,
		Seq:       seq,
		Remaining: p.remaining(ctx, actorID, log),
	}
}

// fanOut publishes the grid as of seq. The placement is already committed, so a failed
// read only delays convergence until the next broadcast or resync.
func (p *Placer) fanOut(ctx context.Context, seq int64, log *zap.Logger) {
	snap, err := p.store.AfterCount(ctx, seq)
	if err != nil {
		log.Warn("snapshot for broadcast failed", zap.Int64("seq", seq), zap.Error(err))
		return
	}
	if err := p.hub.Publish(ctx, Frame{Seq: seq, Count: seq, Grid: snap.Grid}); err != nil {
		log.Warn("publish failed", zap.Int64("seq", seq), zap.Error(err))
	}
}

func (p *Placer) remaining(ctx context.Context, actorID string, log *zap.Logger) time.Duration {
	d, err := p.store.Limiter.Remaining(ctx, actorID)
	if err != nil {
		log.Warn("cooldown ttl failed", zap.Error(err))
		return p.store.Limiter.Cooldown()
	}
	return d
}
