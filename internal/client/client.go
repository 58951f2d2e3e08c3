// Package client is a headless canvas client: it mirrors the server grid over a websocket,
// tracks the placement count and the local cooldown, and feeds a View for rendering.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/color-war-backend/internal/canvas"
	"github.com/DoyleJ11/color-war-backend/pkg/protocol"
)

const DefaultResyncGrace = time.Second

var (
	ErrCoolingDown = errors.New("cooldown active")
	ErrOutsideGrid = errors.New("point outside the grid")
)

type Options struct {
	Logger *zap.Logger
	// Callbacks run on the read goroutine.
	OnGrid     func(g canvas.Grid, seq int64)
	OnCount    func(count int64)
	OnCooldown func(seconds int)
	OnError    func(e protocol.Error)

	// ResyncGrace is how long a sequence gap may stand before a sync is requested. Every
	// grid_update is a full grid, so a newer frame inside the grace period settles it.
	ResyncGrace time.Duration
}

type Client struct {
	conn      *websocket.Conn
	log       *zap.Logger
	opts      Options
	countdown *Countdown

	mu     sync.RWMutex
	grid   canvas.Grid
	seq    int64
	count  int64
	synced bool
	resync *time.Timer
}

func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{conn: conn, log: log.Named("client"), opts: opts}
	c.countdown = NewCountdown(opts.OnCooldown)
	return c, nil
}

// Run reads server events until ctx is done or the connection closes.
func (c *Client) Run(ctx context.Context) error {
	defer c.countdown.Stop()
	defer c.stopResync()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			c.log.Debug("bad frame", zap.Error(err))
			continue
		}
		if err := c.handle(ctx, env); err != nil {
			c.log.Warn("handle event", zap.String("type", env.Type), zap.Error(err))
		}
	}
}

func (c *Client) handle(ctx context.Context, env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeGridUpdate:
		var m protocol.GridUpdate
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return err
		}
		c.applyGrid(ctx, canvas.Grid(m.Grid), m.Seq)
	case protocol.TypePlacementCount:
		var m protocol.PlacementCount
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return err
		}
		// the counter only grows; an older count can trail a newer grid on the wire
		c.mu.Lock()
		stale := m.Count < c.count
		if !stale {
			c.count = m.Count
		}
		c.mu.Unlock()
		if stale {
			return nil
		}
		if c.opts.OnCount != nil {
			c.opts.OnCount(m.Count)
		}
	case protocol.TypeCooldown:
		var m protocol.Cooldown
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return err
		}
		c.countdown.Start(m.Seconds)
	case protocol.TypeError:
		var m protocol.Error
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return err
		}
		c.log.Warn("server error", zap.String("code", m.Code), zap.String("message", m.Message))
		if c.opts.OnError != nil {
			c.opts.OnError(m)
		}
	default:
		c.log.Debug("ignoring event", zap.String("type", env.Type))
	}
	return nil
}

// applyGrid keeps the newest grid. The hub skips frames already covered by a newer one,
// so gaps are normal under load; a sync goes out only if a gap is followed by silence.
func (c *Client) applyGrid(ctx context.Context, g canvas.Grid, seq int64) {
	c.mu.Lock()
	if c.synced && seq <= c.seq {
		c.mu.Unlock()
		return
	}
	gap := c.synced && seq > c.seq+1
	c.grid = g
	c.seq = seq
	c.synced = true
	if c.resync != nil {
		c.resync.Stop()
		c.resync = nil
	}
	if gap {
		c.resync = time.AfterFunc(c.resyncGrace(), func() { c.resyncAfterGap(ctx, seq) })
	}
	c.mu.Unlock()

	if c.opts.OnGrid != nil {
		c.opts.OnGrid(g, seq)
	}
}

func (c *Client) resyncAfterGap(ctx context.Context, seq int64) {
	c.mu.Lock()
	if c.seq != seq || ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.resync = nil
	c.mu.Unlock()

	c.log.Debug("sequence gap, resyncing", zap.Int64("seq", seq))
	if err := c.Sync(ctx); err != nil {
		c.log.Warn("resync request failed", zap.Error(err))
	}
}

func (c *Client) resyncGrace() time.Duration {
	if c.opts.ResyncGrace > 0 {
		return c.opts.ResyncGrace
	}
	return DefaultResyncGrace
}

func (c *Client) stopResync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resync != nil {
		c.resync.Stop()
		c.resync = nil
	}
}

// ApplyColor requests a placement. It refuses locally while the cooldown is running.
func (c *Client) ApplyColor(ctx context.Context, x, y int, color string) error {
	if left := c.countdown.Remaining(); left > 0 {
		return fmt.Errorf("%w: %ds left", ErrCoolingDown, left)
	}
	return c.send(ctx, protocol.TypeApplyColor, protocol.ApplyColor{X: x, Y: y, Color: color})
}

// Click places color on the cell under a screen point of v.
func (c *Client) Click(ctx context.Context, v *View, px, py float64, color string) error {
	x, y, ok := v.CellAt(px, py)
	if !ok {
		return ErrOutsideGrid
	}
	return c.ApplyColor(ctx, x, y, color)
}

// Sync asks the server for a fresh grid and count.
func (c *Client) Sync(ctx context.Context) error {
	return c.send(ctx, protocol.TypeSync, nil)
}

func (c *Client) send(ctx context.Context, typ string, payload any) error {
	b, err := protocol.Encode(typ, payload)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, b)
}

// Grid returns a copy of the mirrored grid.
func (c *Client) Grid() canvas.Grid {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.grid.Clone()
}

func (c *Client) Seq() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seq
}

func (c *Client) Count() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

func (c *Client) Cooldown() int { return c.countdown.Remaining() }

func (c *Client) Close() error {
	c.countdown.Stop()
	c.stopResync()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
