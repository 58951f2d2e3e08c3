package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/color-war-backend/internal/actor"
	"github.com/DoyleJ11/color-war-backend/internal/canvas"
	"github.com/DoyleJ11/color-war-backend/internal/hub"
	"github.com/DoyleJ11/color-war-backend/internal/state"
	"github.com/DoyleJ11/color-war-backend/pkg/protocol"
)

const (
	writeTimeout   = 3 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	outboxSize     = 16
)

type Options struct {
	SnapshotTimeout time.Duration
	MsgRate         rate.Limit
	MsgBurst        int
	OriginPatterns  []string
}

type Deps struct {
	Store  *state.Store
	Hub    *hub.Hub
	Placer *hub.Placer
	Log    *zap.Logger
}

func Handler(d Deps, opts Options) http.HandlerFunc {
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = 5 * time.Second
	}
	if opts.MsgRate <= 0 {
		opts.MsgRate = 10
	}
	if opts.MsgBurst <= 0 {
		opts.MsgBurst = 20
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(maxMessageSize)

		s := &session{
			id:      uuid.NewString(),
			actor:   actor.Resolve(r),
			conn:    conn,
			deps:    d,
			limiter: rate.NewLimiter(opts.MsgRate, opts.MsgBurst),
		}
		s.log = log.With(zap.String("client", s.id), zap.String("actor", s.actor))

		if err := s.run(r.Context(), opts.SnapshotTimeout); err != nil {
			s.log.Debug("session ended", zap.Error(err))
		}
	}
}

type session struct {
	id      string
	actor   string
	conn    *websocket.Conn
	deps    Deps
	limiter *rate.Limiter
	log     *zap.Logger

	// frameMu keeps a grid_update and its placement_count adjacent on the wire; broadcasts
	// and resync replies are written from different goroutines.
	frameMu sync.Mutex
}

func (s *session) run(parent context.Context, snapshotTimeout time.Duration) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// The join-time snapshot is bounded; an unreachable store closes the connection.
	snapCtx, snapCancel := context.WithTimeout(ctx, snapshotTimeout)
	snap, err := s.deps.Store.Current(snapCtx)
	snapCancel()
	if err != nil {
		s.log.Error("initial snapshot failed", zap.Error(err))
		s.writeEvent(ctx, protocol.TypeError, protocol.Error{Code: protocol.CodeStoreUnavailable, Message: "canvas unavailable"})
		s.conn.Close(websocket.StatusInternalError, "store unavailable")
		return err
	}

	out := make(chan hub.Frame, outboxSize)
	first, err := s.deps.Hub.Join(ctx, s.id, out, hub.Frame{Seq: snap.Count, Count: snap.Count, Grid: snap.Grid})
	if err != nil {
		s.conn.Close(websocket.StatusGoingAway, "server shutting down")
		return err
	}
	defer s.deps.Hub.Leave(s.id)
	s.log.Info("client connected", zap.Int64("seq", first.Seq))

	if err := s.writeFrame(ctx, first); err != nil {
		return err
	}

	go s.writeLoop(ctx, cancel, out)
	go s.pingLoop(ctx)

	err = s.readLoop(ctx)
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		s.log.Info("client disconnected")
		return nil
	}
	return err
}

// writeLoop forwards hub broadcasts. A closed outbox means the hub dropped this session,
// either for falling behind or because it shut down.
func (s *session) writeLoop(ctx context.Context, cancel context.CancelFunc, out <-chan hub.Frame) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-out:
			if !ok {
				select {
				case <-s.deps.Hub.Done():
					s.conn.Close(websocket.StatusGoingAway, "server shutting down")
				default:
					s.conn.Close(websocket.StatusPolicyViolation, "too slow")
				}
				return
			}
			if err := s.writeFrame(ctx, f); err != nil {
				s.log.Debug("write failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *session) pingLoop(ctx context.Context) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.Ping(pctx)
			cancel()
			if err != nil {
				s.log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *session) readLoop(ctx context.Context) error {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		if !s.limiter.Allow() {
			s.log.Debug("inbound frame throttled")
			continue
		}

		msg, err := protocol.DecodeClient(data)
		if err != nil {
			// malformed input is dropped; the connection stays up
			s.log.Debug("dropping malformed message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case protocol.TypeApplyColor:
			s.apply(ctx, msg.Apply)
		case protocol.TypeSync:
			s.resync(ctx)
		}
	}
}

func (s *session) apply(ctx context.Context, req protocol.ApplyColor) {
	out := s.deps.Placer.Apply(ctx, s.actor, canvas.Placement{X: req.X, Y: req.Y, Color: req.Color})
	switch out.Status {
	case hub.StatusInvalid:
		return
	case hub.StatusForbidden:
		s.writeEvent(ctx, protocol.TypeError, protocol.Error{Code: protocol.CodeForbidden, Message: "placement not allowed"})
		return
	case hub.StatusFailed:
		s.writeEvent(ctx, protocol.TypeError, protocol.Error{Code: protocol.CodeStoreUnavailable, Message: "placement failed, try again later"})
	case hub.StatusAccepted:
		s.log.Info("placement accepted", zap.Int("x", req.X), zap.Int("y", req.Y), zap.Int64("seq", out.Seq))
	}
	s.writeEvent(ctx, protocol.TypeCooldown, protocol.Cooldown{Seconds: state.Seconds(out.Remaining)})
}

func (s *session) resync(ctx context.Context) {
	snap, err := s.deps.Store.Current(ctx)
	if err != nil {
		s.writeEvent(ctx, protocol.TypeError, protocol.Error{Code: protocol.CodeStoreUnavailable, Message: "resync failed"})
		return
	}
	_ = s.writeFrame(ctx, hub.Frame{Seq: snap.Count, Count: snap.Count, Grid: snap.Grid})
}

func (s *session) writeFrame(ctx context.Context, f hub.Frame) error {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if err := s.write(ctx, protocol.MustEncode(protocol.TypeGridUpdate, protocol.GridUpdate{Grid: f.Grid, Seq: f.Seq})); err != nil {
		return err
	}
	return s.write(ctx, protocol.MustEncode(protocol.TypePlacementCount, protocol.PlacementCount{Count: f.Count}))
}

func (s *session) writeEvent(ctx context.Context, typ string, payload any) {
	b, err := protocol.Encode(typ, payload)
	if err != nil {
		s.log.Error("encode event", zap.String("type", typ), zap.Error(err))
		return
	}
	if err := s.write(ctx, b); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Debug("write failed", zap.String("type", typ), zap.Error(err))
	}
}

// write is safe to call from several goroutines; coder/websocket serializes writers.
func (s *session) write(ctx context.Context, b []byte) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(wctx, websocket.MessageText, b)
}
