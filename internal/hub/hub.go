// Package hub fans accepted placements out to every connected actor and runs the
// placement state machine.
package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/color-war-backend/internal/canvas"
)

type Msg interface{ isHubMsg() }

type Join struct {
	ClientID string
	Outbox   chan Frame // where this session wants to receive broadcasts
	Initial  Frame      // snapshot the session read before joining
	Reply    chan Frame // first frame the session must write
}

func (Join) isHubMsg() {}

type Leave struct{ ClientID string }

func (Leave) isHubMsg() {}

type Publish struct{ Frame Frame }

func (Publish) isHubMsg() {}

type Shutdown struct{}

func (Shutdown) isHubMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isHubMsg() {}

// Frame is one broadcast: the grid as of placement number Seq.
type Frame struct {
	Seq   int64
	Count int64
	Grid  canvas.Grid
}

type View struct {
	Seq        int64
	NumClients int
}

type Hub struct {
	inbox chan Msg
	// latest is the newest frame seen from a join or a publish; it is what new joiners get.
	latest Frame
	// published is the highest seq broadcast so far. Only publishes move it.
	published int64
	clients   map[string]chan Frame
	ctx       context.Context
	cancel    context.CancelFunc
	log       *zap.Logger
}

func New(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}

	h := &Hub{
		inbox:     make(chan Msg, 256),
		latest:    Frame{Seq: -1},
		published: -1,
		clients:   make(map[string]chan Frame),
		ctx:       ctx,
		cancel:    cancel,
		log:       log.Named("hub"),
	}

	go h.loop()
	return h
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Join:
				first := msg.Initial
				if h.latest.Seq > first.Seq {
					first = h.latest
				} else {
					h.latest = first
				}
				// The joiner's snapshot may be ahead of the placer's publish for that seq;
				// existing clients still need that publish, so the watermark stays put.
				h.clients[msg.ClientID] = msg.Outbox
				msg.Reply <- first
				h.log.Debug("client joined", zap.String("client", msg.ClientID), zap.Int("clients", len(h.clients)))

			case Leave:
				if _, ok := h.clients[msg.ClientID]; ok {
					delete(h.clients, msg.ClientID)
					h.log.Debug("client left", zap.String("client", msg.ClientID), zap.Int("clients", len(h.clients)))
				}

			case Publish:
				// A frame for seq k already contains every commit <= k, so older frames add nothing.
				if msg.Frame.Seq <= h.published {
					h.log.Debug("dropping stale frame", zap.Int64("seq", msg.Frame.Seq), zap.Int64("published", h.published))
					break
				}
				h.published = msg.Frame.Seq
				if msg.Frame.Seq > h.latest.Seq {
					h.latest = msg.Frame
				}
				h.broadcast(msg.Frame)

			case GetState:
				msg.Reply <- View{Seq: h.latest.Seq, NumClients: len(h.clients)}

			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

// shutdown cancels before closing outboxes so sessions can tell it apart from a
// slow-client drop.
func (h *Hub) shutdown() {
	h.cancel()
	for id, ch := range h.clients {
		close(ch) // no more frames for this session
		delete(h.clients, id)
	}
}

func (h *Hub) broadcast(f Frame) {
	for id, ch := range h.clients {
		select {
		case ch <- f:
			// ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(h.clients, id)
			h.log.Warn("dropping slow client", zap.String("client", id), zap.Int64("seq", f.Seq))
		}
	}
}

// Inbox exposes the raw message channel; tests drive the loop through it.
func (h *Hub) Inbox() chan<- Msg { return h.inbox }

// Join registers outbox and returns the frame the session must write before any
// broadcast.
func (h *Hub) Join(ctx context.Context, clientID string, outbox chan Frame, initial Frame) (Frame, error) {
	reply := make(chan Frame, 1)
	if err := h.send(ctx, Join{ClientID: clientID, Outbox: outbox, Initial: initial, Reply: reply}); err != nil {
		return Frame{}, err
	}
	select {
	case f := <-reply:
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-h.ctx.Done():
		return Frame{}, context.Canceled
	}
}

func (h *Hub) Leave(clientID string) {
	_ = h.send(context.Background(), Leave{ClientID: clientID})
}

func (h *Hub) Publish(ctx context.Context, f Frame) error {
	return h.send(ctx, Publish{Frame: f})
}

func (h *Hub) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := h.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-h.ctx.Done():
		return View{}, context.Canceled
	}
}

// Done is closed once the hub has shut down.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) Close() {
	_ = h.send(context.Background(), Shutdown{})
}

func (h *Hub) send(ctx context.Context, m Msg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return context.Canceled
	}
}
