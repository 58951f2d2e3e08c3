package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/color-war-backend/internal/canvas"
	"github.com/DoyleJ11/color-war-backend/internal/hub"
	"github.com/DoyleJ11/color-war-backend/internal/kv"
	"github.com/DoyleJ11/color-war-backend/internal/render"
	"github.com/DoyleJ11/color-war-backend/internal/state"
	"github.com/DoyleJ11/color-war-backend/internal/viewport"
	"github.com/DoyleJ11/color-war-backend/internal/ws"
	"github.com/DoyleJ11/color-war-backend/pkg/protocol"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newCanvasServer(t *testing.T, n int) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	store, err := state.New(kv.NewMemory(), state.Options{GridSize: n, Cooldown: 10 * time.Second})
	require.NoError(t, err)
	h := hub.New(ctx, nil)
	placer := hub.NewPlacer(store, h, hub.PlacerOptions{Palette: canvas.MustPalette(canvas.DefaultPalette)})
	srv := httptest.NewServer(ws.Handler(ws.Deps{Store: store, Hub: h, Placer: placer}, ws.Options{}))
	t.Cleanup(srv.Close)
	return srv
}

// gridWatch turns OnGrid callbacks into a channel so tests can wait on them.
type gridWatch struct {
	ch chan int64
}

func newGridWatch() *gridWatch { return &gridWatch{ch: make(chan int64, 16)} }

func (w *gridWatch) hook(_ canvas.Grid, seq int64) { w.ch <- seq }

func (w *gridWatch) wait(t *testing.T, seq int64) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-w.ch:
			if got >= seq {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for grid seq %d", seq)
		}
	}
}

func TestClient_MirrorsServerAndRendersPlacement(t *testing.T) {
	srv := newCanvasServer(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rec recordingSurface
	view := NewView(viewport.New(4, 40), &rec)
	watch := newGridWatch()
	c, err := Dial(ctx, wsURL(srv), Options{OnGrid: func(g canvas.Grid, seq int64) {
		view.SetGrid(g, seq)
		watch.hook(g, seq)
	}})
	require.NoError(t, err)
	defer c.Close()
	go c.Run(ctx)

	watch.wait(t, 0)
	require.NoError(t, c.Click(ctx, view, 15, 25, "#EF4444"))
	watch.wait(t, 1)

	assert.Equal(t, "#ef4444", c.Grid()[2][1])
	assert.Equal(t, int64(1), c.Seq())
	require.Eventually(t, func() bool { return c.Count() == 1 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return c.Cooldown() > 0 }, time.Second, 10*time.Millisecond)

	err = c.ApplyColor(ctx, 0, 0, "#ef4444")
	assert.ErrorIs(t, err, ErrCoolingDown)

	assert.ErrorIs(t, c.Click(ctx, view, 41, 0, "#ef4444"), ErrOutsideGrid)
	assert.Contains(t, rec.fills(), "#ef4444")
}

// seqServer writes grid_update frames with the given seqs, then reports the type of the
// first message the client sends back, or "" if nothing arrives within listen.
func seqServer(t *testing.T, seqs []int64, listen time.Duration) (*httptest.Server, <-chan string) {
	t.Helper()
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		grid := canvas.NewGrid(2)
		for _, seq := range seqs {
			_ = conn.Write(ctx, websocket.MessageText, protocol.MustEncode(protocol.TypeGridUpdate, protocol.GridUpdate{Grid: grid, Seq: seq}))
		}
		readCtx, cancel := context.WithTimeout(ctx, listen)
		defer cancel()
		_, data, err := conn.Read(readCtx)
		if err != nil {
			got <- ""
			return
		}
		env, _ := protocol.DecodeEnvelope(data)
		got <- env.Type
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestClient_GapFollowedBySilenceTriggersSync(t *testing.T) {
	srv, got := seqServer(t, []int64{1, 4}, 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, err := Dial(ctx, wsURL(srv), Options{ResyncGrace: 20 * time.Millisecond})
	require.NoError(t, err)
	defer c.Close()
	go c.Run(ctx)

	select {
	case typ := <-got:
		assert.Equal(t, protocol.TypeSync, typ)
	case <-ctx.Done():
		t.Fatal("client never asked for a resync")
	}
}

func TestClient_GapSettledByNewerFrameSendsNothing(t *testing.T) {
	// 2 and 3 were skipped by the hub; 5 arriving right after 4 shows the stream is live
	srv, got := seqServer(t, []int64{1, 4, 5}, 300*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, err := Dial(ctx, wsURL(srv), Options{ResyncGrace: 100 * time.Millisecond})
	require.NoError(t, err)
	defer c.Close()
	go c.Run(ctx)

	select {
	case typ := <-got:
		assert.Empty(t, typ, "no resync expected")
	case <-ctx.Done():
		t.Fatal("server never finished")
	}
	assert.Equal(t, int64(5), c.Seq())
}

func TestClient_CountNeverGoesBackwards(t *testing.T) {
	var seen []int64
	c := &Client{countdown: NewCountdown(nil), log: zap.NewNop(), opts: Options{
		OnCount: func(n int64) { seen = append(seen, n) },
	}}
	ctx := context.Background()
	for _, n := range []int64{5, 3, 6} {
		env, err := protocol.DecodeEnvelope(protocol.MustEncode(protocol.TypePlacementCount, protocol.PlacementCount{Count: n}))
		require.NoError(t, err)
		require.NoError(t, c.handle(ctx, env))
	}
	assert.Equal(t, int64(6), c.Count())
	assert.Equal(t, []int64{5, 6}, seen)
}

func TestClient_IgnoresStaleGrid(t *testing.T) {
	c := &Client{countdown: NewCountdown(nil), log: zap.NewNop()}
	ctx := context.Background()
	fresh := canvas.NewGrid(1)
	fresh.Set(0, 0, "#ffffff")
	c.applyGrid(ctx, fresh, 5)
	c.applyGrid(ctx, canvas.NewGrid(1), 3)
	assert.Equal(t, "#ffffff", c.Grid()[0][0])
	assert.Equal(t, int64(5), c.Seq())
}

func TestCountdown_TicksDownAndStops(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	cd := NewCountdown(func(left int) {
		mu.Lock()
		seen = append(seen, left)
		mu.Unlock()
	})
	cd.interval = 5 * time.Millisecond
	cd.Start(3)
	assert.True(t, cd.Active())

	require.Eventually(t, func() bool { return !cd.Active() }, time.Second, time.Millisecond)
	mu.Lock()
	assert.Equal(t, []int{3, 2, 1, 0}, seen)
	mu.Unlock()
}

func TestCountdown_RestartReplacesTicker(t *testing.T) {
	cd := NewCountdown(nil)
	cd.interval = time.Hour
	cd.Start(10)
	cd.Start(4)
	assert.Equal(t, 4, cd.Remaining())
	cd.Stop()
	assert.Equal(t, 0, cd.Remaining())
	assert.False(t, cd.Active())
	cd.Start(0)
	assert.False(t, cd.Active())
}

func TestView_RepaintsOnlyOnChange(t *testing.T) {
	var rec recordingSurface
	v := NewView(viewport.New(8, 80), &rec)
	assert.Equal(t, 1, v.Renders())

	assert.False(t, v.Pan(10, 10), "camera pinned at zoom 1")
	assert.False(t, v.ZoomAt(0, 0, -1))
	v.Resize(80)
	assert.Equal(t, 1, v.Renders())

	assert.True(t, v.ZoomAt(40, 40, 1))
	assert.True(t, v.Pan(-10, 0))
	v.SetGrid(canvas.NewGrid(8), 1)
	assert.Equal(t, 4, v.Renders())
}

type recordingSurface struct {
	mu     sync.Mutex
	colors []string
}

func (r *recordingSurface) FillRect(_, _, _, _ float64, c string) {
	r.mu.Lock()
	r.colors = append(r.colors, c)
	r.mu.Unlock()
}
func (r *recordingSurface) StrokeRect(_, _, _, _ float64, _ string) {}
func (r *recordingSurface) ClearRect(_, _, _, _ float64)            {}

func (r *recordingSurface) fills() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.colors...)
}

var _ render.Surface = (*recordingSurface)(nil)
