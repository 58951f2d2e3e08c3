package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/color-war-backend/internal/actor"
	"github.com/DoyleJ11/color-war-backend/internal/canvas"
	"github.com/DoyleJ11/color-war-backend/internal/kv"
	"github.com/DoyleJ11/color-war-backend/internal/ledger"
	"github.com/DoyleJ11/color-war-backend/internal/state"
)

var testPalette = canvas.MustPalette([]string{"#ff0000", "#00ff00", "#0000ff"})

type fixture struct {
	store  *state.Store
	hub    *Hub
	placer *Placer
	kv     kv.Store
}

func newFixture(t *testing.T, backend kv.Store, n int, cooldown time.Duration, opts PlacerOptions) fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store, err := state.New(backend, state.Options{GridSize: n, Cooldown: cooldown})
	require.NoError(t, err)
	h := New(ctx, nil)
	if opts.Palette.Len() == 0 {
		opts.Palette = testPalette
	}
	return fixture{store: store, hub: h, placer: NewPlacer(store, h, opts), kv: backend}
}

func (f fixture) join(t *testing.T, id string) chan Frame {
	t.Helper()
	ctx := context.Background()
	snap, err := f.store.Current(ctx)
	require.NoError(t, err)
	out := make(chan Frame, 16)
	_, err = f.hub.Join(ctx, id, out, Frame{Seq: snap.Count, Count: snap.Count, Grid: snap.Grid})
	require.NoError(t, err)
	return out
}

func TestPlacer_ScenarioFirstPlacement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), 4, 10*time.Second, PlacerOptions{})
	a := f.join(t, "conn-a")
	b := f.join(t, "conn-b")

	out := f.placer.Apply(ctx, "198.51.100.1", canvas.Placement{X: 1, Y: 2, Color: "#ff0000"})
	require.Equal(t, StatusAccepted, out.Status, "err: %v", out.Err)
	assert.Equal(t, int64(1), out.Seq)
	assert.Equal(t, 10, state.Seconds(out.Remaining))

	grid, err := f.store.Grid.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", grid[2][1])

	count, err := f.store.Counter.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	for _, ch := range []chan Frame{a, b} {
		got := recvFrame(t, ch, 200*time.Millisecond)
		assert.Equal(t, int64(1), got.Count)
		assert.Equal(t, "#ff0000", got.Grid[2][1])
	}
}

func TestPlacer_SecondPlacementWithinCooldownDenied(t *testing.T) {
	ctx := context.Background()
	cooldown := 10 * time.Second
	f := newFixture(t, kv.NewMemory(), 4, cooldown, PlacerOptions{})
	watcher := f.join(t, "watcher")

	first := f.placer.Apply(ctx, "198.51.100.1", canvas.Placement{X: 1, Y: 2, Color: "#ff0000"})
	require.Equal(t, StatusAccepted, first.Status)
	_ = recvFrame(t, watcher, 200*time.Millisecond)

	second := f.placer.Apply(ctx, "198.51.100.1", canvas.Placement{X: 3, Y: 3, Color: "#00ff00"})
	require.Equal(t, StatusRateLimited, second.Status)
	assert.Greater(t, second.Remaining, time.Duration(0))
	assert.LessOrEqual(t, second.Remaining, cooldown)

	grid, err := f.store.Grid.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", grid[3][3], "denied placement must not commit")

	count, err := f.store.Counter.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	recvNoFrame(t, watcher, 100*time.Millisecond)
}

func TestPlacer_OtherActorUnaffectedByCooldown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), 4, 10*time.Second, PlacerOptions{})

	require.Equal(t, StatusAccepted, f.placer.Apply(ctx, "actor-a", canvas.Placement{X: 1, Y: 2, Color: "#ff0000"}).Status)
	require.Equal(t, StatusAccepted, f.placer.Apply(ctx, "actor-b", canvas.Placement{X: 0, Y: 0, Color: "#0000ff"}).Status)

	grid, err := f.store.Grid.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", grid[2][1])
	assert.Equal(t, "#0000ff", grid[0][0])
}

func TestPlacer_InvalidRequestsHaveNoSideEffects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), 4, 10*time.Second, PlacerOptions{})
	watcher := f.join(t, "watcher")

	for _, p := range []canvas.Placement{
		{X: 4, Y: 0, Color: "#ff0000"},
		{X: 0, Y: -1, Color: "#ff0000"},
		{X: 0, Y: 0, Color: "#123456"},
		{X: 0, Y: 0, Color: ""},
	} {
		out := f.placer.Apply(ctx, "actor-a", p)
		assert.Equal(t, StatusInvalid, out.Status)
		assert.True(t, errors.Is(out.Err, canvas.ErrInvalidRequest))
	}

	rem, err := f.store.Limiter.Remaining(ctx, "actor-a")
	require.NoError(t, err)
	assert.Zero(t, rem, "invalid requests must not consume the cooldown")

	count, err := f.store.Counter.Value(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	recvNoFrame(t, watcher, 100*time.Millisecond)
}

func TestPlacer_CounterMatchesAcceptedPlacements(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), 8, time.Minute, PlacerOptions{})

	actors := []string{"a", "b", "c", "d", "e"}
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i, id := range actors {
		for attempt := 0; attempt < 3; attempt++ {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				out := f.placer.Apply(ctx, id, canvas.Placement{X: i, Y: i, Color: "#00ff00"})
				if out.Status == StatusAccepted {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}(i, id)
		}
	}
	// invalid ones never count
	f.placer.Apply(ctx, "z", canvas.Placement{X: 99, Y: 0, Color: "#00ff00"})
	wg.Wait()

	assert.Equal(t, len(actors), accepted, "exactly one acceptance per actor within cooldown")
	count, err := f.store.Counter.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(accepted), count)
}

// Regression for the whole-grid race: concurrent placements on different cells all survive.
func TestPlacer_ConcurrentPlacementsAllPersist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), 16, time.Minute, PlacerOptions{})
	watcher := f.join(t, "watcher")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out := f.placer.Apply(ctx, "actor-"+string(rune('a'+i)), canvas.Placement{X: i, Y: 15 - i, Color: "#0000ff"})
			assert.Equal(t, StatusAccepted, out.Status)
		}(i)
	}
	wg.Wait()

	grid, err := f.store.Grid.Snapshot(ctx)
	require.NoError(t, err)
	for i := 0; i < 16; i++ {
		assert.Equal(t, "#0000ff", grid.At(i, 15-i))
	}

	// the watcher converges: the newest frame it sees carries every cell
	var last Frame
	deadline := time.After(time.Second)
	for last.Seq < 16 {
		select {
		case fr := <-watcher:
			require.Greater(t, fr.Seq, last.Seq, "frames never go backwards")
			last = fr
		case <-deadline:
			t.Fatalf("watcher stuck at seq %d", last.Seq)
		}
	}
	for i := 0; i < 16; i++ {
		assert.Equal(t, "#0000ff", last.Grid.At(i, 15-i))
	}
}

// failingKV lets admission succeed but fails cell writes.
type failingKV struct {
	*kv.Memory
}

func (failingKV) HSet(context.Context, string, string, string) error {
	return errors.New("connection reset")
}

func TestPlacer_StoreUnavailableOnCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, failingKV{kv.NewMemory()}, 4, 10*time.Second, PlacerOptions{})
	watcher := f.join(t, "watcher")

	out := f.placer.Apply(ctx, "actor-a", canvas.Placement{X: 0, Y: 0, Color: "#ff0000"})
	require.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, canvas.ErrStoreUnavailable)
	assert.Greater(t, out.Remaining, time.Duration(0), "admission was consumed")

	count, err := f.store.Counter.Value(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	recvNoFrame(t, watcher, 100*time.Millisecond)
}

func TestPlacer_UnknownActorPolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), 4, 10*time.Second, PlacerOptions{Policy: actor.PolicyDeny})

	out := f.placer.Apply(ctx, actor.Unknown, canvas.Placement{X: 0, Y: 0, Color: "#ff0000"})
	assert.Equal(t, StatusForbidden, out.Status)
	assert.ErrorIs(t, out.Err, ErrForbidden)

	shared := newFixture(t, kv.NewMemory(), 4, 10*time.Second, PlacerOptions{})
	assert.Equal(t, StatusAccepted, shared.placer.Apply(ctx, actor.Unknown, canvas.Placement{X: 0, Y: 0, Color: "#ff0000"}).Status)
	assert.Equal(t, StatusRateLimited, shared.placer.Apply(ctx, actor.Unknown, canvas.Placement{X: 1, Y: 0, Color: "#ff0000"}).Status)
}

type captureRecorder struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (c *captureRecorder) Record(_ context.Context, e ledger.Entry) error {
	c.mu.Lock()
	c.entries = append(c.entries, e)
	c.mu.Unlock()
	return nil
}

func (c *captureRecorder) Close() error { return nil }

func TestPlacer_RecordsAcceptedPlacements(t *testing.T) {
	ctx := context.Background()
	rec := &captureRecorder{}
	f := newFixture(t, kv.NewMemory(), 4, 10*time.Second, PlacerOptions{Recorder: rec})

	f.placer.Apply(ctx, "actor-a", canvas.Placement{X: 1, Y: 1, Color: "#FF0000"})
	f.placer.Apply(ctx, "actor-a", canvas.Placement{X: 2, Y: 2, Color: "#ff0000"}) // denied

	require.Len(t, rec.entries, 1)
	e := rec.entries[0]
	assert.Equal(t, int64(1), e.Seq)
	assert.Equal(t, "#ff0000", e.Color)
	assert.Equal(t, "actor-a", e.Actor)
}
