package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRecorder struct {
	mu      sync.Mutex
	entries []Entry
	err     error
	closed  bool
}

func (m *memRecorder) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memRecorder) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *memRecorder) snapshot() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

func TestJournal_WritesAndRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir, "placements")
	clock := time.Date(2024, 6, 1, 10, 59, 0, 0, time.UTC)
	j.now = func() time.Time { return clock }

	ctx := context.Background()
	require.NoError(t, j.Record(ctx, Entry{Seq: 1, X: 1, Y: 2, Color: "#ef4444", Actor: "a", At: clock}))
	require.NoError(t, j.Record(ctx, Entry{Seq: 2, X: 0, Y: 0, Color: "#ffffff", Actor: "b", At: clock}))

	clock = clock.Add(2 * time.Minute)
	require.NoError(t, j.Record(ctx, Entry{Seq: 3, X: 3, Y: 3, Color: "#111827", Actor: "a", At: clock}))
	require.NoError(t, j.Close())

	first, err := ReadJournal(j.PathForHour("2024-06-01-10"))
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int64(1), first[0].Seq)
	assert.Equal(t, "#ef4444", first[0].Color)
	assert.Equal(t, int64(2), first[1].Seq)

	second, err := ReadJournal(j.PathForHour("2024-06-01-11"))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, int64(3), second[0].Seq)
}

func TestJournal_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for seq := int64(1); seq <= 2; seq++ {
		j := NewJournal(dir, "")
		j.now = func() time.Time { return clock }
		require.NoError(t, j.Record(ctx, Entry{Seq: seq}))
		require.NoError(t, j.Close())
	}

	entries, err := ReadJournal(NewJournal(dir, "").PathForHour("2024-06-01-10"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[1].Seq)
}

func TestMulti_CollectsErrors(t *testing.T) {
	good := &memRecorder{}
	bad := &memRecorder{err: errors.New("disk full")}
	m := Multi{good, bad}

	err := m.Record(context.Background(), Entry{Seq: 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, good.snapshot(), 1)

	require.NoError(t, m.Close())
	assert.True(t, good.closed)
	assert.True(t, bad.closed)
}

func TestAsync_DrainsOnClose(t *testing.T) {
	next := &memRecorder{}
	a := NewAsync(next, 16, nil)

	for i := int64(1); i <= 10; i++ {
		require.NoError(t, a.Record(context.Background(), Entry{Seq: i}))
	}
	require.NoError(t, a.Close())

	got := next.snapshot()
	require.Len(t, got, 10)
	for i, e := range got {
		assert.Equal(t, int64(i+1), e.Seq)
	}
	assert.True(t, next.closed)

	// recording after close is a no-op
	require.NoError(t, a.Record(context.Background(), Entry{Seq: 11}))
	require.NoError(t, a.Close())
}

// blockingRecorder holds the writer goroutine until released.
type blockingRecorder struct {
	memRecorder
	release chan struct{}
}

func (b *blockingRecorder) Record(ctx context.Context, e Entry) error {
	<-b.release
	return b.memRecorder.Record(ctx, e)
}

func TestAsync_DropsWhenFull(t *testing.T) {
	next := &blockingRecorder{release: make(chan struct{})}
	a := NewAsync(next, 1, nil)

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, a.Record(context.Background(), Entry{Seq: i}))
	}
	assert.GreaterOrEqual(t, a.Dropped(), uint64(3))

	close(next.release)
	require.NoError(t, a.Close())
}
