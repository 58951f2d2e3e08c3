package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Async moves recording off the request path. Entries are queued and written by one
// goroutine; when the queue is full the entry is dropped and counted.
type Async struct {
	next    Recorder
	ch      chan Entry
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against sends on a closed channel
	closed  bool
	dropped atomic.Uint64
	timeout time.Duration
	log     *zap.Logger
}

func NewAsync(next Recorder, buffer int, log *zap.Logger) *Async {
	if buffer <= 0 {
		buffer = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	a := &Async{
		next:    next,
		ch:      make(chan Entry, buffer),
		timeout: 5 * time.Second,
		log:     log.Named("ledger"),
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop()
	}()
	return a
}

func (a *Async) loop() {
	for e := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Record(ctx, e); err != nil {
			a.log.Warn("record placement", zap.Int64("seq", e.Seq), zap.Error(err))
		}
		cancel()
	}
}

func (a *Async) Record(_ context.Context, e Entry) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	select {
	case a.ch <- e:
	default:
		n := a.dropped.Add(1)
		a.log.Warn("ledger queue full, dropping entry", zap.Int64("seq", e.Seq), zap.Uint64("dropped", n))
	}
	return nil
}

func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Close drains the queue and closes the wrapped recorder.
func (a *Async) Close() error {
	var err error
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()
		a.wg.Wait()
		err = a.next.Close()
	})
	return err
}
