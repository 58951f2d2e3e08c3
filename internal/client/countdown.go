package client

import (
	"sync"
	"time"
)

// Countdown is the cooldown display timer. At most one ticker runs at a time; it stops
// itself when it reaches zero, and Stop cancels it.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	gen       uint64
	stop      chan struct{}
	interval  time.Duration
	onTick    func(remaining int)
}

// NewCountdown calls onTick (if non-nil) with the remaining seconds on every change,
// including the final 0.
func NewCountdown(onTick func(remaining int)) *Countdown {
	return &Countdown{interval: time.Second, onTick: onTick}
}

// Start replaces any running countdown. seconds <= 0 just clears it.
func (c *Countdown) Start(seconds int) {
	c.mu.Lock()
	c.cancelLocked()
	if seconds <= 0 {
		c.remaining = 0
		c.mu.Unlock()
		c.notify(0)
		return
	}
	c.remaining = seconds
	c.gen++
	gen := c.gen
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	c.notify(seconds)
	go c.run(gen, stop)
}

func (c *Countdown) run(gen uint64, stop <-chan struct{}) {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.remaining--
		left := c.remaining
		if left <= 0 {
			c.remaining = 0
			c.stop = nil
		}
		c.mu.Unlock()

		c.notify(left)
		if left <= 0 {
			return
		}
	}
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Active() bool { return c.Remaining() > 0 }

// Stop cancels the ticker without notifying.
func (c *Countdown) Stop() {
	c.mu.Lock()
	c.cancelLocked()
	c.remaining = 0
	c.mu.Unlock()
}

func (c *Countdown) cancelLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.gen++
}

func (c *Countdown) notify(left int) {
	if c.onTick != nil {
		c.onTick(left)
	}
}
