// Package countdown provides a drift-free countdown timer shared by every
// client surface. The deadline is computed once from the clock at Start time;
// ticks only re-derive the remaining duration from that deadline, so a slow
// or delayed tick never accumulates error.
//
// The countdown is display-side only. It is never the authority for closing
// voting; only the admin's explicit close action is.
package countdown

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTickInterval is fine enough for smooth sub-second display without
// excess recomputation.
const DefaultTickInterval = 100 * time.Millisecond

// Option configures a Countdown.
type Option func(*Countdown)

// WithClock replaces the wall clock, typically with a clockwork.FakeClock in tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Countdown) {
		c.clock = clock
	}
}

// WithTickInterval overrides the tick resolution.
func WithTickInterval(d time.Duration) Option {
	return func(c *Countdown) {
		c.interval = d
	}
}

// Countdown counts down to an absolute deadline and fires a completion
// handler exactly once when the deadline is reached naturally.
type Countdown struct {
	clock    clockwork.Clock
	interval time.Duration

	mu       sync.Mutex
	deadline time.Time
	running  bool
	expired  bool
	gen      int
	stopCh   chan struct{}

	// onComplete is a current-handler cell: the handler registered at fire
	// time runs, not the one captured when Start was called.
	onComplete func()
	onTick     func(remaining time.Duration)
}

// New creates a stopped countdown.
func New(opts ...Option) *Countdown {
	c := &Countdown{
		clock:    clockwork.NewRealClock(),
		interval: DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetOnComplete registers the handler fired on natural expiry. The latest
// registered handler fires, including one registered after Start.
func (c *Countdown) SetOnComplete(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onComplete = fn
}

// SetOnTick registers a per-tick observer of the remaining duration.
func (c *Countdown) SetOnTick(fn func(remaining time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTick = fn
}

// Start begins a countdown of d from now. Starting while already running
// cancels the prior countdown first; its completion handler will not fire.
func (c *Countdown) Start(d time.Duration) {
	c.mu.Lock()
	c.cancelLocked()
	c.gen++
	c.deadline = c.clock.Now().Add(d)
	c.running = true
	c.expired = false
	c.stopCh = make(chan struct{})
	gen := c.gen
	stopCh := c.stopCh
	c.mu.Unlock()

	go c.run(gen, stopCh)
}

// Stop cancels the countdown. Remaining resets to zero and Expired to false;
// the completion handler does not fire.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
	c.expired = false
}

// cancelLocked invalidates any running countdown. Callers hold c.mu.
func (c *Countdown) cancelLocked() {
	c.gen++
	c.running = false
	c.deadline = time.Time{}
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
}

// Remaining returns the time left, clamped to >= 0. Zero when stopped.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return 0
	}
	remaining := c.deadline.Sub(c.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsRunning reports whether a countdown is in progress.
func (c *Countdown) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Expired reports whether the last countdown reached its deadline naturally.
// False after Stop or restart.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

func (c *Countdown) run(gen int, stopCh chan struct{}) {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.Chan():
			if done := c.tick(gen); done {
				return
			}
		}
	}
}

// tick handles one timer tick for generation gen. Returns true when the
// countdown has finished (expired or superseded).
func (c *Countdown) tick(gen int) bool {
	c.mu.Lock()
	if gen != c.gen {
		// A newer Start or Stop superseded this run.
		c.mu.Unlock()
		return true
	}

	remaining := c.deadline.Sub(c.clock.Now())
	if remaining > 0 {
		onTick := c.onTick
		c.mu.Unlock()
		if onTick != nil {
			onTick(remaining)
		}
		return false
	}

	// Natural expiry: fires exactly once, then the run goroutine exits.
	c.running = false
	c.expired = true
	c.deadline = time.Time{}
	c.stopCh = nil
	onComplete := c.onComplete
	c.mu.Unlock()

	if onComplete != nil {
		onComplete()
	}
	return true
}
