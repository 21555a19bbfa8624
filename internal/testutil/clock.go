package testutil

import (
	"sync"
	"time"

	"github.com/nhle/workdesk/internal/clock"
)

// FakeClock is a manually advanced clock.Clock for tests.
//
// Tickers created from it fire only when Advance moves time past their
// next deadline. Like time.Ticker, a tick is dropped when the previous
// one has not been received yet.
//
// Thread-safety: All methods are safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[*fakeTicker]struct{}
}

// NewFakeClock creates a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{
		now:     start,
		tickers: make(map[*fakeTicker]struct{}),
	}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTicker registers a ticker with period d.
func (c *FakeClock) NewTicker(d time.Duration) clock.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTicker{
		clock:  c,
		period: d,
		next:   c.now.Add(d),
		ch:     make(chan time.Time, 1),
	}
	c.tickers[t] = struct{}{}
	return t
}

// Advance moves time forward by d and fires every ticker whose deadline
// has passed.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	for t := range c.tickers {
		for !t.next.After(c.now) {
			select {
			case t.ch <- t.next:
			default:
			}
			t.next = t.next.Add(t.period)
		}
	}
}

// ActiveTickers returns how many tickers have not been stopped.
func (c *FakeClock) ActiveTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

type fakeTicker struct {
	clock  *FakeClock
	period time.Duration
	next   time.Time
	ch     chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	delete(t.clock.tickers, t)
}
