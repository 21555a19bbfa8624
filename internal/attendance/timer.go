// Package attendance computes whether today's open attendance session has
// been long enough to check out.
package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/nhle/workdesk/internal/clock"
	"github.com/nhle/workdesk/internal/model"
)

// DefaultMinWork is the minimum worked duration before checkout.
const DefaultMinWork = 4 * time.Hour

const tickInterval = time.Second

// Status is a snapshot of checkout eligibility.
type Status struct {
	// Active is true while an open session is being tracked.
	Active      bool
	CanCheckout bool
	Remaining   time.Duration
}

// Formatted renders Remaining with FormatRemaining.
func (s Status) Formatted() string {
	return FormatRemaining(s.Remaining)
}

// FormatRemaining renders d as "{h}h {m}m {s}s", rounding a partial second
// up so a non-zero remainder never shows as 0s.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(math.Ceil(float64(d.Milliseconds()) / 1000))
	return fmt.Sprintf("%dh %dm %ds", total/3600, (total%3600)/60, total%60)
}

// Timer tracks one attendance record at a time and ticks every second
// until the record becomes eligible for checkout.
type Timer struct {
	clock   clock.Clock
	minWork time.Duration
	logger  *slog.Logger
	updates chan Status

	// lifecycle serializes Track and Stop.
	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}

	mu     sync.Mutex
	status Status
}

// NewTimer creates an idle Timer. A non-positive minWork uses
// DefaultMinWork.
func NewTimer(clk clock.Clock, minWork time.Duration, logger *slog.Logger) *Timer {
	if clk == nil {
		clk = clock.Real{}
	}
	if minWork <= 0 {
		minWork = DefaultMinWork
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Timer{
		clock:   clk,
		minWork: minWork,
		logger:  logger.With("component", "checkout-timer"),
		updates: make(chan Status, 1),
	}
}

// MinWork returns the configured policy.
func (t *Timer) MinWork() time.Duration {
	return t.minWork
}

// Status returns the latest computed status.
func (t *Timer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Updates delivers status changes. Only the latest undelivered status is
// kept.
func (t *Timer) Updates() <-chan Status {
	return t.updates
}

// Track replaces the tracked record. Any ticking for the previous record is
// torn down first. A nil record or one already checked out is inactive.
func (t *Timer) Track(day *model.AttendanceDay) {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	t.stop()

	if !day.Open() {
		t.set(Status{})
		return
	}

	checkIn := *day.CheckIn
	if t.evaluate(checkIn).CanCheckout {
		return
	}

	ticker := t.clock.NewTicker(tickInterval)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.cancel, t.done = cancel, done

	t.logger.Debug("tracking open session", "check_in", checkIn)
	go t.tick(ctx, ticker, checkIn, done)
}

// Stop tears down any ticking. The last status is kept.
func (t *Timer) Stop() {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	t.stop()
}

func (t *Timer) stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
	t.cancel, t.done = nil, nil
}

func (t *Timer) tick(ctx context.Context, ticker clock.Ticker, checkIn time.Time, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if t.evaluate(checkIn).CanCheckout {
				t.logger.Debug("checkout eligible")
				return
			}
		}
	}
}

// evaluate computes eligibility at the current time and publishes it.
func (t *Timer) evaluate(checkIn time.Time) Status {
	remaining := t.minWork - t.clock.Now().Sub(checkIn)
	s := Status{Active: true, Remaining: remaining}
	if remaining <= 0 {
		s.CanCheckout = true
		s.Remaining = 0
	}
	t.set(s)
	return s
}

func (t *Timer) set(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s

	select {
	case t.updates <- s:
		return
	default:
	}
	select {
	case <-t.updates:
	default:
	}
	t.updates <- s
}
