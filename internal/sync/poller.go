package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/workdesk/internal/api"
	"github.com/nhle/workdesk/internal/clock"
)

// SyncState represents the current state of the reconcile loop.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// SyncStatus describes the last reconcile pass.
type SyncStatus struct {
	State    SyncState
	LastSync time.Time
	Error    error
}

// ReconcileResultMsg is a tea.Msg sent when a reconcile pass completes.
type ReconcileResultMsg struct {
	UnreadCount int
	Error       error

	// AuthExpired is set when the server rejected the session.
	AuthExpired bool
}

// Counter is the notification state being reconciled.
type Counter interface {
	LoadUnreadCountOnly(ctx context.Context) error
	UnreadCount() int
}

// fetchTimeout is the maximum time allowed for a single fetch operation.
const fetchTimeout = 30 * time.Second

// Poller periodically refreshes the unread counter from the server so
// missed pushes and failed optimistic updates converge.
type Poller struct {
	counter  Counter
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	resultCh  chan ReconcileResultMsg
	triggerCh chan struct{}

	mu      gosync.Mutex
	status  SyncStatus
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// New creates a Poller. A non-positive interval yields a Poller whose
// Start is a no-op.
func New(counter Counter, interval time.Duration, clk clock.Clock, logger *slog.Logger) *Poller {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		counter:   counter,
		interval:  interval,
		clock:     clk,
		logger:    logger.With("component", "reconcile"),
		resultCh:  make(chan ReconcileResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
	}
}

// Enabled reports whether the poller has a positive interval.
func (p *Poller) Enabled() bool {
	return p.interval > 0
}

// Start launches the polling goroutine and returns a tea.Cmd that
// waits for the first result. It returns nil when disabled or already
// running.
func (p *Poller) Start() tea.Cmd {
	if !p.Enabled() {
		return nil
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	ticker := p.clock.NewTicker(p.interval)
	go p.loop(ticker, p.stopCh, p.done)
	p.mu.Unlock()

	p.logger.Info("reconcile poller started", "interval", p.interval)
	return p.waitForResult()
}

// Stop halts polling and waits for the goroutine to exit. It is safe to
// call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	done := p.done
	p.mu.Unlock()

	<-done
}

// Running reports whether the polling goroutine is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// RefreshNow triggers an immediate pass without waiting for the ticker.
func (p *Poller) RefreshNow() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Status returns the outcome of the last pass.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop(ticker clock.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			p.reconcile()
		case <-p.triggerCh:
			p.reconcile()
		}
	}
}

// reconcile performs a single fetch and sends a ReconcileResultMsg on
// the result channel.
func (p *Poller) reconcile() {
	p.setStatus(SyncRunning, nil)

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	if err := p.counter.LoadUnreadCountOnly(ctx); err != nil {
		p.setStatus(SyncError, err)
		p.sendResult(ReconcileResultMsg{Error: err, AuthExpired: api.IsAuthError(err)})
		return
	}

	p.setStatus(SyncIdle, nil)
	p.sendResult(ReconcileResultMsg{UnreadCount: p.counter.UnreadCount()})
}

func (p *Poller) setStatus(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state == SyncIdle {
		p.status.LastSync = p.clock.Now()
	}
}

// sendResult sends a ReconcileResultMsg without blocking.
func (p *Poller) sendResult(msg ReconcileResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next reconcile
// result. Call it after handling a ReconcileResultMsg to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
