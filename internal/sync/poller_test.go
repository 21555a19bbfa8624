package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/workdesk/internal/api"
	"github.com/nhle/workdesk/internal/testutil"
)

type fakeCounter struct {
	mu     gosync.Mutex
	server int
	local  int
	calls  int
	err    error
}

func (c *fakeCounter) LoadUnreadCountOnly(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return c.err
	}
	c.local = c.server
	return nil
}

func (c *fakeCounter) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *fakeCounter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func receive(t *testing.T, p *Poller) ReconcileResultMsg {
	t.Helper()
	done := make(chan ReconcileResultMsg, 1)
	go func() { done <- p.WaitForNextResult()().(ReconcileResultMsg) }()
	select {
	case msg := <-done:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no reconcile result")
		return ReconcileResultMsg{}
	}
}

func TestDisabledPollerDoesNothing(t *testing.T) {
	c := &fakeCounter{}
	p := New(c, 0, nil, nil)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.Start())
	assert.False(t, p.Running())
	p.Stop()
}

func TestPollerReconcilesOnTick(t *testing.T) {
	clk := testutil.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	c := &fakeCounter{server: 5, local: 2}
	p := New(c, time.Minute, clk, nil)

	require.NotNil(t, p.Start())
	assert.Nil(t, p.Start(), "second start is a no-op")
	defer p.Stop()

	clk.Advance(time.Minute)

	msg := receive(t, p)
	require.NoError(t, msg.Error)
	assert.Equal(t, 5, msg.UnreadCount)
	assert.Equal(t, SyncIdle, p.Status().State)
	assert.Equal(t, clk.Now(), p.Status().LastSync)
}

func TestPollerReportsAuthErrors(t *testing.T) {
	c := &fakeCounter{err: &api.AuthError{Message: "Token expired"}}
	p := New(c, time.Hour, testutil.NewFakeClock(time.Now()), nil)
	p.Start()
	defer p.Stop()

	p.RefreshNow()

	msg := receive(t, p)
	require.Error(t, msg.Error)
	assert.True(t, msg.AuthExpired)
	assert.Equal(t, SyncError, p.Status().State)
}

func TestStopReleasesTicker(t *testing.T) {
	clk := testutil.NewFakeClock(time.Now())
	c := &fakeCounter{err: errors.New("offline")}
	p := New(c, time.Second, clk, nil)

	p.Start()
	require.Equal(t, 1, clk.ActiveTickers())

	p.Stop()
	p.Stop()

	assert.False(t, p.Running())
	assert.Equal(t, 0, clk.ActiveTickers())

	clk.Advance(time.Minute)
	assert.Equal(t, 0, c.callCount())
}
