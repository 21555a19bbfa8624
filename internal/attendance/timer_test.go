package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/workdesk/internal/model"
	"github.com/nhle/workdesk/internal/testutil"
)

var start = time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)

func openDay(checkIn time.Time) *model.AttendanceDay {
	return &model.AttendanceDay{CheckIn: &checkIn, Status: model.AttendancePresent}
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0h 0m 0s"},
		{-time.Minute, "0h 0m 0s"},
		{time.Millisecond, "0h 0m 1s"},
		{999 * time.Millisecond, "0h 0m 1s"},
		{time.Second, "0h 0m 1s"},
		{1001 * time.Millisecond, "0h 0m 2s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 2m 3s"},
		{4 * time.Hour, "4h 0m 0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRemaining(tt.in), "%s", tt.in)
	}
}

func TestTrackInactiveRecords(t *testing.T) {
	clk := testutil.NewFakeClock(start)
	timer := NewTimer(clk, 0, nil)

	timer.Track(nil)
	assert.Equal(t, Status{}, timer.Status())

	in, out := start.Add(-5*time.Hour), start.Add(-time.Hour)
	timer.Track(&model.AttendanceDay{CheckIn: &in, CheckOut: &out})

	assert.False(t, timer.Status().CanCheckout)
	assert.False(t, timer.Status().Active)
	assert.Equal(t, 0, clk.ActiveTickers())
}

func TestEligibilityReachedOneSecondLater(t *testing.T) {
	clk := testutil.NewFakeClock(start)
	timer := NewTimer(clk, 4*time.Hour, nil)
	defer timer.Stop()

	timer.Track(openDay(start.Add(-(3*time.Hour + 59*time.Minute + 59*time.Second))))

	s := timer.Status()
	assert.True(t, s.Active)
	assert.False(t, s.CanCheckout)
	assert.Equal(t, "0h 0m 1s", s.Formatted())
	require.Equal(t, 1, clk.ActiveTickers())

	clk.Advance(time.Second)

	require.Eventually(t, func() bool {
		return timer.Status().CanCheckout
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "0h 0m 0s", timer.Status().Formatted())

	require.Eventually(t, func() bool {
		return clk.ActiveTickers() == 0
	}, 2*time.Second, 5*time.Millisecond, "ticker must stop once eligible")
}

func TestTrackEligibleRecordDoesNotTick(t *testing.T) {
	clk := testutil.NewFakeClock(start)
	timer := NewTimer(clk, 4*time.Hour, nil)

	timer.Track(openDay(start.Add(-5 * time.Hour)))

	assert.True(t, timer.Status().CanCheckout)
	assert.Equal(t, time.Duration(0), timer.Status().Remaining)
	assert.Equal(t, 0, clk.ActiveTickers())
}

func TestRemainingCountsDown(t *testing.T) {
	clk := testutil.NewFakeClock(start)
	timer := NewTimer(clk, 4*time.Hour, nil)
	defer timer.Stop()

	timer.Track(openDay(start.Add(-time.Hour)))
	assert.Equal(t, "3h 0m 0s", timer.Status().Formatted())

	clk.Advance(time.Second)
	require.Eventually(t, func() bool {
		return timer.Status().Formatted() == "2h 59m 59s"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRetrackTearsDownPreviousTicker(t *testing.T) {
	clk := testutil.NewFakeClock(start)
	timer := NewTimer(clk, 4*time.Hour, nil)

	timer.Track(openDay(start.Add(-time.Hour)))
	require.Equal(t, 1, clk.ActiveTickers())

	timer.Track(openDay(start.Add(-2 * time.Hour)))
	assert.Equal(t, 1, clk.ActiveTickers())
	assert.Equal(t, "2h 0m 0s", timer.Status().Formatted())

	checkIn := start.Add(-2 * time.Hour)
	checkOut := start
	timer.Track(&model.AttendanceDay{CheckIn: &checkIn, CheckOut: &checkOut})
	assert.Equal(t, 0, clk.ActiveTickers())
	assert.False(t, timer.Status().CanCheckout)
}

func TestStopHaltsTicking(t *testing.T) {
	clk := testutil.NewFakeClock(start)
	timer := NewTimer(clk, 4*time.Hour, nil)

	timer.Track(openDay(start.Add(-time.Hour)))
	timer.Stop()
	timer.Stop()

	assert.Equal(t, 0, clk.ActiveTickers())

	before := timer.Status()
	clk.Advance(10 * time.Second)
	assert.Equal(t, before, timer.Status())
}

func TestUpdatesCoalesce(t *testing.T) {
	clk := testutil.NewFakeClock(start)
	timer := NewTimer(clk, 4*time.Hour, nil)

	timer.Track(openDay(start.Add(-time.Hour)))
	timer.Track(openDay(start.Add(-2 * time.Hour)))
	timer.Stop()

	s := <-timer.Updates()
	assert.Equal(t, "2h 0m 0s", s.Formatted())

	select {
	case extra := <-timer.Updates():
		t.Fatalf("unexpected buffered update %+v", extra)
	default:
	}
}
