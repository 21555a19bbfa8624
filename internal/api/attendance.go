package api

import (
	"context"

	"github.com/nhle/workdesk/internal/model"
)

type attendanceEnvelope struct {
	Attendance *model.AttendanceDay `json:"attendance"`
	Message    string               `json:"message"`
}

// TodayAttendance returns today's record, or nil when the user has not
// checked in.
func (c *Client) TodayAttendance(ctx context.Context) (*model.AttendanceDay, error) {
	var result attendanceEnvelope
	if err := c.Get(ctx, "/attendance/today", &result); err != nil {
		return nil, err
	}
	return result.Attendance, nil
}

// AttendanceHistory returns the user's past attendance records.
func (c *Client) AttendanceHistory(ctx context.Context) ([]model.AttendanceDay, error) {
	var result struct {
		Attendance []model.AttendanceDay `json:"attendance"`
	}
	if err := c.Get(ctx, "/attendance/my-attendance", &result); err != nil {
		return nil, err
	}
	return result.Attendance, nil
}

// CheckIn opens today's attendance. The returned record may be nil when
// the server does not echo it.
func (c *Client) CheckIn(ctx context.Context) (*model.AttendanceDay, error) {
	var result attendanceEnvelope
	if err := c.Post(ctx, "/attendance/checkin", nil, &result); err != nil {
		return nil, err
	}
	return result.Attendance, nil
}

// CheckOut closes today's attendance. The server enforces the minimum
// work duration; the client countdown is advisory.
func (c *Client) CheckOut(ctx context.Context) (*model.AttendanceDay, error) {
	var result attendanceEnvelope
	if err := c.Post(ctx, "/attendance/checkout", nil, &result); err != nil {
		return nil, err
	}
	return result.Attendance, nil
}
