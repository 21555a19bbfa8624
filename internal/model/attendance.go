package model

import "time"

// AttendanceStatus is the server's classification of an attendance day.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "Present"
	AttendanceLate    AttendanceStatus = "Late"
	AttendanceHalfDay AttendanceStatus = "Half-Day"
	AttendanceLeave   AttendanceStatus = "Leave"
	AttendanceAbsent  AttendanceStatus = "Absent"
)

// AttendanceDay is one day of attendance as returned by the API.
type AttendanceDay struct {
	ID        string           `json:"_id,omitempty"`
	Date      *time.Time       `json:"date,omitempty"`
	CheckIn   *time.Time       `json:"checkIn"`
	CheckOut  *time.Time       `json:"checkOut"`
	WorkHours *float64         `json:"workHours"`
	Status    AttendanceStatus `json:"status"`
}

// Open reports whether the day has a check-in without a check-out.
func (d *AttendanceDay) Open() bool {
	return d != nil && d.CheckIn != nil && d.CheckOut == nil
}
