package models

import (
	"database/sql"
	"time"
)

// TimeEntry is one contiguous work session on a service request.
// At most one entry per (service_request, technician) may be open
// (EndTime null) at any time.
type TimeEntry struct {
	ID               int64
	ServiceRequestID int
	TechnicianID     int
	StartTime        time.Time
	EndTime          sql.NullTime
	DurationMinutes  sql.NullInt64
	Billable         bool
	OnSite           bool
	CreatedAt        time.Time
}

// Open reports whether the session is still running.
func (e *TimeEntry) Open() bool {
	return !e.EndTime.Valid
}
