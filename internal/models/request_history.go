package models

import "time"

// History types recorded by the workflow engine. The Name field carries a
// structured payload using double-percent (%%) delimiters, decoded for
// display by the history package.
const (
	HistoryTypeCreated            = "RequestCreated"
	HistoryTypeAcknowledged       = "RequestAcknowledged"
	HistoryTypeWorkStarted        = "WorkStarted"
	HistoryTypeWorkStopped        = "WorkStopped"
	HistoryTypeClosed             = "RequestClosed"
	HistoryTypeEscalationReminder = "EscalationReminder"
	HistoryTypeEscalationFlagged  = "EscalationFlagged"
)

// RequestHistoryEntry represents a single recorded event on a service
// request, joined with the acting employee's display name.
type RequestHistoryEntry struct {
	ID               int64
	ServiceRequestID int
	HistoryType      string
	Name             string
	CreatorID        int
	CreatorLogin     string
	CreatorFullName  string
	CreatedAt        time.Time
}

// RequestHistoryInsert captures the data required to persist a history entry.
type RequestHistoryInsert struct {
	ServiceRequestID int
	HistoryType      string
	Name             string
	CreatedBy        int
	CreatedAt        time.Time
}
