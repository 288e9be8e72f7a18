package models

import (
	"database/sql"
	"time"
)

// ServiceRequest lifecycle status values. This is the coarse display-facing
// status; the workflow engine tracks its own state in WorkflowState.
const (
	RequestStatusPending      = "pending"
	RequestStatusAcknowledged = "acknowledged"
	RequestStatusInProgress   = "in_progress"
	RequestStatusCompleted    = "completed"
)

// ServiceRequest represents one unit of billable field work.
type ServiceRequest struct {
	ID                    int
	RequestNumber         string
	Title                 string
	Description           string
	ClientID              int
	BusinessID            int
	LocationID            sql.NullInt64
	AssignedTechnicianID  sql.NullInt64
	Status                string
	Resolution            sql.NullString
	ActualCost            sql.NullFloat64
	ActualDurationMinutes sql.NullInt64
	CloseReasonID         sql.NullInt64
	// EscalationFlagged marks requests that exhausted their acknowledgment
	// retries without anyone claiming them.
	EscalationFlagged bool
	Deleted           bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CloseRequest carries the caller-supplied fields for closing a request.
type CloseRequest struct {
	CloseReasonID         int      `json:"close_reason_id" binding:"required"`
	Resolution            string   `json:"resolution"`
	ActualCost            *float64 `json:"actual_cost"`
	ActualDurationMinutes *int     `json:"actual_duration"`
}
