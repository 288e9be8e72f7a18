package models

import (
	"database/sql"
	"time"
)

// Workflow states. Strict forward progression; the only loop is the
// start/stop work-session cycle inside "started", tracked via TimeEntry.
const (
	StatePending      = "pending"
	StateAcknowledged = "acknowledged"
	StateStarted      = "started"
	StateClosed       = "closed"
)

// Workflow token action types.
const (
	ActionAcknowledge = "acknowledge"
	ActionStart       = "start"
	ActionStop        = "stop"
	ActionClose       = "close"
)

// Scheduler action names stored in WorkflowState.NextAction.
const (
	NextActionAckReminder   = "acknowledge_reminder"
	NextActionStartReminder = "start_reminder"
)

// WorkflowState is the 1:1 companion record per service request that the
// token and escalation engines operate on.
type WorkflowState struct {
	ID                 int
	ServiceRequestID   int
	CurrentState       string
	AcknowledgedBy     sql.NullInt64
	AcknowledgedAt     sql.NullTime
	StartedBy          sql.NullInt64
	StartedAt          sql.NullTime
	CompletedBy        sql.NullInt64
	CompletedAt        sql.NullTime
	AckReminderCount   int
	StartReminderCount int
	// NextAction/NextActionAt drive the escalation sweeps. NextActionAt is
	// null exactly when no automatic reminder is pending for this request.
	NextAction   sql.NullString
	NextActionAt sql.NullTime
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WorkflowToken is a single-use secret bound to exactly one
// (service_request, employee, action, retry_attempt). Only the hash is
// stored; the raw token is delivered out-of-band by email.
type WorkflowToken struct {
	ID               int64
	ServiceRequestID int
	EmployeeID       int
	Action           string
	RetryAttempt     int
	Prefix           string
	TokenHash        string
	ExpiresAt        sql.NullTime
	UsedAt           sql.NullTime
	CreatedAt        time.Time
}

// IsExpired reports whether the token has passed its expiration instant.
// Tokens without an expiration (start/close links) never expire.
func (t *WorkflowToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt.Valid && !t.ExpiresAt.Time.After(now)
}

// IsUsed reports whether the token has already been consumed.
func (t *WorkflowToken) IsUsed() bool {
	return t.UsedAt.Valid
}

// Token format constants. Raw tokens look like fs_<prefix>_<random> where
// the prefix is stored in clear for lookup and the full token is bcrypt
// hashed at rest.
const (
	TokenPrefix       = "fs_"
	TokenPrefixLength = 8
	TokenRandomLength = 32
)
