// Package notifications implements subscription matching and multi-channel
// notification dispatch for workflow and escalation events.
package notifications

import "time"

// Event types published by the workflow and escalation engines.
const (
	EventRequestCreated      = "workflow.created"
	EventRequestAcknowledged = "workflow.acknowledged"
	EventWorkStarted         = "workflow.started"
	EventWorkStopped         = "workflow.stopped"
	EventRequestClosed       = "workflow.closed"
	EventAckReminder         = "escalation.ack_reminder"
	EventStartReminder       = "escalation.start_reminder"
	EventEscalationFlagged   = "escalation.flagged"
)

// Event is one triggering occurrence to fan out: a state transition, an
// escalation, or an alert condition from a monitored agent.
type Event struct {
	Type     string
	Severity string
	// MetricType is set for agent alert conditions (e.g. "temperature",
	// "uptime"); empty for workflow transitions.
	MetricType string
	// Scope. Zero values mean unscoped at that level.
	BusinessID       int
	LocationID       int
	AgentID          int
	ServiceRequestID int
	Subject          string
	Body             string
	Payload          map[string]any
	OccurredAt       time.Time
}
