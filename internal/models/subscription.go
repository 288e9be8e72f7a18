package models

import (
	"database/sql"
	"time"
)

// Alert severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// AlertSubscription is a recipient's declared notification preferences,
// optionally scoped to a business, a service location, or a single
// monitored agent. Narrower scopes match fewer events; multiple matching
// subscriptions at different scopes each fire independently.
type AlertSubscription struct {
	ID         int
	EmployeeID int
	BusinessID sql.NullInt64
	LocationID sql.NullInt64
	AgentID    sql.NullInt64
	// Severity/event-type/metric-type filters stored as JSON arrays. An
	// empty event-type or metric-type set means "any"; an empty severity
	// set makes the subscription inactive.
	Severities       []string
	EventTypes       []string
	MetricTypes      []string
	EmailEnabled     bool
	SMSEnabled       bool
	WebsocketEnabled bool
	PushEnabled      bool
	// Quiet hours as "HH:MM" wall-clock strings in Timezone. The window
	// may wrap midnight. Both empty means no quiet hours.
	QuietStart string
	QuietEnd   string
	Timezone   string
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsActive reports whether the subscription can ever produce a
// notification: it must be enabled with at least one channel and at
// least one severity selected.
func (s *AlertSubscription) IsActive() bool {
	if !s.Enabled || len(s.Severities) == 0 {
		return false
	}
	return s.EmailEnabled || s.SMSEnabled || s.WebsocketEnabled || s.PushEnabled
}
