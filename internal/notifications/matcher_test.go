package notifications

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldserve-io/fieldserve/internal/models"
)

func sub(id int, mutate func(*models.AlertSubscription)) *models.AlertSubscription {
	s := &models.AlertSubscription{
		ID:           id,
		EmployeeID:   id,
		Severities:   []string{models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical},
		EmailEnabled: true,
		Enabled:      true,
	}
	if mutate != nil {
		mutate(s)
	}
	return s
}

func matchedIDs(subs []*models.AlertSubscription) []int {
	ids := make([]int, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestMatchScopePrecedenceIsAdditive(t *testing.T) {
	// Employee A: subscribed to agent 9. Employee B: location 5.
	// Employee C: business 3. Employee D: unscoped.
	subs := []*models.AlertSubscription{
		sub(1, func(s *models.AlertSubscription) { s.AgentID = sql.NullInt64{Int64: 9, Valid: true} }),
		sub(2, func(s *models.AlertSubscription) { s.LocationID = sql.NullInt64{Int64: 5, Valid: true} }),
		sub(3, func(s *models.AlertSubscription) { s.BusinessID = sql.NullInt64{Int64: 3, Valid: true} }),
		sub(4, nil),
	}

	ev := Event{
		Type:       EventRequestCreated,
		Severity:   models.SeverityMedium,
		BusinessID: 3,
		LocationID: 5,
		AgentID:    9,
	}

	// All four scopes match the same event; every one fires.
	matched := MatchSubscriptions(subs, ev)
	assert.Equal(t, []int{1, 2, 3, 4}, matchedIDs(matched))
}

func TestMatchScopeExcludesOtherTargets(t *testing.T) {
	subs := []*models.AlertSubscription{
		sub(1, func(s *models.AlertSubscription) { s.AgentID = sql.NullInt64{Int64: 9, Valid: true} }),
		sub(2, func(s *models.AlertSubscription) { s.LocationID = sql.NullInt64{Int64: 5, Valid: true} }),
		sub(3, func(s *models.AlertSubscription) { s.BusinessID = sql.NullInt64{Int64: 3, Valid: true} }),
	}

	// Different agent, different location, same business.
	ev := Event{
		Type:       EventRequestCreated,
		Severity:   models.SeverityMedium,
		BusinessID: 3,
		LocationID: 6,
		AgentID:    11,
	}

	matched := MatchSubscriptions(subs, ev)
	assert.Equal(t, []int{3}, matchedIDs(matched))
}

func TestMatchSeverityFilter(t *testing.T) {
	subs := []*models.AlertSubscription{
		sub(1, func(s *models.AlertSubscription) { s.Severities = []string{models.SeverityCritical} }),
		sub(2, func(s *models.AlertSubscription) { s.Severities = []string{models.SeverityLow, models.SeverityMedium} }),
	}

	matched := MatchSubscriptions(subs, Event{Type: EventRequestCreated, Severity: models.SeverityMedium})
	assert.Equal(t, []int{2}, matchedIDs(matched))

	matched = MatchSubscriptions(subs, Event{Type: EventEscalationFlagged, Severity: models.SeverityCritical})
	assert.Equal(t, []int{1}, matchedIDs(matched))
}

func TestMatchEventTypeFilter(t *testing.T) {
	subs := []*models.AlertSubscription{
		sub(1, func(s *models.AlertSubscription) {
			s.EventTypes = []string{EventAckReminder, EventEscalationFlagged}
		}),
		sub(2, nil), // empty set means any event type
	}

	matched := MatchSubscriptions(subs, Event{Type: EventWorkStarted, Severity: models.SeverityLow})
	assert.Equal(t, []int{2}, matchedIDs(matched))

	matched = MatchSubscriptions(subs, Event{Type: EventAckReminder, Severity: models.SeverityMedium})
	assert.Equal(t, []int{1, 2}, matchedIDs(matched))
}

func TestMatchMetricTypeFilter(t *testing.T) {
	subs := []*models.AlertSubscription{
		sub(1, func(s *models.AlertSubscription) { s.MetricTypes = []string{"temperature"} }),
	}

	matched := MatchSubscriptions(subs, Event{Type: "agent.alert", Severity: models.SeverityHigh, MetricType: "uptime"})
	assert.Empty(t, matched)

	matched = MatchSubscriptions(subs, Event{Type: "agent.alert", Severity: models.SeverityHigh, MetricType: "temperature"})
	require.Len(t, matched, 1)

	// Workflow events carry no metric type; the filter does not block them.
	matched = MatchSubscriptions(subs, Event{Type: EventRequestClosed, Severity: models.SeverityLow})
	assert.Len(t, matched, 1)
}

func TestMatchInactiveSubscriptions(t *testing.T) {
	subs := []*models.AlertSubscription{
		sub(1, func(s *models.AlertSubscription) { s.Enabled = false }),
		sub(2, func(s *models.AlertSubscription) { s.Severities = nil }),
		sub(3, func(s *models.AlertSubscription) { s.EmailEnabled = false }), // no channel left
	}

	matched := MatchSubscriptions(subs, Event{Type: EventRequestCreated, Severity: models.SeverityMedium})
	assert.Empty(t, matched)
}
