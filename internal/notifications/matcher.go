package notifications

import "github.com/fieldserve-io/fieldserve/internal/models"

// MatchSubscriptions selects the subscriptions interested in an event.
//
// Scope narrows matching: an agent-scoped subscription only sees events on
// that agent, a location-scoped one only events at that location, and so
// on down to unscoped subscriptions which see everything in reach.
// Multiple subscriptions matching at different scope levels each fire
// independently; precedence orders the scope check, it does not make the
// narrowest match exclusive.
//
// After the scope check, the subscription's severity, event-type and
// metric-type sets must each intersect the event. An empty event-type or
// metric-type set means "any"; an empty severity set deactivates the
// subscription entirely.
func MatchSubscriptions(subs []*models.AlertSubscription, ev Event) []*models.AlertSubscription {
	var matched []*models.AlertSubscription
	for _, sub := range subs {
		if !sub.IsActive() {
			continue
		}
		if !scopeMatches(sub, ev) {
			continue
		}
		if !contains(sub.Severities, ev.Severity) {
			continue
		}
		if len(sub.EventTypes) > 0 && !contains(sub.EventTypes, ev.Type) {
			continue
		}
		if len(sub.MetricTypes) > 0 && ev.MetricType != "" && !contains(sub.MetricTypes, ev.MetricType) {
			continue
		}
		matched = append(matched, sub)
	}
	return matched
}

// scopeMatches checks the narrowest scope the subscription declares.
// Agent beats location beats business beats unscoped.
func scopeMatches(sub *models.AlertSubscription, ev Event) bool {
	if sub.AgentID.Valid {
		return ev.AgentID > 0 && int64(ev.AgentID) == sub.AgentID.Int64
	}
	if sub.LocationID.Valid {
		return ev.LocationID > 0 && int64(ev.LocationID) == sub.LocationID.Int64
	}
	if sub.BusinessID.Valid {
		return ev.BusinessID > 0 && int64(ev.BusinessID) == sub.BusinessID.Int64
	}
	return true
}

func contains(set []string, value string) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}
