package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fieldserve-io/fieldserve/internal/database"
	"github.com/fieldserve-io/fieldserve/internal/models"
)

// SubscriptionRepository handles alert subscription rows. The set filters
// (severities, event types, metric types) are stored as JSON arrays.
type SubscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// ListEnabled returns all enabled subscriptions. Matching against a
// concrete event happens in the notifications package.
func (r *SubscriptionRepository) ListEnabled(ctx context.Context) ([]*models.AlertSubscription, error) {
	query := database.ConvertPlaceholders(`
		SELECT id, employee_id, business_id, location_id, agent_id,
		       severities, event_types, metric_types,
		       email_enabled, sms_enabled, websocket_enabled, push_enabled,
		       quiet_start, quiet_end, timezone, enabled, created_at, updated_at
		FROM alert_subscriptions
		WHERE enabled = 1
	`)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.AlertSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Create inserts a subscription and returns its ID.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.AlertSubscription) (int64, error) {
	severities, err := json.Marshal(sub.Severities)
	if err != nil {
		return 0, fmt.Errorf("marshal severities: %w", err)
	}
	eventTypes, err := json.Marshal(sub.EventTypes)
	if err != nil {
		return 0, fmt.Errorf("marshal event types: %w", err)
	}
	metricTypes, err := json.Marshal(sub.MetricTypes)
	if err != nil {
		return 0, fmt.Errorf("marshal metric types: %w", err)
	}

	query := database.ConvertPlaceholders(`
		INSERT INTO alert_subscriptions (
			employee_id, business_id, location_id, agent_id,
			severities, event_types, metric_types,
			email_enabled, sms_enabled, websocket_enabled, push_enabled,
			quiet_start, quiet_end, timezone, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	id, _, err := database.InsertReturningID(ctx, r.db, query,
		sub.EmployeeID, sub.BusinessID, sub.LocationID, sub.AgentID,
		string(severities), string(eventTypes), string(metricTypes),
		sub.EmailEnabled, sub.SMSEnabled, sub.WebsocketEnabled, sub.PushEnabled,
		sub.QuietStart, sub.QuietEnd, sub.Timezone, sub.Enabled,
		sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert subscription: %w", err)
	}
	return id, nil
}

func scanSubscription(rows *sql.Rows) (*models.AlertSubscription, error) {
	var sub models.AlertSubscription
	var severities, eventTypes, metricTypes sql.NullString
	err := rows.Scan(
		&sub.ID, &sub.EmployeeID, &sub.BusinessID, &sub.LocationID, &sub.AgentID,
		&severities, &eventTypes, &metricTypes,
		&sub.EmailEnabled, &sub.SMSEnabled, &sub.WebsocketEnabled, &sub.PushEnabled,
		&sub.QuietStart, &sub.QuietEnd, &sub.Timezone, &sub.Enabled,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan subscription: %w", err)
	}

	for _, pair := range []struct {
		raw  sql.NullString
		dest *[]string
	}{
		{severities, &sub.Severities},
		{eventTypes, &sub.EventTypes},
		{metricTypes, &sub.MetricTypes},
	} {
		if pair.raw.Valid && pair.raw.String != "" {
			if err := json.Unmarshal([]byte(pair.raw.String), pair.dest); err != nil {
				return nil, fmt.Errorf("parse subscription filters: %w", err)
			}
		}
	}

	return &sub, nil
}
