package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldserve-io/fieldserve/internal/database"
	"github.com/fieldserve-io/fieldserve/internal/models"
)

// DispatchLogRepository appends immutable delivery-attempt records. There
// is deliberately no update or delete.
type DispatchLogRepository struct {
	db *sql.DB
}

// NewDispatchLogRepository creates a new dispatch log repository
func NewDispatchLogRepository(db *sql.DB) *DispatchLogRepository {
	return &DispatchLogRepository{db: db}
}

// Append records one delivery attempt.
func (r *DispatchLogRepository) Append(ctx context.Context, entry *models.DispatchLogEntry) error {
	query := database.ConvertPlaceholders(`
		INSERT INTO dispatch_log (
			id, event_type, severity, service_request_id, recipient_id,
			channel, address, status, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.EventType, entry.Severity, entry.ServiceRequestID,
		entry.RecipientID, entry.Channel, entry.Address, entry.Status,
		entry.Error, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append dispatch log: %w", err)
	}
	return nil
}

// LastSentAt returns the time of the most recent successful dispatch for a
// (recipient, event type) pair, or zero when none exists. Used as the
// dedup fallback when no cache is configured.
func (r *DispatchLogRepository) LastSentAt(ctx context.Context, recipientID int, eventType string) (time.Time, error) {
	query := database.ConvertPlaceholders(`
		SELECT created_at
		FROM dispatch_log
		WHERE recipient_id = ? AND event_type = ? AND status = ?
		ORDER BY created_at DESC
		LIMIT 1
	`)

	var at time.Time
	err := r.db.QueryRowContext(ctx, query, recipientID, eventType, models.DispatchStatusSent).Scan(&at)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query dispatch log: %w", err)
	}
	return at, nil
}

// ListForRequest returns the audit trail for one service request,
// newest first.
func (r *DispatchLogRepository) ListForRequest(ctx context.Context, serviceRequestID int) ([]*models.DispatchLogEntry, error) {
	query := database.ConvertPlaceholders(`
		SELECT id, event_type, severity, service_request_id, recipient_id,
		       channel, address, status, error, created_at
		FROM dispatch_log
		WHERE service_request_id = ?
		ORDER BY created_at DESC
	`)

	rows, err := r.db.QueryContext(ctx, query, serviceRequestID)
	if err != nil {
		return nil, fmt.Errorf("query dispatch log: %w", err)
	}
	defer rows.Close()

	var entries []*models.DispatchLogEntry
	for rows.Next() {
		var e models.DispatchLogEntry
		if err := rows.Scan(
			&e.ID, &e.EventType, &e.Severity, &e.ServiceRequestID,
			&e.RecipientID, &e.Channel, &e.Address, &e.Status,
			&e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dispatch log: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
