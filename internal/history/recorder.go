// Package history records and formats the immutable event trail of a
// service request.
package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldserve-io/fieldserve/internal/database"
	"github.com/fieldserve-io/fieldserve/internal/models"
)

// Recorder appends history entries. Entries are never updated or deleted.
type Recorder struct {
	db *sql.DB
}

// NewRecorder creates a history recorder
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Record appends one history entry.
func (r *Recorder) Record(ctx context.Context, insert models.RequestHistoryInsert) error {
	query := database.ConvertPlaceholders(`
		INSERT INTO request_history (
			service_request_id, history_type, name, created_by, created_at
		) VALUES (?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		insert.ServiceRequestID, insert.HistoryType, insert.Name,
		insert.CreatedBy, insert.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ListForRequest returns the history for one request joined with actor
// names, oldest first.
func (r *Recorder) ListForRequest(ctx context.Context, serviceRequestID int) ([]*models.RequestHistoryEntry, error) {
	query := database.ConvertPlaceholders(`
		SELECT h.id, h.service_request_id, h.history_type, h.name,
		       h.created_by, e.login,
		       TRIM(CONCAT(e.first_name, ' ', e.last_name)),
		       h.created_at
		FROM request_history h
		LEFT JOIN employees e ON e.id = h.created_by
		WHERE h.service_request_id = ?
		ORDER BY h.created_at ASC, h.id ASC
	`)

	rows, err := r.db.QueryContext(ctx, query, serviceRequestID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []*models.RequestHistoryEntry
	for rows.Next() {
		var e models.RequestHistoryEntry
		var login, fullName sql.NullString
		if err := rows.Scan(&e.ID, &e.ServiceRequestID, &e.HistoryType,
			&e.Name, &e.CreatorID, &login, &fullName, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.CreatorLogin = login.String
		e.CreatorFullName = fullName.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
