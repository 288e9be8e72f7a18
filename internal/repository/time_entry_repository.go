package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldserve-io/fieldserve/internal/database"
	"github.com/fieldserve-io/fieldserve/internal/models"
)

// TimeEntryRepository handles work-session rows. The single-open-session
// invariant is enforced in SQL with a conditional insert, not by
// read-then-write application logic.
type TimeEntryRepository struct {
	db *sql.DB
}

// NewTimeEntryRepository creates a new time entry repository
func NewTimeEntryRepository(db *sql.DB) *TimeEntryRepository {
	return &TimeEntryRepository{db: db}
}

// OpenSession inserts a new open entry unless one is already open for the
// (service_request, technician) pair. Returns 0 and false on conflict.
func (r *TimeEntryRepository) OpenSession(ctx context.Context, serviceRequestID, technicianID int, startTime time.Time) (int64, bool, error) {
	query := database.ConvertPlaceholders(`
		INSERT INTO time_entries (
			service_request_id, technician_id, start_time, billable, on_site, created_at
		)
		SELECT ?, ?, ?, 1, 1, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM time_entries
			WHERE service_request_id = ? AND technician_id = ? AND end_time IS NULL
		)
	`)

	id, inserted, err := database.InsertReturningID(ctx, r.db, query,
		serviceRequestID, technicianID, startTime, startTime,
		serviceRequestID, technicianID)
	if err != nil {
		return 0, false, fmt.Errorf("open session: %w", err)
	}
	return id, inserted, nil
}

// CloseSession sets the end time and duration on a still-open entry.
// Returns false when the entry does not exist or is already closed.
func (r *TimeEntryRepository) CloseSession(ctx context.Context, id int64, endTime time.Time, durationMinutes int) (bool, error) {
	query := database.ConvertPlaceholders(`
		UPDATE time_entries
		SET end_time = ?, duration_minutes = ?
		WHERE id = ? AND end_time IS NULL
	`)

	result, err := r.db.ExecContext(ctx, query, endTime, durationMinutes, id)
	if err != nil {
		return false, fmt.Errorf("close session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close session: %w", err)
	}
	return rows > 0, nil
}

// GetByID retrieves a time entry. Returns nil when not found.
func (r *TimeEntryRepository) GetByID(ctx context.Context, id int64) (*models.TimeEntry, error) {
	query := database.ConvertPlaceholders(`
		SELECT id, service_request_id, technician_id, start_time, end_time,
		       duration_minutes, billable, on_site, created_at
		FROM time_entries
		WHERE id = ?
	`)

	var e models.TimeEntry
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.ServiceRequestID, &e.TechnicianID, &e.StartTime,
		&e.EndTime, &e.DurationMinutes, &e.Billable, &e.OnSite, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan time entry: %w", err)
	}
	return &e, nil
}

// FindOpenSession returns the open entry for a (request, technician) pair,
// or nil when none is open.
func (r *TimeEntryRepository) FindOpenSession(ctx context.Context, serviceRequestID, technicianID int) (*models.TimeEntry, error) {
	query := database.ConvertPlaceholders(`
		SELECT id, service_request_id, technician_id, start_time, end_time,
		       duration_minutes, billable, on_site, created_at
		FROM time_entries
		WHERE service_request_id = ? AND technician_id = ? AND end_time IS NULL
	`)

	var e models.TimeEntry
	err := r.db.QueryRowContext(ctx, query, serviceRequestID, technicianID).Scan(
		&e.ID, &e.ServiceRequestID, &e.TechnicianID, &e.StartTime,
		&e.EndTime, &e.DurationMinutes, &e.Billable, &e.OnSite, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan time entry: %w", err)
	}
	return &e, nil
}

// CumulativeMinutes sums the durations of all closed sessions for a
// request. Recomputed from scratch on every stop so partial updates can
// never introduce drift.
func (r *TimeEntryRepository) CumulativeMinutes(ctx context.Context, serviceRequestID int) (int, error) {
	query := database.ConvertPlaceholders(`
		SELECT COALESCE(SUM(duration_minutes), 0)
		FROM time_entries
		WHERE service_request_id = ? AND end_time IS NOT NULL
	`)

	var total int
	if err := r.db.QueryRowContext(ctx, query, serviceRequestID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum durations: %w", err)
	}
	return total, nil
}
