package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldserve-io/fieldserve/internal/database"
	"github.com/fieldserve-io/fieldserve/internal/models"
)

// ServiceRequestRepository handles the request rows the workflow engine
// reads and annotates. Generic CRUD lives in the admin surface; only the
// workflow-facing operations are here.
type ServiceRequestRepository struct {
	db *sql.DB
}

// NewServiceRequestRepository creates a new service request repository
func NewServiceRequestRepository(db *sql.DB) *ServiceRequestRepository {
	return &ServiceRequestRepository{db: db}
}

const serviceRequestColumns = `
	id, request_number, title, description, client_id, business_id,
	location_id, assigned_technician_id, status, resolution, actual_cost,
	actual_duration_minutes, close_reason_id, escalation_flagged, deleted,
	created_at, updated_at`

// GetByID retrieves a non-deleted service request. Returns nil when missing.
func (r *ServiceRequestRepository) GetByID(ctx context.Context, id int) (*models.ServiceRequest, error) {
	query := database.ConvertPlaceholders(`
		SELECT ` + serviceRequestColumns + `
		FROM service_requests
		WHERE id = ? AND deleted = 0
	`)

	var s models.ServiceRequest
	var flagged, deleted int
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.RequestNumber, &s.Title, &s.Description, &s.ClientID,
		&s.BusinessID, &s.LocationID, &s.AssignedTechnicianID, &s.Status,
		&s.Resolution, &s.ActualCost, &s.ActualDurationMinutes,
		&s.CloseReasonID, &flagged, &deleted, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan service request: %w", err)
	}
	s.EscalationFlagged = flagged != 0
	s.Deleted = deleted != 0
	return &s, nil
}

// Create inserts a request and returns its ID.
func (r *ServiceRequestRepository) Create(ctx context.Context, req *models.ServiceRequest) (int64, error) {
	query := database.ConvertPlaceholders(`
		INSERT INTO service_requests (
			request_number, title, description, client_id, business_id,
			location_id, status, escalation_flagged, deleted, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)
	`)

	id, _, err := database.InsertReturningID(ctx, r.db, query,
		req.RequestNumber, req.Title, req.Description, req.ClientID,
		req.BusinessID, req.LocationID, models.RequestStatusPending,
		req.CreatedAt, req.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert service request: %w", err)
	}
	return id, nil
}

// SetAcknowledged assigns the technician and flips the display status.
func (r *ServiceRequestRepository) SetAcknowledged(ctx context.Context, id, technicianID int, now time.Time) error {
	query := database.ConvertPlaceholders(`
		UPDATE service_requests
		SET assigned_technician_id = ?, status = ?, updated_at = ?
		WHERE id = ?
	`)

	_, err := r.db.ExecContext(ctx, query, technicianID, models.RequestStatusAcknowledged, now, id)
	if err != nil {
		return fmt.Errorf("set acknowledged: %w", err)
	}
	return nil
}

// SetStatus updates only the display-facing lifecycle status. Used for
// the in-progress flip on start and the revert to acknowledged on stop.
func (r *ServiceRequestRepository) SetStatus(ctx context.Context, id int, status string, now time.Time) error {
	query := database.ConvertPlaceholders(`
		UPDATE service_requests
		SET status = ?, updated_at = ?
		WHERE id = ?
	`)

	_, err := r.db.ExecContext(ctx, query, status, now, id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// SetEscalationFlagged marks a request whose acknowledgment retries are
// exhausted.
func (r *ServiceRequestRepository) SetEscalationFlagged(ctx context.Context, id int, now time.Time) error {
	query := database.ConvertPlaceholders(`
		UPDATE service_requests
		SET escalation_flagged = 1, updated_at = ?
		WHERE id = ?
	`)

	_, err := r.db.ExecContext(ctx, query, now, id)
	if err != nil {
		return fmt.Errorf("set escalation flagged: %w", err)
	}
	return nil
}

// SetCompleted records the closure fields in one update.
func (r *ServiceRequestRepository) SetCompleted(ctx context.Context, id int, close *models.CloseRequest, cumulativeMinutes int, now time.Time) error {
	actualDuration := cumulativeMinutes
	if close.ActualDurationMinutes != nil {
		actualDuration = *close.ActualDurationMinutes
	}

	var cost sql.NullFloat64
	if close.ActualCost != nil {
		cost = sql.NullFloat64{Float64: *close.ActualCost, Valid: true}
	}

	query := database.ConvertPlaceholders(`
		UPDATE service_requests
		SET status = ?, resolution = ?, actual_cost = ?,
		    actual_duration_minutes = ?, close_reason_id = ?, updated_at = ?
		WHERE id = ?
	`)

	_, err := r.db.ExecContext(ctx, query,
		models.RequestStatusCompleted,
		sql.NullString{String: close.Resolution, Valid: close.Resolution != ""},
		cost, actualDuration, close.CloseReasonID, now, id)
	if err != nil {
		return fmt.Errorf("set completed: %w", err)
	}
	return nil
}
