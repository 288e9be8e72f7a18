package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldserve-io/fieldserve/internal/database"
	"github.com/fieldserve-io/fieldserve/internal/models"
)

// WorkflowStateRepository handles the workflow state row per service
// request. All transitions are conditional updates guarded on the
// expected current state, so invariants hold across server instances
// without in-process locking.
type WorkflowStateRepository struct {
	db *sql.DB
}

// NewWorkflowStateRepository creates a new workflow state repository
func NewWorkflowStateRepository(db *sql.DB) *WorkflowStateRepository {
	return &WorkflowStateRepository{db: db}
}

const workflowStateColumns = `
	id, service_request_id, current_state,
	acknowledged_by, acknowledged_at, started_by, started_at,
	completed_by, completed_at, ack_reminder_count, start_reminder_count,
	next_action, next_action_at, created_at, updated_at`

// Create inserts the companion workflow state row for a new request.
func (r *WorkflowStateRepository) Create(ctx context.Context, serviceRequestID int, nextActionAt time.Time, now time.Time) error {
	query := database.ConvertPlaceholders(`
		INSERT INTO workflow_states (
			service_request_id, current_state, ack_reminder_count,
			start_reminder_count, next_action, next_action_at,
			created_at, updated_at
		) VALUES (?, ?, 0, 0, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		serviceRequestID, models.StatePending,
		models.NextActionAckReminder, nextActionAt, now, now)
	if err != nil {
		return fmt.Errorf("insert workflow state: %w", err)
	}
	return nil
}

// GetByRequestID retrieves the workflow state for a service request.
// Returns nil when no row exists.
func (r *WorkflowStateRepository) GetByRequestID(ctx context.Context, serviceRequestID int) (*models.WorkflowState, error) {
	query := database.ConvertPlaceholders(`
		SELECT ` + workflowStateColumns + `
		FROM workflow_states
		WHERE service_request_id = ?
	`)

	row := r.db.QueryRowContext(ctx, query, serviceRequestID)
	state, err := scanWorkflowState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return state, err
}

// Acknowledge moves pending to acknowledged, records the actor, clears the
// acknowledgment reminder schedule and arms the start reminder. Returns
// false when the request was not in pending.
func (r *WorkflowStateRepository) Acknowledge(ctx context.Context, serviceRequestID, employeeID int, nextActionAt time.Time, now time.Time) (bool, error) {
	query := database.ConvertPlaceholders(`
		UPDATE workflow_states
		SET current_state = ?, acknowledged_by = ?, acknowledged_at = ?,
		    next_action = ?, next_action_at = ?, updated_at = ?
		WHERE service_request_id = ? AND current_state = ?
	`)

	result, err := r.db.ExecContext(ctx, query,
		models.StateAcknowledged, employeeID, now,
		models.NextActionStartReminder, nextActionAt, now,
		serviceRequestID, models.StatePending)
	if err != nil {
		return false, fmt.Errorf("acknowledge: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acknowledge: %w", err)
	}
	return rows > 0, nil
}

// Start moves acknowledged to started for the employee who acknowledged.
// The WHERE clause enforces both the state and the actor, so a technician
// cannot start a request claimed by someone else.
func (r *WorkflowStateRepository) Start(ctx context.Context, serviceRequestID, employeeID int, now time.Time) (bool, error) {
	query := database.ConvertPlaceholders(`
		UPDATE workflow_states
		SET current_state = ?, started_by = ?, started_at = ?,
		    next_action = NULL, next_action_at = NULL, updated_at = ?
		WHERE service_request_id = ? AND current_state = ? AND acknowledged_by = ?
	`)

	result, err := r.db.ExecContext(ctx, query,
		models.StateStarted, employeeID, now, now,
		serviceRequestID, models.StateAcknowledged, employeeID)
	if err != nil {
		return false, fmt.Errorf("start: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("start: %w", err)
	}
	return rows > 0, nil
}

// Close moves started to closed. No further transitions are possible.
func (r *WorkflowStateRepository) Close(ctx context.Context, serviceRequestID, employeeID int, now time.Time) (bool, error) {
	query := database.ConvertPlaceholders(`
		UPDATE workflow_states
		SET current_state = ?, completed_by = ?, completed_at = ?,
		    next_action = NULL, next_action_at = NULL, updated_at = ?
		WHERE service_request_id = ? AND current_state = ?
	`)

	result, err := r.db.ExecContext(ctx, query,
		models.StateClosed, employeeID, now, now,
		serviceRequestID, models.StateStarted)
	if err != nil {
		return false, fmt.Errorf("close: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close: %w", err)
	}
	return rows > 0, nil
}

// FindDueReminders returns workflow states in the given state whose
// next_action_at has elapsed, oldest first. Used by the escalation sweeps.
func (r *WorkflowStateRepository) FindDueReminders(ctx context.Context, state string, now time.Time, limit int) ([]*models.WorkflowState, error) {
	query := database.ConvertPlaceholders(`
		SELECT ` + workflowStateColumns + `
		FROM workflow_states
		WHERE current_state = ? AND next_action_at IS NOT NULL AND next_action_at <= ?
		ORDER BY next_action_at ASC
		LIMIT ?
	`)

	rows, err := r.db.QueryContext(ctx, query, state, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	defer rows.Close()

	var states []*models.WorkflowState
	for rows.Next() {
		state, err := scanWorkflowState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// RescheduleAckReminder bumps the acknowledgment retry counter and pushes
// next_action_at into the future. Conditional on still being pending so a
// concurrent acknowledgment wins.
func (r *WorkflowStateRepository) RescheduleAckReminder(ctx context.Context, serviceRequestID int, nextActionAt time.Time, now time.Time) (bool, error) {
	query := database.ConvertPlaceholders(`
		UPDATE workflow_states
		SET ack_reminder_count = ack_reminder_count + 1,
		    next_action_at = ?, updated_at = ?
		WHERE service_request_id = ? AND current_state = ?
	`)

	result, err := r.db.ExecContext(ctx, query, nextActionAt, now, serviceRequestID, models.StatePending)
	if err != nil {
		return false, fmt.Errorf("reschedule ack reminder: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reschedule ack reminder: %w", err)
	}
	return rows > 0, nil
}

// RescheduleStartReminder bumps the start retry counter and pushes
// next_action_at into the future. Conditional on still being acknowledged.
func (r *WorkflowStateRepository) RescheduleStartReminder(ctx context.Context, serviceRequestID int, nextActionAt time.Time, now time.Time) (bool, error) {
	query := database.ConvertPlaceholders(`
		UPDATE workflow_states
		SET start_reminder_count = start_reminder_count + 1,
		    next_action_at = ?, updated_at = ?
		WHERE service_request_id = ? AND current_state = ?
	`)

	result, err := r.db.ExecContext(ctx, query, nextActionAt, now, serviceRequestID, models.StateAcknowledged)
	if err != nil {
		return false, fmt.Errorf("reschedule start reminder: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reschedule start reminder: %w", err)
	}
	return rows > 0, nil
}

// ClearSchedule drops any pending automatic reminder for a request.
func (r *WorkflowStateRepository) ClearSchedule(ctx context.Context, serviceRequestID int, now time.Time) error {
	query := database.ConvertPlaceholders(`
		UPDATE workflow_states
		SET next_action = NULL, next_action_at = NULL, updated_at = ?
		WHERE service_request_id = ?
	`)

	_, err := r.db.ExecContext(ctx, query, now, serviceRequestID)
	if err != nil {
		return fmt.Errorf("clear schedule: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflowState(row rowScanner) (*models.WorkflowState, error) {
	var s models.WorkflowState
	err := row.Scan(
		&s.ID,
		&s.ServiceRequestID,
		&s.CurrentState,
		&s.AcknowledgedBy,
		&s.AcknowledgedAt,
		&s.StartedBy,
		&s.StartedAt,
		&s.CompletedBy,
		&s.CompletedAt,
		&s.AckReminderCount,
		&s.StartReminderCount,
		&s.NextAction,
		&s.NextActionAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow state: %w", err)
	}
	return &s, nil
}
