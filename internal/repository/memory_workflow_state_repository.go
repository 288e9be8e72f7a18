package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/fieldserve-io/fieldserve/internal/models"
)

// MemoryWorkflowStateRepository is an in-memory workflow state store for
// tests. Transitions apply the same guard conditions as the SQL variant.
type MemoryWorkflowStateRepository struct {
	mu     sync.Mutex
	nextID int
	states map[int]*models.WorkflowState // keyed by service request ID
}

// NewMemoryWorkflowStateRepository creates an empty in-memory store
func NewMemoryWorkflowStateRepository() *MemoryWorkflowStateRepository {
	return &MemoryWorkflowStateRepository{states: make(map[int]*models.WorkflowState)}
}

// Create inserts the companion workflow state row for a new request.
func (r *MemoryWorkflowStateRepository) Create(ctx context.Context, serviceRequestID int, nextActionAt time.Time, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.states[serviceRequestID] = &models.WorkflowState{
		ID:               r.nextID,
		ServiceRequestID: serviceRequestID,
		CurrentState:     models.StatePending,
		NextAction:       sql.NullString{String: models.NextActionAckReminder, Valid: true},
		NextActionAt:     sql.NullTime{Time: nextActionAt, Valid: true},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return nil
}

// GetByRequestID retrieves the workflow state, or nil when absent.
func (r *MemoryWorkflowStateRepository) GetByRequestID(ctx context.Context, serviceRequestID int) (*models.WorkflowState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[serviceRequestID]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

// Acknowledge moves pending to acknowledged.
func (r *MemoryWorkflowStateRepository) Acknowledge(ctx context.Context, serviceRequestID, employeeID int, nextActionAt time.Time, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[serviceRequestID]
	if !ok || s.CurrentState != models.StatePending {
		return false, nil
	}
	s.CurrentState = models.StateAcknowledged
	s.AcknowledgedBy = sql.NullInt64{Int64: int64(employeeID), Valid: true}
	s.AcknowledgedAt = sql.NullTime{Time: now, Valid: true}
	s.NextAction = sql.NullString{String: models.NextActionStartReminder, Valid: true}
	s.NextActionAt = sql.NullTime{Time: nextActionAt, Valid: true}
	s.UpdatedAt = now
	return true, nil
}

// Start moves acknowledged to started for the acknowledging employee only.
func (r *MemoryWorkflowStateRepository) Start(ctx context.Context, serviceRequestID, employeeID int, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[serviceRequestID]
	if !ok || s.CurrentState != models.StateAcknowledged {
		return false, nil
	}
	if !s.AcknowledgedBy.Valid || s.AcknowledgedBy.Int64 != int64(employeeID) {
		return false, nil
	}
	s.CurrentState = models.StateStarted
	s.StartedBy = sql.NullInt64{Int64: int64(employeeID), Valid: true}
	s.StartedAt = sql.NullTime{Time: now, Valid: true}
	s.NextAction = sql.NullString{}
	s.NextActionAt = sql.NullTime{}
	s.UpdatedAt = now
	return true, nil
}

// Close moves started to closed.
func (r *MemoryWorkflowStateRepository) Close(ctx context.Context, serviceRequestID, employeeID int, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[serviceRequestID]
	if !ok || s.CurrentState != models.StateStarted {
		return false, nil
	}
	s.CurrentState = models.StateClosed
	s.CompletedBy = sql.NullInt64{Int64: int64(employeeID), Valid: true}
	s.CompletedAt = sql.NullTime{Time: now, Valid: true}
	s.NextAction = sql.NullString{}
	s.NextActionAt = sql.NullTime{}
	s.UpdatedAt = now
	return true, nil
}

// FindDueReminders returns states in the given state with an elapsed
// next_action_at, oldest first.
func (r *MemoryWorkflowStateRepository) FindDueReminders(ctx context.Context, state string, now time.Time, limit int) ([]*models.WorkflowState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*models.WorkflowState
	for _, s := range r.states {
		if s.CurrentState != state || !s.NextActionAt.Valid {
			continue
		}
		if s.NextActionAt.Time.After(now) {
			continue
		}
		copied := *s
		due = append(due, &copied)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextActionAt.Time.Before(due[j].NextActionAt.Time) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// RescheduleAckReminder bumps the ack retry counter while still pending.
func (r *MemoryWorkflowStateRepository) RescheduleAckReminder(ctx context.Context, serviceRequestID int, nextActionAt time.Time, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[serviceRequestID]
	if !ok || s.CurrentState != models.StatePending {
		return false, nil
	}
	s.AckReminderCount++
	s.NextActionAt = sql.NullTime{Time: nextActionAt, Valid: true}
	s.UpdatedAt = now
	return true, nil
}

// RescheduleStartReminder bumps the start retry counter while still acknowledged.
func (r *MemoryWorkflowStateRepository) RescheduleStartReminder(ctx context.Context, serviceRequestID int, nextActionAt time.Time, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[serviceRequestID]
	if !ok || s.CurrentState != models.StateAcknowledged {
		return false, nil
	}
	s.StartReminderCount++
	s.NextActionAt = sql.NullTime{Time: nextActionAt, Valid: true}
	s.UpdatedAt = now
	return true, nil
}

// ClearSchedule drops any pending reminder.
func (r *MemoryWorkflowStateRepository) ClearSchedule(ctx context.Context, serviceRequestID int, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.states[serviceRequestID]; ok {
		s.NextAction = sql.NullString{}
		s.NextActionAt = sql.NullTime{}
		s.UpdatedAt = now
	}
	return nil
}
