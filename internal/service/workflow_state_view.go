package service

import (
	"context"
	"time"

	"github.com/xeonx/timeago"

	"github.com/fieldserve-io/fieldserve/internal/models"
)

// WorkflowStateView is the read model returned to API consumers: the raw
// state joined with actor names and human-readable relative times.
type WorkflowStateView struct {
	ServiceRequestID int        `json:"service_request_id"`
	CurrentState     string     `json:"current_state"`
	AcknowledgedBy   string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt   *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedAgo  string     `json:"acknowledged_ago,omitempty"`
	StartedBy        string     `json:"started_by,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	StartedAgo       string     `json:"started_ago,omitempty"`
	CompletedBy      string     `json:"completed_by,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CompletedAgo     string     `json:"completed_ago,omitempty"`
	AckReminderCount int        `json:"ack_reminder_count"`
	StartReminderCount int      `json:"start_reminder_count"`
	NextAction       string     `json:"next_action,omitempty"`
	NextActionAt     *time.Time `json:"next_action_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CreatedAgo       string     `json:"created_ago"`
}

func (s *WorkflowService) buildStateView(ctx context.Context, state *models.WorkflowState) *WorkflowStateView {
	now := s.now()
	view := &WorkflowStateView{
		ServiceRequestID:   state.ServiceRequestID,
		CurrentState:       state.CurrentState,
		AckReminderCount:   state.AckReminderCount,
		StartReminderCount: state.StartReminderCount,
		CreatedAt:          state.CreatedAt,
		CreatedAgo:         relativeTime(state.CreatedAt, now),
	}

	if state.AcknowledgedBy.Valid {
		view.AcknowledgedBy = s.resolveName(ctx, int(state.AcknowledgedBy.Int64))
	}
	if state.AcknowledgedAt.Valid {
		at := state.AcknowledgedAt.Time
		view.AcknowledgedAt = &at
		view.AcknowledgedAgo = relativeTime(at, now)
	}
	if state.StartedBy.Valid {
		view.StartedBy = s.resolveName(ctx, int(state.StartedBy.Int64))
	}
	if state.StartedAt.Valid {
		at := state.StartedAt.Time
		view.StartedAt = &at
		view.StartedAgo = relativeTime(at, now)
	}
	if state.CompletedBy.Valid {
		view.CompletedBy = s.resolveName(ctx, int(state.CompletedBy.Int64))
	}
	if state.CompletedAt.Valid {
		at := state.CompletedAt.Time
		view.CompletedAt = &at
		view.CompletedAgo = relativeTime(at, now)
	}
	if state.NextAction.Valid {
		view.NextAction = state.NextAction.String
	}
	if state.NextActionAt.Valid {
		at := state.NextActionAt.Time
		view.NextActionAt = &at
	}
	return view
}

func relativeTime(t, now time.Time) string {
	return timeago.English.FormatReference(t, now)
}
