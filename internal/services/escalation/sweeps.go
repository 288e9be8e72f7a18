package escalation

import (
	"context"
	"time"

	"github.com/fieldserve-io/fieldserve/internal/models"
	"github.com/fieldserve-io/fieldserve/internal/notifications"
)

// sweepAckReminders handles requests still pending past their reminder
// deadline. Each hit either reissues the acknowledgment batch for the next
// retry attempt or, once the retry budget is spent, widens the audience to
// every active employee and flags the request.
func (s *Service) sweepAckReminders(ctx context.Context, now time.Time, result *SweepResult) error {
	due, err := s.opts.States.FindDueReminders(ctx, models.StatePending, now, s.opts.BatchLimit)
	if err != nil {
		return err
	}

	for _, state := range due {
		requestID := state.ServiceRequestID
		attempt := state.AckReminderCount + 1

		if s.opts.MaxAckRetries > 0 && attempt > s.opts.MaxAckRetries {
			if err := s.escalateExhausted(ctx, requestID, attempt, now); err != nil {
				s.opts.Logger.Printf("escalation: flag request %d: %v", requestID, err)
				result.Errors++
				continue
			}
			result.Flagged++
			continue
		}

		recipients, err := s.ackAudience(ctx, requestID)
		if err != nil || len(recipients) == 0 {
			s.opts.Logger.Printf("escalation: no ack audience for request %d: %v", requestID, err)
			result.Errors++
			continue
		}

		if err := s.opts.Workflow.IssueAckBatch(ctx, requestID, recipients, attempt); err != nil {
			s.opts.Logger.Printf("escalation: reissue ack tokens for request %d: %v", requestID, err)
			result.Errors++
			continue
		}

		// Reschedule after the reissue so a failed send gets retried on the
		// next sweep instead of silently dropped.
		rescheduled, err := s.opts.States.RescheduleAckReminder(ctx, requestID, now.Add(s.opts.ReminderDelay), now)
		if err != nil {
			result.Errors++
			continue
		}
		if !rescheduled {
			// Someone acknowledged between the query and the update.
			continue
		}

		s.publish(ctx, requestID, notifications.Event{
			Type:     notifications.EventAckReminder,
			Severity: models.SeverityMedium,
			Payload:  map[string]any{"attempt": attempt},
		})
		result.AckReminders++
	}
	return nil
}

// sweepStartReminders handles acknowledged requests where work has not
// started by the deadline. The acknowledging employee gets a nudge email
// pointing at their still-valid start link; the audience never widens
// because the request is already owned.
func (s *Service) sweepStartReminders(ctx context.Context, now time.Time, result *SweepResult) error {
	due, err := s.opts.States.FindDueReminders(ctx, models.StateAcknowledged, now, s.opts.BatchLimit)
	if err != nil {
		return err
	}

	for _, state := range due {
		requestID := state.ServiceRequestID
		attempt := state.StartReminderCount + 1

		if err := s.opts.Workflow.SendStartReminder(ctx, requestID, attempt); err != nil {
			s.opts.Logger.Printf("escalation: start reminder for request %d: %v", requestID, err)
			result.Errors++
			continue
		}

		rescheduled, err := s.opts.States.RescheduleStartReminder(ctx, requestID, now.Add(s.opts.ReminderDelay), now)
		if err != nil {
			result.Errors++
			continue
		}
		if !rescheduled {
			continue
		}

		s.publish(ctx, requestID, notifications.Event{
			Type:     notifications.EventStartReminder,
			Severity: models.SeverityLow,
			Payload:  map[string]any{"attempt": attempt},
		})
		result.StartReminders++
	}
	return nil
}

// ackAudience resolves who should receive the next acknowledgment batch:
// the originally notified employees, falling back to every technician when
// the token trail is empty.
func (s *Service) ackAudience(ctx context.Context, serviceRequestID int) ([]int, error) {
	ids, err := s.opts.Tokens.NotifiedEmployeeIDs(ctx, serviceRequestID, models.ActionAcknowledge)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		return ids, nil
	}

	technicians, err := s.opts.Employees.ListByRoles(ctx, models.RoleTechnician)
	if err != nil {
		return nil, err
	}
	return employeeIDs(technicians), nil
}

// escalateExhausted is the terminal acknowledgment action: one last batch
// to every active employee, the request flagged for humans, and the
// schedule cleared so the sweep stops revisiting it.
func (s *Service) escalateExhausted(ctx context.Context, serviceRequestID, attempt int, now time.Time) error {
	everyone, err := s.opts.Employees.ListActive(ctx)
	if err != nil {
		return err
	}
	if ids := employeeIDs(everyone); len(ids) > 0 {
		if err := s.opts.Workflow.IssueAckBatch(ctx, serviceRequestID, ids, attempt); err != nil {
			return err
		}
	}

	if err := s.opts.Requests.SetEscalationFlagged(ctx, serviceRequestID, now); err != nil {
		return err
	}
	if err := s.opts.States.ClearSchedule(ctx, serviceRequestID, now); err != nil {
		return err
	}

	s.publish(ctx, serviceRequestID, notifications.Event{
		Type:     notifications.EventEscalationFlagged,
		Severity: models.SeverityCritical,
		Payload:  map[string]any{"attempt": attempt},
	})
	return nil
}

func (s *Service) publish(ctx context.Context, serviceRequestID int, ev notifications.Event) {
	if s.opts.Events == nil {
		return
	}
	req, err := s.opts.Requests.GetByID(ctx, serviceRequestID)
	if err == nil && req != nil {
		ev.BusinessID = req.BusinessID
		if req.LocationID.Valid {
			ev.LocationID = int(req.LocationID.Int64)
		}
		ev.Subject = reminderSubject(ev.Type, req.RequestNumber)
		ev.Body = req.Title
	}
	ev.ServiceRequestID = serviceRequestID
	ev.OccurredAt = s.now()
	s.opts.Events.Dispatch(ctx, ev)
}

func reminderSubject(eventType, requestNumber string) string {
	switch eventType {
	case notifications.EventAckReminder:
		return "Request #" + requestNumber + " is still unacknowledged"
	case notifications.EventStartReminder:
		return "Request #" + requestNumber + " is waiting for work to start"
	case notifications.EventEscalationFlagged:
		return "Request #" + requestNumber + " exhausted its acknowledgment retries"
	}
	return "Request #" + requestNumber
}

func employeeIDs(employees []*models.Employee) []int {
	ids := make([]int, 0, len(employees))
	for _, e := range employees {
		ids = append(ids, e.ID)
	}
	return ids
}
