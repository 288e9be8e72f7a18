// Package escalation runs the reminder sweeps that keep service requests
// from stalling: unacknowledged requests get their acknowledgment links
// reissued on a retry schedule, and acknowledged-but-not-started requests
// get start reminders.
package escalation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fieldserve-io/fieldserve/internal/models"
)

type stateStore interface {
	FindDueReminders(ctx context.Context, state string, now time.Time, limit int) ([]*models.WorkflowState, error)
	RescheduleAckReminder(ctx context.Context, serviceRequestID int, nextActionAt time.Time, now time.Time) (bool, error)
	RescheduleStartReminder(ctx context.Context, serviceRequestID int, nextActionAt time.Time, now time.Time) (bool, error)
	ClearSchedule(ctx context.Context, serviceRequestID int, now time.Time) error
}

type tokenAudience interface {
	NotifiedEmployeeIDs(ctx context.Context, serviceRequestID int, action string) ([]int, error)
}

type employeeLister interface {
	ListActive(ctx context.Context) ([]*models.Employee, error)
	ListByRoles(ctx context.Context, roles ...string) ([]*models.Employee, error)
}

type requestFlagger interface {
	GetByID(ctx context.Context, id int) (*models.ServiceRequest, error)
	SetEscalationFlagged(ctx context.Context, id int, now time.Time) error
}

// reminderWorkflow is the slice of the workflow service the sweeps drive.
type reminderWorkflow interface {
	IssueAckBatch(ctx context.Context, serviceRequestID int, recipientIDs []int, retryAttempt int) error
	SendStartReminder(ctx context.Context, serviceRequestID, reminderCount int) error
}

// runLocker serializes sweeps across server instances. The Redis deduper
// satisfies it; absent a locker only the process-local guard applies.
type runLocker interface {
	AcquireLease(ctx context.Context, key string, ttl time.Duration) bool
}

// SweepResult summarizes a single sweep pass.
type SweepResult struct {
	// Skipped is true when another sweep was already running.
	Skipped        bool
	AckReminders   int
	StartReminders int
	Flagged        int
	Errors         int
}

// Service owns the escalation schedule. One cron entry fires the sweep at
// a fixed interval; an atomic guard makes overlapping fires no-ops rather
// than queued work.
type Service struct {
	opts    options
	cron    *cron.Cron
	entryID cron.EntryID
	running atomic.Bool
	now     func() time.Time
}

// New creates the escalation service.
func New(states stateStore, tokens tokenAudience, employees employeeLister, requests requestFlagger, workflow reminderWorkflow, opts ...Option) *Service {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.States = states
	o.Tokens = tokens
	o.Employees = employees
	o.Requests = requests
	o.Workflow = workflow

	c := o.Cron
	if c == nil {
		c = cron.New(cron.WithLocation(o.Location))
	}
	return &Service{opts: o, cron: c, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Start registers the sweep on the cron schedule and starts the scheduler.
func (s *Service) Start() error {
	spec := fmt.Sprintf("@every %s", s.opts.SweepInterval)
	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.SweepTimeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.opts.Logger.Printf("escalation: sweep failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule escalation sweep: %w", err)
	}
	s.entryID = id
	s.cron.Start()
	s.opts.Logger.Printf("escalation: sweeping every %s", s.opts.SweepInterval)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunOnce executes one sweep pass: acknowledgment reminders first, then
// start reminders. Safe to call concurrently; overlapping calls are
// skipped, never queued.
func (s *Service) RunOnce(ctx context.Context) (*SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return &SweepResult{Skipped: true}, nil
	}
	defer s.running.Store(false)

	if s.opts.Lock != nil {
		if !s.opts.Lock.AcquireLease(ctx, "escalation:sweep", s.opts.SweepInterval/2) {
			return &SweepResult{Skipped: true}, nil
		}
	}

	m := globalSweepMetrics()
	done := m.recordRun()
	defer done()

	result := &SweepResult{}
	now := s.now()

	if err := s.sweepAckReminders(ctx, now, result); err != nil {
		return result, err
	}
	if err := s.sweepStartReminders(ctx, now, result); err != nil {
		return result, err
	}

	if result.AckReminders+result.StartReminders+result.Flagged > 0 {
		s.opts.Logger.Printf("escalation: sweep sent %d ack reminder(s), %d start reminder(s), flagged %d request(s)",
			result.AckReminders, result.StartReminders, result.Flagged)
	}
	m.recordResult(result)
	return result, nil
}
