package escalation

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fieldserve-io/fieldserve/internal/notifications"
)

type eventPublisher interface {
	Dispatch(ctx context.Context, ev notifications.Event)
}

type options struct {
	Logger        *log.Logger
	States        stateStore
	Tokens        tokenAudience
	Employees     employeeLister
	Requests      requestFlagger
	Workflow      reminderWorkflow
	Events        eventPublisher
	Lock          runLocker
	Cron          *cron.Cron
	Location      *time.Location
	SweepInterval time.Duration
	SweepTimeout  time.Duration
	ReminderDelay time.Duration
	// MaxAckRetries bounds acknowledgment reissues; zero means unbounded.
	MaxAckRetries int
	BatchLimit    int
}

// Option applies configuration to the escalation service.
type Option func(*options)

func defaultOptions() options {
	return options{
		Logger:        log.Default(),
		Location:      time.UTC,
		SweepInterval: 5 * time.Minute,
		SweepTimeout:  2 * time.Minute,
		ReminderDelay: 2 * time.Minute,
		BatchLimit:    100,
	}
}

// WithLogger injects a custom logger implementation.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.Logger = l
	}
}

// WithEventPublisher injects the dispatcher that fans reminder events out
// to subscribers.
func WithEventPublisher(p eventPublisher) Option {
	return func(o *options) {
		o.Events = p
	}
}

// WithRunLock injects a cross-instance lock so only one server runs each
// scheduled sweep.
func WithRunLock(l runLocker) Option {
	return func(o *options) {
		o.Lock = l
	}
}

// WithCron supplies a preconfigured cron scheduler instance.
func WithCron(c *cron.Cron) Option {
	return func(o *options) {
		o.Cron = c
	}
}

// WithLocation sets the scheduler timezone location.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.Location = loc
	}
}

// WithSweepInterval sets how often the sweep fires.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.SweepInterval = d
		}
	}
}

// WithSweepTimeout bounds a single sweep execution.
func WithSweepTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.SweepTimeout = d
		}
	}
}

// WithReminderDelay sets the delay between successive reminders for the
// same request.
func WithReminderDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ReminderDelay = d
		}
	}
}

// WithMaxAckRetries bounds acknowledgment reissues. Zero keeps reminding
// forever.
func WithMaxAckRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.MaxAckRetries = n
		}
	}
}

// WithBatchLimit caps how many due requests one sweep processes.
func WithBatchLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.BatchLimit = n
		}
	}
}
