package notifications

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldserve-io/fieldserve/internal/models"
)

type subscriptionLister interface {
	ListEnabled(ctx context.Context) ([]*models.AlertSubscription, error)
}

type employeeDirectory interface {
	GetByID(ctx context.Context, id int) (*models.Employee, error)
}

type dispatchLog interface {
	Append(ctx context.Context, entry *models.DispatchLogEntry) error
	LastSentAt(ctx context.Context, recipientID int, eventType string) (time.Time, error)
}

// Deduper decides whether a (recipient, event type) pair was already
// notified within the window. Backed by Redis when configured, by the
// dispatch log otherwise.
type Deduper interface {
	ShouldSend(ctx context.Context, recipientID int, eventType string, window time.Duration) bool
}

// Deps wires the dispatcher's collaborators. Email, SMS, Push and Hub may
// each be nil; a nil channel is skipped with a suppressed log entry.
type Deps struct {
	Subscriptions subscriptionLister
	Employees     employeeDirectory
	Log           dispatchLog
	Email         EmailSender
	SMS           SMSSender
	Push          PushSender
	Hub           *Hub
	Deduper       Deduper
	Logger        *log.Logger
}

// Dispatcher resolves interested recipients for an event and fans out
// across each recipient's enabled channels. Dispatch never blocks a state
// transition: callers invoke it after their commit, and channel failures
// are logged, not returned.
type Dispatcher struct {
	deps Deps
	now  func() time.Time
	// sendTimeout bounds each individual provider call.
	sendTimeout time.Duration
	// dedupWindow suppresses repeat escalation notifications inside one
	// sweep cadence. Zero disables deduplication.
	dedupWindow time.Duration
}

// NewDispatcher creates a notification dispatcher
func NewDispatcher(deps Deps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Dispatcher{
		deps:        deps,
		now:         time.Now,
		sendTimeout: 10 * time.Second,
	}
}

// WithClock overrides the time source, for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// WithDedupWindow enables escalation resend suppression inside the window.
func (d *Dispatcher) WithDedupWindow(window time.Duration) *Dispatcher {
	d.dedupWindow = window
	return d
}

// Dispatch fans one event out to every matching subscription. Recipients
// are processed in parallel with no ordering guarantee between them; the
// call returns once every attempt has been logged.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = d.now()
	}

	subs, err := d.deps.Subscriptions.ListEnabled(ctx)
	if err != nil {
		d.deps.Logger.Printf("dispatch: list subscriptions: %v", err)
		return
	}

	matched := MatchSubscriptions(subs, ev)
	if len(matched) == 0 {
		return
	}

	dispatchMetrics().events.Inc()

	var wg sync.WaitGroup
	for _, sub := range matched {
		wg.Add(1)
		go func(sub *models.AlertSubscription) {
			defer wg.Done()
			d.dispatchToSubscription(ctx, ev, sub)
		}(sub)
	}
	wg.Wait()
}

func (d *Dispatcher) dispatchToSubscription(ctx context.Context, ev Event, sub *models.AlertSubscription) {
	if isEscalationEvent(ev.Type) && d.dedupWindow > 0 && d.deduper() != nil {
		if !d.deduper().ShouldSend(ctx, sub.EmployeeID, ev.Type, d.dedupWindow) {
			return
		}
	}

	employee, err := d.deps.Employees.GetByID(ctx, sub.EmployeeID)
	if err != nil || employee == nil {
		d.deps.Logger.Printf("dispatch: recipient %d unavailable: %v", sub.EmployeeID, err)
		return
	}

	quiet := InQuietHours(d.now(), sub.Timezone, sub.QuietStart, sub.QuietEnd)

	if sub.EmailEnabled {
		d.sendEmail(ctx, ev, sub, employee, quiet)
	}
	if sub.SMSEnabled {
		d.sendSMS(ctx, ev, sub, employee, quiet)
	}
	if sub.WebsocketEnabled {
		// In-app delivery always goes through: a muted dashboard badge is
		// not a wake-up, so quiet hours do not apply to this channel.
		d.sendWebsocket(ctx, ev, sub, employee)
	}
	if sub.PushEnabled {
		d.sendPush(ctx, ev, sub, employee, quiet)
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, ev Event, sub *models.AlertSubscription, employee *models.Employee, quiet bool) {
	if quiet {
		d.record(ctx, ev, sub, models.ChannelEmail, employee.Email, models.DispatchStatusSuppressed, "quiet hours")
		return
	}
	if d.deps.Email == nil {
		d.record(ctx, ev, sub, models.ChannelEmail, employee.Email, models.DispatchStatusSuppressed, "channel not configured")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	err := d.deps.Email.Send(sendCtx, EmailMessage{
		To:      []string{employee.Email},
		Subject: ev.Subject,
		Body:    ev.Body,
	})
	d.recordOutcome(ctx, ev, sub, models.ChannelEmail, employee.Email, err)
}

func (d *Dispatcher) sendSMS(ctx context.Context, ev Event, sub *models.AlertSubscription, employee *models.Employee, quiet bool) {
	if quiet {
		d.record(ctx, ev, sub, models.ChannelSMS, employee.Phone, models.DispatchStatusSuppressed, "quiet hours")
		return
	}
	if d.deps.SMS == nil || employee.Phone == "" {
		d.record(ctx, ev, sub, models.ChannelSMS, employee.Phone, models.DispatchStatusSuppressed, "channel not configured")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	err := d.deps.SMS.Send(sendCtx, employee.Phone, ev.Subject+": "+ev.Body)
	d.recordOutcome(ctx, ev, sub, models.ChannelSMS, employee.Phone, err)
}

func (d *Dispatcher) sendWebsocket(ctx context.Context, ev Event, sub *models.AlertSubscription, employee *models.Employee) {
	if d.deps.Hub == nil {
		d.record(ctx, ev, sub, models.ChannelWebsocket, employee.Login, models.DispatchStatusSuppressed, "channel not configured")
		return
	}
	d.deps.Hub.SendToEmployee(employee.ID, ev.Subject, ev.Body)
	d.record(ctx, ev, sub, models.ChannelWebsocket, employee.Login, models.DispatchStatusSent, "")
}

func (d *Dispatcher) sendPush(ctx context.Context, ev Event, sub *models.AlertSubscription, employee *models.Employee, quiet bool) {
	if quiet {
		d.record(ctx, ev, sub, models.ChannelPush, employee.Login, models.DispatchStatusSuppressed, "quiet hours")
		return
	}
	if d.deps.Push == nil {
		d.record(ctx, ev, sub, models.ChannelPush, employee.Login, models.DispatchStatusSuppressed, "channel not configured")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	err := d.deps.Push.Send(sendCtx, employee.ID, ev.Subject, ev.Body)
	d.recordOutcome(ctx, ev, sub, models.ChannelPush, employee.Login, err)
}

func (d *Dispatcher) recordOutcome(ctx context.Context, ev Event, sub *models.AlertSubscription, channel, address string, sendErr error) {
	if sendErr != nil {
		d.deps.Logger.Printf("dispatch: %s to employee %d failed: %v", channel, sub.EmployeeID, sendErr)
		d.record(ctx, ev, sub, channel, address, models.DispatchStatusFailed, sendErr.Error())
		return
	}
	d.record(ctx, ev, sub, channel, address, models.DispatchStatusSent, "")
}

func (d *Dispatcher) record(ctx context.Context, ev Event, sub *models.AlertSubscription, channel, address, status, errText string) {
	dispatchMetrics().attempts.WithLabelValues(channel, status).Inc()

	entry := &models.DispatchLogEntry{
		ID:               uuid.NewString(),
		EventType:        ev.Type,
		Severity:         ev.Severity,
		ServiceRequestID: ev.ServiceRequestID,
		RecipientID:      sub.EmployeeID,
		Channel:          channel,
		Address:          address,
		Status:           status,
		Error:            errText,
		CreatedAt:        d.now(),
	}
	if err := d.deps.Log.Append(ctx, entry); err != nil {
		d.deps.Logger.Printf("dispatch: append log: %v", err)
	}
}

func (d *Dispatcher) deduper() Deduper {
	if d.deps.Deduper != nil {
		return d.deps.Deduper
	}
	if d.deps.Log != nil {
		return &logDeduper{log: d.deps.Log, now: d.now}
	}
	return nil
}

func isEscalationEvent(eventType string) bool {
	switch eventType {
	case EventAckReminder, EventStartReminder, EventEscalationFlagged:
		return true
	}
	return false
}

// logDeduper answers dedup queries from the dispatch log when no cache is
// configured.
type logDeduper struct {
	log dispatchLog
	now func() time.Time
}

func (d *logDeduper) ShouldSend(ctx context.Context, recipientID int, eventType string, window time.Duration) bool {
	last, err := d.log.LastSentAt(ctx, recipientID, eventType)
	if err != nil || last.IsZero() {
		return true
	}
	return d.now().Sub(last) >= window
}
