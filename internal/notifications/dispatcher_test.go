package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldserve-io/fieldserve/internal/models"
)

type stubSubscriptions struct {
	subs []*models.AlertSubscription
}

func (s *stubSubscriptions) ListEnabled(ctx context.Context) ([]*models.AlertSubscription, error) {
	return s.subs, nil
}

type stubDirectory struct {
	byID map[int]*models.Employee
}

func (s *stubDirectory) GetByID(ctx context.Context, id int) (*models.Employee, error) {
	return s.byID[id], nil
}

type memoryDispatchLog struct {
	mu      sync.Mutex
	entries []*models.DispatchLogEntry
}

func (l *memoryDispatchLog) Append(ctx context.Context, entry *models.DispatchLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *memoryDispatchLog) LastSentAt(ctx context.Context, recipientID int, eventType string) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var last time.Time
	for _, e := range l.entries {
		if e.RecipientID == recipientID && e.EventType == eventType && e.Status == models.DispatchStatusSent && e.CreatedAt.After(last) {
			last = e.CreatedAt
		}
	}
	return last, nil
}

func (l *memoryDispatchLog) byStatus(channel, status string) []*models.DispatchLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.DispatchLogEntry
	for _, e := range l.entries {
		if e.Channel == channel && e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

type recordingEmail struct {
	mu   sync.Mutex
	sent []EmailMessage
	err  error
}

func (r *recordingEmail) Send(ctx context.Context, msg EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type recordingSMS struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSMS) Send(ctx context.Context, toE164, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, toE164)
	return nil
}

func dispatchFixture(subs []*models.AlertSubscription, email *recordingEmail, sms *recordingSMS) (*Dispatcher, *memoryDispatchLog) {
	logStore := &memoryDispatchLog{}
	directory := &stubDirectory{byID: map[int]*models.Employee{
		1: {ID: 1, Login: "erin", Email: "erin@fieldserve.test", Phone: "+15550001", Timezone: "UTC"},
		2: {ID: 2, Login: "tomas", Email: "tomas@fieldserve.test", Timezone: "UTC"},
	}}

	var emailSender EmailSender
	if email != nil {
		emailSender = email
	}
	var smsSender SMSSender
	if sms != nil {
		smsSender = sms
	}

	d := NewDispatcher(Deps{
		Subscriptions: &stubSubscriptions{subs: subs},
		Employees:     directory,
		Log:           logStore,
		Email:         emailSender,
		SMS:           smsSender,
	})
	return d, logStore
}

func TestDispatchSendsAndLogs(t *testing.T) {
	email := &recordingEmail{}
	sms := &recordingSMS{}
	subs := []*models.AlertSubscription{
		sub(1, func(s *models.AlertSubscription) { s.SMSEnabled = true }),
	}

	d, logStore := dispatchFixture(subs, email, sms)
	d.Dispatch(context.Background(), Event{
		Type:     EventRequestCreated,
		Severity: models.SeverityMedium,
		Subject:  "New service request #SR-20260310-0001",
		Body:     "HVAC unit down",
	})

	require.Len(t, email.sent, 1)
	assert.Equal(t, []string{"erin@fieldserve.test"}, email.sent[0].To)
	require.Len(t, sms.sent, 1)
	assert.Equal(t, "+15550001", sms.sent[0])

	sent := logStore.byStatus(models.ChannelEmail, models.DispatchStatusSent)
	require.Len(t, sent, 1)
	assert.Equal(t, 1, sent[0].RecipientID)
	assert.Equal(t, EventRequestCreated, sent[0].EventType)
}

func TestDispatchQuietHoursSuppressWakeUpChannels(t *testing.T) {
	email := &recordingEmail{}
	sms := &recordingSMS{}
	subs := []*models.AlertSubscription{
		sub(1, func(s *models.AlertSubscription) {
			s.SMSEnabled = true
			s.WebsocketEnabled = true
			s.QuietStart = "22:00"
			s.QuietEnd = "07:00"
			s.Timezone = "UTC"
		}),
	}

	d, logStore := dispatchFixture(subs, email, sms)
	d.WithClock(func() time.Time { return time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC) })

	d.Dispatch(context.Background(), Event{
		Type:     EventRequestCreated,
		Severity: models.SeverityMedium,
		Subject:  "New request",
	})

	assert.Empty(t, email.sent)
	assert.Empty(t, sms.sent)

	// Suppressions still leave an audit trail.
	assert.Len(t, logStore.byStatus(models.ChannelEmail, models.DispatchStatusSuppressed), 1)
	assert.Len(t, logStore.byStatus(models.ChannelSMS, models.DispatchStatusSuppressed), 1)

	// The websocket channel ignores quiet hours; with no hub configured it
	// records its own suppression reason rather than being silently lost.
	wsEntries := logStore.byStatus(models.ChannelWebsocket, models.DispatchStatusSuppressed)
	require.Len(t, wsEntries, 1)
	assert.Equal(t, "channel not configured", wsEntries[0].Error)
}

func TestDispatchRecordsFailures(t *testing.T) {
	email := &recordingEmail{err: errors.New("relay refused")}
	subs := []*models.AlertSubscription{sub(1, nil)}

	d, logStore := dispatchFixture(subs, email, nil)
	d.Dispatch(context.Background(), Event{Type: EventRequestCreated, Severity: models.SeverityMedium})

	failed := logStore.byStatus(models.ChannelEmail, models.DispatchStatusFailed)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error, "relay refused")
}

func TestDispatchDedupesEscalationResends(t *testing.T) {
	email := &recordingEmail{}
	subs := []*models.AlertSubscription{sub(1, nil)}

	d, _ := dispatchFixture(subs, email, nil)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := base
	d.WithClock(func() time.Time { return clock }).WithDedupWindow(5 * time.Minute)

	ev := Event{Type: EventAckReminder, Severity: models.SeverityMedium, Subject: "Still unacknowledged"}

	d.Dispatch(context.Background(), ev)
	require.Len(t, email.sent, 1)

	// Same reminder inside the window is dropped.
	clock = base.Add(time.Minute)
	d.Dispatch(context.Background(), ev)
	assert.Len(t, email.sent, 1)

	// Past the window it goes out again.
	clock = base.Add(6 * time.Minute)
	d.Dispatch(context.Background(), ev)
	assert.Len(t, email.sent, 2)
}

func TestDispatchNeverDedupesWorkflowEvents(t *testing.T) {
	email := &recordingEmail{}
	subs := []*models.AlertSubscription{sub(1, nil)}

	d, _ := dispatchFixture(subs, email, nil)
	d.WithDedupWindow(5 * time.Minute)

	ev := Event{Type: EventRequestAcknowledged, Severity: models.SeverityLow}
	d.Dispatch(context.Background(), ev)
	d.Dispatch(context.Background(), ev)
	assert.Len(t, email.sent, 2)
}
