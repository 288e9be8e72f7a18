package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldserve-io/fieldserve/internal/models"
	"github.com/fieldserve-io/fieldserve/internal/notifications"
	"github.com/fieldserve-io/fieldserve/internal/repository"
	"github.com/fieldserve-io/fieldserve/internal/service"
)

// fakeRequestStore keeps service requests in a map with the same
// annotation semantics as the SQL repository.
type fakeRequestStore struct {
	mu       sync.Mutex
	nextID   int
	requests map[int]*models.ServiceRequest
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{requests: make(map[int]*models.ServiceRequest)}
}

func (f *fakeRequestStore) GetByID(ctx context.Context, id int) (*models.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, nil
	}
	copied := *req
	return &copied, nil
}

func (f *fakeRequestStore) Create(ctx context.Context, req *models.ServiceRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	stored := *req
	stored.ID = f.nextID
	stored.Status = models.RequestStatusPending
	f.requests[stored.ID] = &stored
	return int64(stored.ID), nil
}

func (f *fakeRequestStore) SetAcknowledged(ctx context.Context, id, technicianID int, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req := f.requests[id]
	req.AssignedTechnicianID.Int64 = int64(technicianID)
	req.AssignedTechnicianID.Valid = true
	req.Status = models.RequestStatusAcknowledged
	return nil
}

func (f *fakeRequestStore) SetStatus(ctx context.Context, id int, status string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[id].Status = status
	return nil
}

func (f *fakeRequestStore) SetCompleted(ctx context.Context, id int, close *models.CloseRequest, cumulativeMinutes int, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req := f.requests[id]
	req.Status = models.RequestStatusCompleted
	req.CloseReasonID.Int64 = int64(close.CloseReasonID)
	req.CloseReasonID.Valid = true
	req.ActualDurationMinutes.Int64 = int64(cumulativeMinutes)
	req.ActualDurationMinutes.Valid = true
	return nil
}

type fakeEmployees struct {
	byID map[int]*models.Employee
}

func (f *fakeEmployees) GetByID(ctx context.Context, id int) (*models.Employee, error) {
	return f.byID[id], nil
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []notifications.EmailMessage
}

func (f *fakeEmail) Send(ctx context.Context, msg notifications.EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

// lastTokenTo pulls the raw token out of the newest action link mailed to
// an address.
func (f *fakeEmail) lastTokenTo(t *testing.T, address, action string) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	marker := "/api/v1/workflow/" + action + "/"
	for i := len(f.sent) - 1; i >= 0; i-- {
		msg := f.sent[i]
		if msg.To[0] != address {
			continue
		}
		idx := strings.Index(msg.Body, marker)
		if idx < 0 {
			continue
		}
		raw := msg.Body[idx+len(marker):]
		if end := strings.IndexAny(raw, "\n "); end >= 0 {
			raw = raw[:end]
		}
		return raw
	}
	t.Fatalf("no %s link mailed to %s", action, address)
	return ""
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []models.RequestHistoryInsert
}

func (f *fakeHistory) Record(ctx context.Context, insert models.RequestHistoryInsert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, insert)
	return nil
}

func (f *fakeHistory) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.HistoryType)
	}
	return out
}

type fakeEvents struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (f *fakeEvents) Dispatch(ctx context.Context, ev notifications.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

type fakeNumbers struct{ n int }

func (f *fakeNumbers) Generate(ctx context.Context) (string, error) {
	f.n++
	return fmt.Sprintf("SR-20260310-%04d", f.n), nil
}

type workflowFixture struct {
	svc      *service.WorkflowService
	tokens   *service.TokenService
	entries  *service.TimeEntryService
	requests *fakeRequestStore
	states   *repository.MemoryWorkflowStateRepository
	email    *fakeEmail
	history  *fakeHistory
	events   *fakeEvents
	clock    *time.Time
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	clock := &now
	tick := func() time.Time { return *clock }

	tokens := service.NewTokenService(repository.NewMemoryTokenRepository()).WithClock(tick)
	entries := service.NewTimeEntryService(repository.NewMemoryTimeEntryRepository())
	states := repository.NewMemoryWorkflowStateRepository()
	requests := newFakeRequestStore()
	email := &fakeEmail{}
	hist := &fakeHistory{}
	events := &fakeEvents{}

	employees := &fakeEmployees{byID: map[int]*models.Employee{
		1: {ID: 1, Login: "erin", FirstName: "Erin", LastName: "Ormond", Email: "erin@fieldserve.test", Role: models.RoleTechnician, Active: true},
		2: {ID: 2, Login: "tomas", FirstName: "Tomas", LastName: "Vega", Email: "tomas@fieldserve.test", Role: models.RoleTechnician, Active: true},
		3: {ID: 3, Login: "ada", FirstName: "Ada", LastName: "Okafor", Email: "ada@fieldserve.test", Role: models.RoleTechnician, Active: true},
	}}

	svc := service.NewWorkflowService(service.WorkflowDeps{
		States:        states,
		Requests:      requests,
		Employees:     employees,
		Tokens:        tokens,
		TimeEntries:   entries,
		History:       hist,
		Events:        events,
		Email:         email,
		Numbers:       &fakeNumbers{},
		BaseURL:       "https://fieldserve.test",
		ReminderDelay: 2 * time.Minute,
		AckTokenTTL:   24 * time.Hour,
	}).WithClock(tick)

	return &workflowFixture{
		svc: svc, tokens: tokens, entries: entries, requests: requests,
		states: states, email: email, history: hist, events: events, clock: clock,
	}
}

func (fx *workflowFixture) advance(d time.Duration) {
	*fx.clock = fx.clock.Add(d)
}

func (fx *workflowFixture) createRequest(t *testing.T, recipients ...int) int {
	t.Helper()
	id, err := fx.svc.CreateRequest(context.Background(), &models.ServiceRequest{
		Title:      "HVAC unit down",
		ClientID:   10,
		BusinessID: 3,
	}, recipients)
	require.NoError(t, err)
	return id
}

func TestWorkflowHappyPath(t *testing.T) {
	ctx := context.Background()
	fx := newWorkflowFixture(t)

	requestID := fx.createRequest(t, 1, 2, 3)

	// Creation mails an acknowledgment link to each recipient.
	ackErin := fx.email.lastTokenTo(t, "erin@fieldserve.test", models.ActionAcknowledge)
	ackTomas := fx.email.lastTokenTo(t, "tomas@fieldserve.test", models.ActionAcknowledge)

	// Tomas acknowledges first.
	fx.advance(30 * time.Second)
	result, err := fx.svc.Acknowledge(ctx, ackTomas)
	require.NoError(t, err)
	assert.Equal(t, models.StateAcknowledged, result.State)
	assert.Equal(t, "Tomas Vega", result.ActorName)

	// Erin's stale link now names the winner.
	_, err = fx.svc.Acknowledge(ctx, ackErin)
	var conflict *service.StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Error(), "Tomas Vega")

	req, err := fx.requests.GetByID(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusAcknowledged, req.Status)
	assert.Equal(t, int64(2), req.AssignedTechnicianID.Int64)

	// Tomas starts on site.
	startRaw := fx.email.lastTokenTo(t, "tomas@fieldserve.test", models.ActionStart)
	fx.advance(40 * time.Minute)
	result, err = fx.svc.Start(ctx, startRaw)
	require.NoError(t, err)
	assert.Equal(t, models.StateStarted, result.State)

	req, _ = fx.requests.GetByID(ctx, requestID)
	assert.Equal(t, models.RequestStatusInProgress, req.Status)

	open, err := fx.entries.OpenSessionFor(ctx, requestID, 2)
	require.NoError(t, err)
	require.NotNil(t, open)

	// Work for 90 minutes, then stop for the day.
	stopRaw := fx.email.lastTokenTo(t, "tomas@fieldserve.test", models.ActionStop)
	fx.advance(90 * time.Minute)
	result, err = fx.svc.Stop(ctx, stopRaw)
	require.NoError(t, err)
	assert.Equal(t, models.StateStarted, result.State)
	require.NotNil(t, result.Session)
	assert.Equal(t, 90, result.Session.DurationMinutes)
	assert.Equal(t, 90, result.Session.CumulativeMinutes)

	req, _ = fx.requests.GetByID(ctx, requestID)
	assert.Equal(t, models.RequestStatusAcknowledged, req.Status)

	// Resume the next morning with the fresh start link.
	resumeRaw := fx.email.lastTokenTo(t, "tomas@fieldserve.test", models.ActionStart)
	fx.advance(16 * time.Hour)
	result, err = fx.svc.Start(ctx, resumeRaw)
	require.NoError(t, err)
	assert.Equal(t, models.StateStarted, result.State)

	// Finish the job after 30 more minutes.
	closeRaw := fx.email.lastTokenTo(t, "tomas@fieldserve.test", models.ActionClose)
	fx.advance(30 * time.Minute)
	result, err = fx.svc.Close(ctx, closeRaw, &models.CloseRequest{CloseReasonID: 4, Resolution: "Replaced compressor"})
	require.NoError(t, err)
	assert.Equal(t, models.StateClosed, result.State)

	req, _ = fx.requests.GetByID(ctx, requestID)
	assert.Equal(t, models.RequestStatusCompleted, req.Status)
	assert.Equal(t, int64(120), req.ActualDurationMinutes.Int64)

	assert.Equal(t, []string{
		models.HistoryTypeCreated,
		models.HistoryTypeAcknowledged,
		models.HistoryTypeWorkStarted,
		models.HistoryTypeWorkStopped,
		models.HistoryTypeWorkStarted,
		models.HistoryTypeClosed,
	}, fx.history.types())

	state, err := fx.states.GetByRequestID(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, models.StateClosed, state.CurrentState)
	assert.False(t, state.NextActionAt.Valid, "terminal state keeps no schedule")
}

func TestAcknowledgeRace(t *testing.T) {
	ctx := context.Background()
	fx := newWorkflowFixture(t)
	fx.createRequest(t, 1, 2)

	ackErin := fx.email.lastTokenTo(t, "erin@fieldserve.test", models.ActionAcknowledge)
	ackTomas := fx.email.lastTokenTo(t, "tomas@fieldserve.test", models.ActionAcknowledge)

	_, err := fx.svc.Acknowledge(ctx, ackErin)
	require.NoError(t, err)

	// Tomas' token was expired by Erin's win; the error names her.
	_, err = fx.svc.Acknowledge(ctx, ackTomas)
	var conflict *service.StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Error(), "Erin Ormond")
	assert.Equal(t, models.StateAcknowledged, conflict.CurrentState)
}

func TestStartRequiresAcknowledgingEmployee(t *testing.T) {
	ctx := context.Background()
	fx := newWorkflowFixture(t)
	requestID := fx.createRequest(t, 1, 2)

	ackErin := fx.email.lastTokenTo(t, "erin@fieldserve.test", models.ActionAcknowledge)
	_, err := fx.svc.Acknowledge(ctx, ackErin)
	require.NoError(t, err)

	// A start token forged for someone else fails closed.
	raw, err := fx.tokens.Issue(ctx, requestID, 3, models.ActionStart, 0, nil)
	require.NoError(t, err)
	_, err = fx.svc.Start(ctx, raw)
	assert.ErrorIs(t, err, service.ErrWrongEmployee)
}

func TestStopWithoutOpenSession(t *testing.T) {
	ctx := context.Background()
	fx := newWorkflowFixture(t)
	requestID := fx.createRequest(t, 1)

	ack := fx.email.lastTokenTo(t, "erin@fieldserve.test", models.ActionAcknowledge)
	_, err := fx.svc.Acknowledge(ctx, ack)
	require.NoError(t, err)

	start := fx.email.lastTokenTo(t, "erin@fieldserve.test", models.ActionStart)
	_, err = fx.svc.Start(ctx, start)
	require.NoError(t, err)

	stop := fx.email.lastTokenTo(t, "erin@fieldserve.test", models.ActionStop)
	fx.advance(10 * time.Minute)
	_, err = fx.svc.Stop(ctx, stop)
	require.NoError(t, err)

	// A second stop token issued directly has no session to close.
	raw, err := fx.tokens.Issue(ctx, requestID, 1, models.ActionStop, 0, nil)
	require.NoError(t, err)
	_, err = fx.svc.Stop(ctx, raw)
	assert.ErrorIs(t, err, service.ErrNoOpenSession)
}

func TestCloseFromPendingRejected(t *testing.T) {
	ctx := context.Background()
	fx := newWorkflowFixture(t)
	requestID := fx.createRequest(t, 1)

	raw, err := fx.tokens.Issue(ctx, requestID, 1, models.ActionClose, 0, nil)
	require.NoError(t, err)

	_, err = fx.svc.Close(ctx, raw, &models.CloseRequest{CloseReasonID: 2})
	var conflict *service.StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.StatePending, conflict.CurrentState)
	assert.Contains(t, conflict.Error(), "cannot close")
}

func TestCloseRequiresReason(t *testing.T) {
	ctx := context.Background()
	fx := newWorkflowFixture(t)
	requestID := fx.createRequest(t, 1)

	raw, err := fx.tokens.Issue(ctx, requestID, 1, models.ActionClose, 0, nil)
	require.NoError(t, err)

	_, err = fx.svc.Close(ctx, raw, nil)
	assert.ErrorIs(t, err, service.ErrCloseReasonRequired)
	_, err = fx.svc.Close(ctx, raw, &models.CloseRequest{})
	assert.ErrorIs(t, err, service.ErrCloseReasonRequired)

	// The reason failures never consumed the token.
	_, err = fx.tokens.ValidateAndConsume(ctx, raw, models.ActionClose, 0)
	require.NoError(t, err)
}

func TestCloseSettlesOpenSession(t *testing.T) {
	ctx := context.Background()
	fx := newWorkflowFixture(t)
	requestID := fx.createRequest(t, 1)

	ack := fx.email.lastTokenTo(t, "erin@fieldserve.test", models.ActionAcknowledge)
	_, err := fx.svc.Acknowledge(ctx, ack)
	require.NoError(t, err)

	start := fx.email.lastTokenTo(t, "erin@fieldserve.test", models.ActionStart)
	_, err = fx.svc.Start(ctx, start)
	require.NoError(t, err)

	// Close straight from the field with the session still running.
	closeRaw := fx.email.lastTokenTo(t, "erin@fieldserve.test", models.ActionClose)
	fx.advance(45 * time.Minute)
	result, err := fx.svc.Close(ctx, closeRaw, &models.CloseRequest{CloseReasonID: 1})
	require.NoError(t, err)
	assert.Equal(t, models.StateClosed, result.State)

	open, err := fx.entries.OpenSessionFor(ctx, requestID, 1)
	require.NoError(t, err)
	assert.Nil(t, open)

	minutes, err := fx.entries.CumulativeMinutes(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, 45, minutes)
}

func TestStartReminderKeepsOriginalLinkValid(t *testing.T) {
	ctx := context.Background()
	fx := newWorkflowFixture(t)
	requestID := fx.createRequest(t, 1)

	ack := fx.email.lastTokenTo(t, "erin@fieldserve.test", models.ActionAcknowledge)
	_, err := fx.svc.Acknowledge(ctx, ack)
	require.NoError(t, err)

	// The non-expiring start link mailed at acknowledgment.
	startRaw := fx.email.lastTokenTo(t, "erin@fieldserve.test", models.ActionStart)

	fx.advance(2 * time.Hour)
	mailedBefore := len(fx.email.sent)
	require.NoError(t, fx.svc.SendStartReminder(ctx, requestID, 1))

	// The reminder is a nudge, not a new token: it carries no action link
	// that would supersede the one already in the inbox.
	require.Len(t, fx.email.sent, mailedBefore+1)
	reminder := fx.email.sent[len(fx.email.sent)-1]
	assert.Equal(t, []string{"erin@fieldserve.test"}, reminder.To)
	assert.Contains(t, reminder.Subject, "Reminder 1")
	assert.NotContains(t, reminder.Body, "/api/v1/workflow/")

	// The original link still starts work.
	result, err := fx.svc.Start(ctx, startRaw)
	require.NoError(t, err)
	assert.Equal(t, models.StateStarted, result.State)
}

func TestStartReminderRequiresAcknowledgedState(t *testing.T) {
	ctx := context.Background()
	fx := newWorkflowFixture(t)
	requestID := fx.createRequest(t, 1)

	err := fx.svc.SendStartReminder(ctx, requestID, 1)
	var conflict *service.StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.StatePending, conflict.CurrentState)
}

func TestGetStateView(t *testing.T) {
	ctx := context.Background()
	fx := newWorkflowFixture(t)
	requestID := fx.createRequest(t, 1)

	ack := fx.email.lastTokenTo(t, "erin@fieldserve.test", models.ActionAcknowledge)
	fx.advance(5 * time.Minute)
	_, err := fx.svc.Acknowledge(ctx, ack)
	require.NoError(t, err)

	fx.advance(10 * time.Minute)
	view, err := fx.svc.GetState(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, models.StateAcknowledged, view.CurrentState)
	assert.Equal(t, "Erin Ormond", view.AcknowledgedBy)
	assert.Equal(t, "10 minutes ago", view.AcknowledgedAgo)
	assert.Empty(t, view.StartedBy)

	_, err = fx.svc.GetState(ctx, 999)
	assert.ErrorIs(t, err, service.ErrRequestNotFound)
}
