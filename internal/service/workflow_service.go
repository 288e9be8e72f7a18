package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fieldserve-io/fieldserve/internal/models"
	"github.com/fieldserve-io/fieldserve/internal/notifications"
)

type workflowStateStore interface {
	Create(ctx context.Context, serviceRequestID int, nextActionAt time.Time, now time.Time) error
	GetByRequestID(ctx context.Context, serviceRequestID int) (*models.WorkflowState, error)
	Acknowledge(ctx context.Context, serviceRequestID, employeeID int, nextActionAt time.Time, now time.Time) (bool, error)
	Start(ctx context.Context, serviceRequestID, employeeID int, now time.Time) (bool, error)
	Close(ctx context.Context, serviceRequestID, employeeID int, now time.Time) (bool, error)
	ClearSchedule(ctx context.Context, serviceRequestID int, now time.Time) error
}

type requestStore interface {
	GetByID(ctx context.Context, id int) (*models.ServiceRequest, error)
	Create(ctx context.Context, req *models.ServiceRequest) (int64, error)
	SetAcknowledged(ctx context.Context, id, technicianID int, now time.Time) error
	SetStatus(ctx context.Context, id int, status string, now time.Time) error
	SetCompleted(ctx context.Context, id int, close *models.CloseRequest, cumulativeMinutes int, now time.Time) error
}

type employeeGetter interface {
	GetByID(ctx context.Context, id int) (*models.Employee, error)
}

type historyRecorder interface {
	Record(ctx context.Context, insert models.RequestHistoryInsert) error
}

type eventPublisher interface {
	Dispatch(ctx context.Context, ev notifications.Event)
}

type updateBroadcaster interface {
	BroadcastServiceRequestUpdate(serviceRequestID int, changeType string, payload any)
}

type requestNumberGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// WorkflowDeps wires the workflow service's collaborators. Events and
// Broadcast may be nil in tests and trimmed deployments.
type WorkflowDeps struct {
	States      workflowStateStore
	Requests    requestStore
	Employees   employeeGetter
	Tokens      *TokenService
	TimeEntries *TimeEntryService
	History     historyRecorder
	Events      eventPublisher
	Broadcast   updateBroadcaster
	Email       notifications.EmailSender
	Numbers     requestNumberGenerator
	// BaseURL prefixes the action links embedded in emails.
	BaseURL string
	// ReminderDelay is how soon after creation/acknowledgment the first
	// escalation reminder fires.
	ReminderDelay time.Duration
	// AckTokenTTL bounds the validity of acknowledgment links.
	AckTokenTTL time.Duration
	Logger      *log.Logger
}

// WorkflowService owns the canonical request lifecycle:
// pending -> acknowledged -> started -> closed, with the stop/restart
// work-session loop inside the started phase. Every transition is a
// conditional update at the storage layer, so the state machine holds
// across concurrent callers and multiple server instances.
type WorkflowService struct {
	deps WorkflowDeps
	now  func() time.Time
}

// NewWorkflowService creates a workflow service
func NewWorkflowService(deps WorkflowDeps) *WorkflowService {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.ReminderDelay <= 0 {
		deps.ReminderDelay = 2 * time.Minute
	}
	if deps.AckTokenTTL <= 0 {
		deps.AckTokenTTL = 24 * time.Hour
	}
	return &WorkflowService{deps: deps, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *WorkflowService) WithClock(now func() time.Time) *WorkflowService {
	s.now = now
	return s
}

// TransitionResult reports a successful workflow transition.
type TransitionResult struct {
	ServiceRequestID int
	State            string
	ActorID          int
	ActorName        string
	// Session is set on stop transitions.
	Session *SessionSummary
}

// CreateRequest inserts a new service request, generates its request
// number, initializes the workflow companion row and notifies the
// acknowledgment recipients with fresh action tokens.
func (s *WorkflowService) CreateRequest(ctx context.Context, req *models.ServiceRequest, recipientIDs []int) (int, error) {
	now := s.now()

	number, err := s.deps.Numbers.Generate(ctx)
	if err != nil {
		return 0, fmt.Errorf("generate request number: %w", err)
	}
	req.RequestNumber = number
	req.CreatedAt = now

	id64, err := s.deps.Requests.Create(ctx, req)
	if err != nil {
		return 0, err
	}
	requestID := int(id64)
	req.ID = requestID

	if err := s.deps.States.Create(ctx, requestID, now.Add(s.deps.ReminderDelay), now); err != nil {
		return 0, err
	}

	if err := s.issueAckBatch(ctx, req, recipientIDs, 0); err != nil {
		return 0, err
	}

	s.recordHistory(ctx, requestID, models.HistoryTypeCreated,
		fmt.Sprintf("%s%%%%%s", number, req.Title), 0, now)

	s.publish(ctx, req, notifications.Event{
		Type:     notifications.EventRequestCreated,
		Severity: models.SeverityMedium,
		Subject:  fmt.Sprintf("New service request #%s", number),
		Body:     req.Title,
	})
	s.broadcast(requestID, "created", map[string]any{"request_number": number})

	return requestID, nil
}

// IssueAckBatch issues acknowledgment tokens for a retry attempt and
// emails the action links. Used on creation (attempt 0) and by the
// escalation sweeps (attempt N+1); issuing supersedes every earlier
// unused acknowledgment token for the request.
func (s *WorkflowService) IssueAckBatch(ctx context.Context, serviceRequestID int, recipientIDs []int, retryAttempt int) error {
	req, err := s.deps.Requests.GetByID(ctx, serviceRequestID)
	if err != nil {
		return err
	}
	if req == nil {
		return ErrRequestNotFound
	}
	return s.issueAckBatch(ctx, req, recipientIDs, retryAttempt)
}

func (s *WorkflowService) issueAckBatch(ctx context.Context, req *models.ServiceRequest, recipientIDs []int, retryAttempt int) error {
	expiresAt := s.now().Add(s.deps.AckTokenTTL)
	issued, err := s.deps.Tokens.IssueBatch(ctx, req.ID, recipientIDs, models.ActionAcknowledge, retryAttempt, &expiresAt)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Service request #%s needs acknowledgment", req.RequestNumber)
	if retryAttempt > 0 {
		subject = fmt.Sprintf("Reminder %d: service request #%s needs acknowledgment", retryAttempt, req.RequestNumber)
	}
	for _, token := range issued {
		s.sendActionLink(ctx, token.EmployeeID, subject, req, models.ActionAcknowledge, token.Raw)
	}
	return nil
}

// SendStartReminder emails the acknowledging employee that work has not
// started. The start link issued at acknowledgment never expires, so the
// reminder points back at it; minting a replacement here would supersede
// the link already sitting in the inbox.
func (s *WorkflowService) SendStartReminder(ctx context.Context, serviceRequestID, reminderCount int) error {
	state, err := s.deps.States.GetByRequestID(ctx, serviceRequestID)
	if err != nil {
		return err
	}
	if state == nil {
		return ErrRequestNotFound
	}
	if state.CurrentState != models.StateAcknowledged || !state.AcknowledgedBy.Valid {
		return &StateConflictError{Action: "start_reminder", CurrentState: state.CurrentState}
	}
	employeeID := int(state.AcknowledgedBy.Int64)

	req, err := s.deps.Requests.GetByID(ctx, serviceRequestID)
	if err != nil {
		return err
	}
	if req == nil {
		return ErrRequestNotFound
	}

	s.sendPlainEmail(ctx, employeeID,
		fmt.Sprintf("Reminder %d: request #%s is waiting for work to start", reminderCount, req.RequestNumber),
		fmt.Sprintf("Request #%s: %s\n\nWork has not started yet. Use the start link from your acknowledgment email once on site.\n",
			req.RequestNumber, req.Title))
	return nil
}

// Acknowledge claims a pending request with a single-use acknowledgment
// token. Repeated clicks on a stale link yield a clear "already
// acknowledged by X" conflict rather than a generic failure.
func (s *WorkflowService) Acknowledge(ctx context.Context, rawToken string) (*TransitionResult, error) {
	token, err := s.deps.Tokens.ValidateAndConsume(ctx, rawToken, models.ActionAcknowledge, 0)
	if err != nil {
		if errors.Is(err, ErrTokenUsed) || errors.Is(err, ErrTokenExpired) {
			// The usual cause is that someone else got there first; say so.
			if conflict := s.lookupConflict(ctx, rawToken, models.ActionAcknowledge); conflict != nil {
				return nil, conflict
			}
		}
		return nil, err
	}

	now := s.now()
	requestID := token.ServiceRequestID

	ok, err := s.deps.States.Acknowledge(ctx, requestID, token.EmployeeID, now.Add(s.deps.ReminderDelay), now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.stateConflict(ctx, requestID, "acknowledge")
	}

	if err := s.deps.Requests.SetAcknowledged(ctx, requestID, token.EmployeeID, now); err != nil {
		return nil, err
	}

	// Kill the other recipients' acknowledgment links.
	if err := s.deps.Tokens.ExpireAction(ctx, requestID, models.ActionAcknowledge); err != nil {
		s.deps.Logger.Printf("workflow: expire ack tokens for request %d: %v", requestID, err)
	}

	req, employee := s.loadRequestAndEmployee(ctx, requestID, token.EmployeeID)
	actorName := s.employeeName(employee, token.EmployeeID)

	// The acknowledging employee gets a non-expiring start link: the next
	// step is theirs alone.
	startRaw, err := s.deps.Tokens.Issue(ctx, requestID, token.EmployeeID, models.ActionStart, 0, nil)
	if err != nil {
		return nil, err
	}
	if req != nil {
		s.sendActionLink(ctx, token.EmployeeID,
			fmt.Sprintf("You acknowledged request #%s — start when on site", req.RequestNumber),
			req, models.ActionStart, startRaw)
	}

	s.recordHistory(ctx, requestID, models.HistoryTypeAcknowledged,
		"%%"+actorName, token.EmployeeID, now)
	s.publish(ctx, req, notifications.Event{
		Type:             notifications.EventRequestAcknowledged,
		Severity:         models.SeverityLow,
		ServiceRequestID: requestID,
		Subject:          fmt.Sprintf("Request %s acknowledged", s.requestNumber(req)),
		Body:             fmt.Sprintf("Acknowledged by %s", actorName),
	})
	s.broadcast(requestID, "acknowledged", map[string]any{"employee_id": token.EmployeeID})

	return &TransitionResult{
		ServiceRequestID: requestID,
		State:            models.StateAcknowledged,
		ActorID:          token.EmployeeID,
		ActorName:        actorName,
	}, nil
}

// Start begins (or resumes) work with a start token. The first start moves
// the workflow from acknowledged to started, opens a time entry and issues
// the non-expiring close and stop links; a later start after a stop only
// reopens a work session within the started phase.
func (s *WorkflowService) Start(ctx context.Context, rawToken string) (*TransitionResult, error) {
	token, err := s.deps.Tokens.ValidateAndConsume(ctx, rawToken, models.ActionStart, 0)
	if err != nil {
		return nil, err
	}

	now := s.now()
	requestID := token.ServiceRequestID

	state, err := s.deps.States.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrRequestNotFound
	}

	switch state.CurrentState {
	case models.StateAcknowledged:
		if !state.AcknowledgedBy.Valid || state.AcknowledgedBy.Int64 != int64(token.EmployeeID) {
			return nil, ErrWrongEmployee
		}
		return s.firstStart(ctx, token, now)
	case models.StateStarted:
		if !state.StartedBy.Valid || state.StartedBy.Int64 != int64(token.EmployeeID) {
			return nil, ErrWrongEmployee
		}
		return s.resumeStart(ctx, token, now)
	default:
		return nil, &StateConflictError{Action: "start", CurrentState: state.CurrentState}
	}
}

func (s *WorkflowService) firstStart(ctx context.Context, token *models.WorkflowToken, now time.Time) (*TransitionResult, error) {
	requestID := token.ServiceRequestID

	ok, err := s.deps.States.Start(ctx, requestID, token.EmployeeID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.stateConflict(ctx, requestID, "start")
	}

	if _, err := s.deps.TimeEntries.StartSession(ctx, requestID, token.EmployeeID, now); err != nil {
		return nil, err
	}
	if err := s.deps.Requests.SetStatus(ctx, requestID, models.RequestStatusInProgress, now); err != nil {
		return nil, err
	}

	req, employee := s.loadRequestAndEmployee(ctx, requestID, token.EmployeeID)
	actorName := s.employeeName(employee, token.EmployeeID)

	if err := s.issueWorkLinks(ctx, req, token.EmployeeID, true); err != nil {
		return nil, err
	}

	s.recordHistory(ctx, requestID, models.HistoryTypeWorkStarted, "%%"+actorName, token.EmployeeID, now)
	s.publish(ctx, req, notifications.Event{
		Type:             notifications.EventWorkStarted,
		Severity:         models.SeverityLow,
		ServiceRequestID: requestID,
		Subject:          fmt.Sprintf("Work started on request %s", s.requestNumber(req)),
		Body:             fmt.Sprintf("Started by %s", actorName),
	})
	s.broadcast(requestID, "started", map[string]any{"employee_id": token.EmployeeID})

	return &TransitionResult{
		ServiceRequestID: requestID,
		State:            models.StateStarted,
		ActorID:          token.EmployeeID,
		ActorName:        actorName,
	}, nil
}

func (s *WorkflowService) resumeStart(ctx context.Context, token *models.WorkflowToken, now time.Time) (*TransitionResult, error) {
	requestID := token.ServiceRequestID

	open, err := s.deps.TimeEntries.OpenSessionFor(ctx, requestID, token.EmployeeID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, &StateConflictError{Action: "start", CurrentState: models.StateStarted}
	}

	if _, err := s.deps.TimeEntries.StartSession(ctx, requestID, token.EmployeeID, now); err != nil {
		return nil, err
	}
	if err := s.deps.Requests.SetStatus(ctx, requestID, models.RequestStatusInProgress, now); err != nil {
		return nil, err
	}

	req, employee := s.loadRequestAndEmployee(ctx, requestID, token.EmployeeID)
	actorName := s.employeeName(employee, token.EmployeeID)

	// A resume only needs a fresh stop link; the close link from the
	// first start never expires.
	if err := s.issueWorkLinks(ctx, req, token.EmployeeID, false); err != nil {
		return nil, err
	}

	s.recordHistory(ctx, requestID, models.HistoryTypeWorkStarted, "%%"+actorName, token.EmployeeID, now)
	s.broadcast(requestID, "resumed", map[string]any{"employee_id": token.EmployeeID})

	return &TransitionResult{
		ServiceRequestID: requestID,
		State:            models.StateStarted,
		ActorID:          token.EmployeeID,
		ActorName:        actorName,
	}, nil
}

// Stop closes the open work session, reverts the display status to
// acknowledged while the workflow stays within the started phase, and
// issues a fresh start link so work can resume later.
func (s *WorkflowService) Stop(ctx context.Context, rawToken string) (*TransitionResult, error) {
	token, err := s.deps.Tokens.ValidateAndConsume(ctx, rawToken, models.ActionStop, 0)
	if err != nil {
		return nil, err
	}

	now := s.now()
	requestID := token.ServiceRequestID

	state, err := s.deps.States.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrRequestNotFound
	}
	if state.CurrentState != models.StateStarted {
		return nil, &StateConflictError{Action: "stop", CurrentState: state.CurrentState}
	}

	open, err := s.deps.TimeEntries.OpenSessionFor(ctx, requestID, token.EmployeeID)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return nil, ErrNoOpenSession
	}

	summary, err := s.deps.TimeEntries.StopSession(ctx, open.ID, now)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Requests.SetStatus(ctx, requestID, models.RequestStatusAcknowledged, now); err != nil {
		return nil, err
	}

	req, employee := s.loadRequestAndEmployee(ctx, requestID, token.EmployeeID)
	actorName := s.employeeName(employee, token.EmployeeID)

	startRaw, err := s.deps.Tokens.Issue(ctx, requestID, token.EmployeeID, models.ActionStart, 0, nil)
	if err != nil {
		return nil, err
	}
	if req != nil {
		s.sendActionLink(ctx, token.EmployeeID,
			fmt.Sprintf("Work paused on request #%s — resume anytime", req.RequestNumber),
			req, models.ActionStart, startRaw)
	}

	s.recordHistory(ctx, requestID, models.HistoryTypeWorkStopped,
		fmt.Sprintf("%%%%%s%%%%%d", actorName, summary.DurationMinutes), token.EmployeeID, now)
	s.publish(ctx, req, notifications.Event{
		Type:             notifications.EventWorkStopped,
		Severity:         models.SeverityLow,
		ServiceRequestID: requestID,
		Subject:          fmt.Sprintf("Work paused on request %s", s.requestNumber(req)),
		Body:             fmt.Sprintf("%d minutes this session, %d total", summary.DurationMinutes, summary.CumulativeMinutes),
	})
	s.broadcast(requestID, "stopped", map[string]any{
		"employee_id":        token.EmployeeID,
		"session_minutes":    summary.DurationMinutes,
		"cumulative_minutes": summary.CumulativeMinutes,
	})

	return &TransitionResult{
		ServiceRequestID: requestID,
		State:            models.StateStarted,
		ActorID:          token.EmployeeID,
		ActorName:        actorName,
		Session:          summary,
	}, nil
}

// Close completes a started request. A closure reason is mandatory; the
// transition is terminal and expires every outstanding token.
func (s *WorkflowService) Close(ctx context.Context, rawToken string, closeReq *models.CloseRequest) (*TransitionResult, error) {
	if closeReq == nil || closeReq.CloseReasonID == 0 {
		return nil, ErrCloseReasonRequired
	}

	token, err := s.deps.Tokens.ValidateAndConsume(ctx, rawToken, models.ActionClose, 0)
	if err != nil {
		return nil, err
	}

	now := s.now()
	requestID := token.ServiceRequestID

	// A technician closing straight from the field may still have a
	// running session; settle it before completing.
	if open, err := s.deps.TimeEntries.OpenSessionFor(ctx, requestID, token.EmployeeID); err == nil && open != nil {
		if _, err := s.deps.TimeEntries.StopSession(ctx, open.ID, now); err != nil {
			return nil, err
		}
	}

	ok, err := s.deps.States.Close(ctx, requestID, token.EmployeeID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.stateConflict(ctx, requestID, "close")
	}

	cumulative, err := s.deps.TimeEntries.CumulativeMinutes(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Requests.SetCompleted(ctx, requestID, closeReq, cumulative, now); err != nil {
		return nil, err
	}

	if err := s.deps.Tokens.ExpireAll(ctx, requestID); err != nil {
		s.deps.Logger.Printf("workflow: expire tokens for closed request %d: %v", requestID, err)
	}

	req, employee := s.loadRequestAndEmployee(ctx, requestID, token.EmployeeID)
	actorName := s.employeeName(employee, token.EmployeeID)

	s.recordHistory(ctx, requestID, models.HistoryTypeClosed,
		fmt.Sprintf("%%%%%s%%%%%d%%%%%s", actorName, closeReq.CloseReasonID, closeReq.Resolution),
		token.EmployeeID, now)
	s.publish(ctx, req, notifications.Event{
		Type:             notifications.EventRequestClosed,
		Severity:         models.SeverityLow,
		ServiceRequestID: requestID,
		Subject:          fmt.Sprintf("Request %s completed", s.requestNumber(req)),
		Body:             fmt.Sprintf("Closed by %s (%d min total)", actorName, cumulative),
	})
	s.broadcast(requestID, "closed", map[string]any{"employee_id": token.EmployeeID})

	return &TransitionResult{
		ServiceRequestID: requestID,
		State:            models.StateClosed,
		ActorID:          token.EmployeeID,
		ActorName:        actorName,
	}, nil
}

// GetState returns the workflow state joined with actor names.
func (s *WorkflowService) GetState(ctx context.Context, serviceRequestID int) (*WorkflowStateView, error) {
	state, err := s.deps.States.GetByRequestID(ctx, serviceRequestID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrRequestNotFound
	}
	return s.buildStateView(ctx, state), nil
}

// stateConflict loads the current state to produce a deterministic,
// human-readable conflict naming where the workflow actually is.
func (s *WorkflowService) stateConflict(ctx context.Context, serviceRequestID int, action string) error {
	state, err := s.deps.States.GetByRequestID(ctx, serviceRequestID)
	if err != nil {
		return err
	}
	if state == nil {
		return ErrRequestNotFound
	}

	conflict := &StateConflictError{Action: action, CurrentState: state.CurrentState}
	if action == "acknowledge" && state.CurrentState != models.StatePending && state.AcknowledgedBy.Valid {
		conflict.ActorName = s.resolveName(ctx, int(state.AcknowledgedBy.Int64))
	}
	return conflict
}

// lookupConflict resolves a consumed or superseded acknowledgment token
// back to its request so the caller learns who acted first. Returns nil
// when the request is still pending (the token failure stands on its own).
func (s *WorkflowService) lookupConflict(ctx context.Context, rawToken, action string) error {
	requestID, ok := s.deps.Tokens.PeekRequestID(ctx, rawToken)
	if !ok {
		return nil
	}
	state, err := s.deps.States.GetByRequestID(ctx, requestID)
	if err != nil || state == nil {
		return nil
	}
	if state.CurrentState == models.StatePending {
		return nil
	}
	conflict := &StateConflictError{Action: action, CurrentState: state.CurrentState}
	if state.AcknowledgedBy.Valid {
		conflict.ActorName = s.resolveName(ctx, int(state.AcknowledgedBy.Int64))
	}
	return conflict
}

func (s *WorkflowService) issueWorkLinks(ctx context.Context, req *models.ServiceRequest, employeeID int, withClose bool) error {
	if req == nil {
		return ErrRequestNotFound
	}

	stopRaw, err := s.deps.Tokens.Issue(ctx, req.ID, employeeID, models.ActionStop, 0, nil)
	if err != nil {
		return err
	}
	s.sendActionLink(ctx, employeeID,
		fmt.Sprintf("Stop link for request #%s", req.RequestNumber),
		req, models.ActionStop, stopRaw)

	if withClose {
		closeRaw, err := s.deps.Tokens.Issue(ctx, req.ID, employeeID, models.ActionClose, 0, nil)
		if err != nil {
			return err
		}
		s.sendActionLink(ctx, employeeID,
			fmt.Sprintf("Close link for request #%s", req.RequestNumber),
			req, models.ActionClose, closeRaw)
	}
	return nil
}

// sendActionLink emails one action link. Best effort: a transport failure
// is logged and never fails the transition that produced the token.
func (s *WorkflowService) sendActionLink(ctx context.Context, employeeID int, subject string, req *models.ServiceRequest, action, rawToken string) {
	if s.deps.Email == nil {
		return
	}
	employee, err := s.deps.Employees.GetByID(ctx, employeeID)
	if err != nil || employee == nil || employee.Email == "" {
		s.deps.Logger.Printf("workflow: no email address for employee %d", employeeID)
		return
	}

	link := fmt.Sprintf("%s/api/v1/workflow/%s/%s", strings.TrimRight(s.deps.BaseURL, "/"), action, rawToken)
	body := fmt.Sprintf("Request #%s: %s\n\n%s\n", req.RequestNumber, req.Title, link)
	err = s.deps.Email.Send(ctx, notifications.EmailMessage{
		To:      []string{employee.Email},
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		s.deps.Logger.Printf("workflow: send %s link to employee %d: %v", action, employeeID, err)
	}
}

// sendPlainEmail mails a notification with no action link. Best effort,
// same as sendActionLink.
func (s *WorkflowService) sendPlainEmail(ctx context.Context, employeeID int, subject, body string) {
	if s.deps.Email == nil {
		return
	}
	employee, err := s.deps.Employees.GetByID(ctx, employeeID)
	if err != nil || employee == nil || employee.Email == "" {
		s.deps.Logger.Printf("workflow: no email address for employee %d", employeeID)
		return
	}
	err = s.deps.Email.Send(ctx, notifications.EmailMessage{
		To:      []string{employee.Email},
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		s.deps.Logger.Printf("workflow: send reminder to employee %d: %v", employeeID, err)
	}
}

func (s *WorkflowService) recordHistory(ctx context.Context, serviceRequestID int, historyType, name string, createdBy int, at time.Time) {
	if s.deps.History == nil {
		return
	}
	err := s.deps.History.Record(ctx, models.RequestHistoryInsert{
		ServiceRequestID: serviceRequestID,
		HistoryType:      historyType,
		Name:             name,
		CreatedBy:        createdBy,
		CreatedAt:        at,
	})
	if err != nil {
		s.deps.Logger.Printf("workflow: record history for request %d: %v", serviceRequestID, err)
	}
}

func (s *WorkflowService) publish(ctx context.Context, req *models.ServiceRequest, ev notifications.Event) {
	if s.deps.Events == nil {
		return
	}
	if req != nil {
		ev.BusinessID = req.BusinessID
		if req.LocationID.Valid {
			ev.LocationID = int(req.LocationID.Int64)
		}
		if ev.ServiceRequestID == 0 {
			ev.ServiceRequestID = req.ID
		}
	}
	ev.OccurredAt = s.now()
	s.deps.Events.Dispatch(ctx, ev)
}

func (s *WorkflowService) broadcast(serviceRequestID int, changeType string, payload any) {
	if s.deps.Broadcast == nil {
		return
	}
	s.deps.Broadcast.BroadcastServiceRequestUpdate(serviceRequestID, changeType, payload)
}

func (s *WorkflowService) loadRequestAndEmployee(ctx context.Context, requestID, employeeID int) (*models.ServiceRequest, *models.Employee) {
	req, err := s.deps.Requests.GetByID(ctx, requestID)
	if err != nil {
		s.deps.Logger.Printf("workflow: load request %d: %v", requestID, err)
	}
	employee, err := s.deps.Employees.GetByID(ctx, employeeID)
	if err != nil {
		s.deps.Logger.Printf("workflow: load employee %d: %v", employeeID, err)
	}
	return req, employee
}

func (s *WorkflowService) employeeName(employee *models.Employee, fallbackID int) string {
	if employee != nil {
		return employee.FullName()
	}
	return fmt.Sprintf("employee %d", fallbackID)
}

func (s *WorkflowService) resolveName(ctx context.Context, employeeID int) string {
	employee, err := s.deps.Employees.GetByID(ctx, employeeID)
	if err != nil || employee == nil {
		return fmt.Sprintf("employee %d", employeeID)
	}
	return employee.FullName()
}

func (s *WorkflowService) requestNumber(req *models.ServiceRequest) string {
	if req == nil {
		return "?"
	}
	return "#" + req.RequestNumber
}
