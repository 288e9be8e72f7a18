package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fieldserve-io/fieldserve/internal/models"
)

type timeEntryStore interface {
	OpenSession(ctx context.Context, serviceRequestID, technicianID int, startTime time.Time) (int64, bool, error)
	CloseSession(ctx context.Context, id int64, endTime time.Time, durationMinutes int) (bool, error)
	GetByID(ctx context.Context, id int64) (*models.TimeEntry, error)
	FindOpenSession(ctx context.Context, serviceRequestID, technicianID int) (*models.TimeEntry, error)
	CumulativeMinutes(ctx context.Context, serviceRequestID int) (int, error)
}

// SessionSummary reports the durations computed when a session stops.
type SessionSummary struct {
	TimeEntryID       int64
	DurationMinutes   int
	CumulativeMinutes int
}

// TimeEntryService records start/stop work sessions once a request enters
// the started phase.
type TimeEntryService struct {
	store timeEntryStore
}

// NewTimeEntryService creates a new time entry service
func NewTimeEntryService(store timeEntryStore) *TimeEntryService {
	return &TimeEntryService{store: store}
}

// StartSession opens a work session. Fails with ErrSessionConflict when an
// open session already exists for the (request, technician) pair; the
// storage layer enforces this, not a read-then-write check.
func (s *TimeEntryService) StartSession(ctx context.Context, serviceRequestID, technicianID int, startTime time.Time) (int64, error) {
	id, ok, err := s.store.OpenSession(ctx, serviceRequestID, technicianID, startTime)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrSessionConflict
	}
	return id, nil
}

// StopSession closes a session and computes its duration in whole minutes
// (rounded) plus the cumulative total across all closed sessions for the
// request. The cumulative figure is recomputed from scratch every time to
// avoid drift from partial updates.
func (s *TimeEntryService) StopSession(ctx context.Context, timeEntryID int64, endTime time.Time) (*SessionSummary, error) {
	entry, err := s.store.GetByID(ctx, timeEntryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrNoOpenSession
	}
	if !entry.Open() {
		return nil, ErrNoOpenSession
	}

	duration := RoundToMinutes(entry.StartTime, endTime)
	closed, err := s.store.CloseSession(ctx, timeEntryID, endTime, duration)
	if err != nil {
		return nil, err
	}
	if !closed {
		return nil, ErrNoOpenSession
	}

	cumulative, err := s.store.CumulativeMinutes(ctx, entry.ServiceRequestID)
	if err != nil {
		return nil, fmt.Errorf("cumulative minutes: %w", err)
	}

	return &SessionSummary{
		TimeEntryID:       timeEntryID,
		DurationMinutes:   duration,
		CumulativeMinutes: cumulative,
	}, nil
}

// OpenSessionFor returns the currently open session for a (request,
// technician) pair, or nil.
func (s *TimeEntryService) OpenSessionFor(ctx context.Context, serviceRequestID, technicianID int) (*models.TimeEntry, error) {
	return s.store.FindOpenSession(ctx, serviceRequestID, technicianID)
}

// CumulativeMinutes sums all closed sessions for a request.
func (s *TimeEntryService) CumulativeMinutes(ctx context.Context, serviceRequestID int) (int, error) {
	return s.store.CumulativeMinutes(ctx, serviceRequestID)
}

// RoundToMinutes computes the whole-minute duration between two instants,
// rounding half up.
func RoundToMinutes(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(math.Round(end.Sub(start).Minutes()))
}
