package repository

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/fieldserve-io/fieldserve/internal/models"
)

// MemoryTimeEntryRepository is an in-memory time entry store for tests.
type MemoryTimeEntryRepository struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*models.TimeEntry
}

// NewMemoryTimeEntryRepository creates an empty in-memory store
func NewMemoryTimeEntryRepository() *MemoryTimeEntryRepository {
	return &MemoryTimeEntryRepository{entries: make(map[int64]*models.TimeEntry)}
}

// OpenSession inserts an open entry unless one is already open for the pair.
func (r *MemoryTimeEntryRepository) OpenSession(ctx context.Context, serviceRequestID, technicianID int, startTime time.Time) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.ServiceRequestID == serviceRequestID && e.TechnicianID == technicianID && !e.EndTime.Valid {
			return 0, false, nil
		}
	}

	r.nextID++
	r.entries[r.nextID] = &models.TimeEntry{
		ID:               r.nextID,
		ServiceRequestID: serviceRequestID,
		TechnicianID:     technicianID,
		StartTime:        startTime,
		Billable:         true,
		OnSite:           true,
		CreatedAt:        startTime,
	}
	return r.nextID, true, nil
}

// CloseSession sets the end time and duration on a still-open entry.
func (r *MemoryTimeEntryRepository) CloseSession(ctx context.Context, id int64, endTime time.Time, durationMinutes int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.EndTime.Valid {
		return false, nil
	}
	e.EndTime = sql.NullTime{Time: endTime, Valid: true}
	e.DurationMinutes = sql.NullInt64{Int64: int64(durationMinutes), Valid: true}
	return true, nil
}

// GetByID retrieves a time entry, or nil when absent.
func (r *MemoryTimeEntryRepository) GetByID(ctx context.Context, id int64) (*models.TimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, nil
	}
	copied := *e
	return &copied, nil
}

// FindOpenSession returns the open entry for a (request, technician) pair.
func (r *MemoryTimeEntryRepository) FindOpenSession(ctx context.Context, serviceRequestID, technicianID int) (*models.TimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.ServiceRequestID == serviceRequestID && e.TechnicianID == technicianID && !e.EndTime.Valid {
			copied := *e
			return &copied, nil
		}
	}
	return nil, nil
}

// CumulativeMinutes sums the durations of all closed sessions.
func (r *MemoryTimeEntryRepository) CumulativeMinutes(ctx context.Context, serviceRequestID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int
	for _, e := range r.entries {
		if e.ServiceRequestID == serviceRequestID && e.EndTime.Valid && e.DurationMinutes.Valid {
			total += int(e.DurationMinutes.Int64)
		}
	}
	return total, nil
}
