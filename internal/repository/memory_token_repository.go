package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/fieldserve-io/fieldserve/internal/models"
)

// MemoryTokenRepository is an in-memory token store for tests and demo
// mode. It mirrors the conditional-update semantics of the SQL
// implementation under a mutex.
type MemoryTokenRepository struct {
	mu     sync.Mutex
	nextID int64
	tokens map[int64]*models.WorkflowToken
}

// NewMemoryTokenRepository creates an empty in-memory token repository
func NewMemoryTokenRepository() *MemoryTokenRepository {
	return &MemoryTokenRepository{tokens: make(map[int64]*models.WorkflowToken)}
}

// Create inserts a new workflow token
func (r *MemoryTokenRepository) Create(ctx context.Context, token *models.WorkflowToken) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	stored := *token
	stored.ID = r.nextID
	r.tokens[stored.ID] = &stored
	return stored.ID, nil
}

// GetByPrefix retrieves tokens matching a prefix, newest first.
func (r *MemoryTokenRepository) GetByPrefix(ctx context.Context, prefix string) ([]*models.WorkflowToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.WorkflowToken
	for _, t := range r.tokens {
		if t.Prefix == prefix {
			copied := *t
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Consume marks a token used if still unused.
func (r *MemoryTokenRepository) Consume(ctx context.Context, id int64, usedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[id]
	if !ok || t.UsedAt.Valid {
		return false, nil
	}
	t.UsedAt = sql.NullTime{Time: usedAt, Valid: true}
	return true, nil
}

// ExpireActive expires unused, unexpired tokens for a (request, action) pair.
func (r *MemoryTokenRepository) ExpireActive(ctx context.Context, serviceRequestID int, action string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, t := range r.tokens {
		if t.ServiceRequestID != serviceRequestID || t.Action != action {
			continue
		}
		if t.UsedAt.Valid || t.IsExpired(now) {
			continue
		}
		t.ExpiresAt = sql.NullTime{Time: now, Valid: true}
		n++
	}
	return n, nil
}

// NotifiedEmployeeIDs returns the distinct employees that ever received a
// token for a (request, action) pair, sorted ascending.
func (r *MemoryTokenRepository) NotifiedEmployeeIDs(ctx context.Context, serviceRequestID int, action string) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[int]bool)
	for _, t := range r.tokens {
		if t.ServiceRequestID == serviceRequestID && t.Action == action {
			seen[t.EmployeeID] = true
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// ExpireAllForRequest expires every outstanding token for a request.
func (r *MemoryTokenRepository) ExpireAllForRequest(ctx context.Context, serviceRequestID int, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, t := range r.tokens {
		if t.ServiceRequestID != serviceRequestID {
			continue
		}
		if t.UsedAt.Valid || t.IsExpired(now) {
			continue
		}
		t.ExpiresAt = sql.NullTime{Time: now, Valid: true}
		n++
	}
	return n, nil
}
