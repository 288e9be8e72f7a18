package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldserve-io/fieldserve/internal/database"
	"github.com/fieldserve-io/fieldserve/internal/models"
)

// TokenRepository handles database operations for workflow action tokens.
// Token rows are append-only: consumption and supersession are expressed
// as single conditional updates, never read-modify-write.
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new workflow token repository
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create inserts a new workflow token
func (r *TokenRepository) Create(ctx context.Context, token *models.WorkflowToken) (int64, error) {
	query := database.ConvertPlaceholders(`
		INSERT INTO workflow_tokens (
			service_request_id, employee_id, action, retry_attempt,
			prefix, token_hash, expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	id, _, err := database.InsertReturningID(ctx, r.db, query,
		token.ServiceRequestID,
		token.EmployeeID,
		token.Action,
		token.RetryAttempt,
		token.Prefix,
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert token: %w", err)
	}
	return id, nil
}

// GetByPrefix retrieves unused tokens matching a prefix (for verification).
// Expired tokens are returned too so validation can report the precise
// failure reason.
func (r *TokenRepository) GetByPrefix(ctx context.Context, prefix string) ([]*models.WorkflowToken, error) {
	query := database.ConvertPlaceholders(`
		SELECT id, service_request_id, employee_id, action, retry_attempt,
		       prefix, token_hash, expires_at, used_at, created_at
		FROM workflow_tokens
		WHERE prefix = ?
		ORDER BY created_at DESC
	`)

	rows, err := r.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.WorkflowToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}

	return tokens, rows.Err()
}

// Consume marks a token used if and only if it is still unused. The
// conditional update is the serialization point: exactly one concurrent
// caller observes a row change, all others get false.
func (r *TokenRepository) Consume(ctx context.Context, id int64, usedAt time.Time) (bool, error) {
	query := database.ConvertPlaceholders(`
		UPDATE workflow_tokens
		SET used_at = ?
		WHERE id = ? AND used_at IS NULL
	`)

	result, err := r.db.ExecContext(ctx, query, usedAt, id)
	if err != nil {
		return false, fmt.Errorf("consume token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume token: %w", err)
	}
	return rows > 0, nil
}

// ExpireActive immediately expires every unused, not-yet-expired token for
// a (service_request, action) pair. Called before issuing a fresh batch so
// stale reminder emails cannot be replayed, and on terminal transitions.
func (r *TokenRepository) ExpireActive(ctx context.Context, serviceRequestID int, action string, now time.Time) (int64, error) {
	query := database.ConvertPlaceholders(`
		UPDATE workflow_tokens
		SET expires_at = ?
		WHERE service_request_id = ? AND action = ? AND used_at IS NULL
		  AND (expires_at IS NULL OR expires_at > ?)
	`)

	result, err := r.db.ExecContext(ctx, query, now, serviceRequestID, action, now)
	if err != nil {
		return 0, fmt.Errorf("expire tokens: %w", err)
	}
	return result.RowsAffected()
}

// ExpireAllForRequest expires every outstanding token for a request,
// regardless of action. Used when the workflow reaches its terminal state.
func (r *TokenRepository) ExpireAllForRequest(ctx context.Context, serviceRequestID int, now time.Time) (int64, error) {
	query := database.ConvertPlaceholders(`
		UPDATE workflow_tokens
		SET expires_at = ?
		WHERE service_request_id = ? AND used_at IS NULL
		  AND (expires_at IS NULL OR expires_at > ?)
	`)

	result, err := r.db.ExecContext(ctx, query, now, serviceRequestID, now)
	if err != nil {
		return 0, fmt.Errorf("expire tokens: %w", err)
	}
	return result.RowsAffected()
}

// NotifiedEmployeeIDs returns the distinct employees that ever received a
// token for a (service_request, action) pair. The escalation sweeps use it
// to re-target the originally notified audience.
func (r *TokenRepository) NotifiedEmployeeIDs(ctx context.Context, serviceRequestID int, action string) ([]int, error) {
	query := database.ConvertPlaceholders(`
		SELECT DISTINCT employee_id
		FROM workflow_tokens
		WHERE service_request_id = ? AND action = ?
		ORDER BY employee_id
	`)

	rows, err := r.db.QueryContext(ctx, query, serviceRequestID, action)
	if err != nil {
		return nil, fmt.Errorf("query notified employees: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan employee id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanToken(rows *sql.Rows) (*models.WorkflowToken, error) {
	var token models.WorkflowToken
	err := rows.Scan(
		&token.ID,
		&token.ServiceRequestID,
		&token.EmployeeID,
		&token.Action,
		&token.RetryAttempt,
		&token.Prefix,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.UsedAt,
		&token.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan token: %w", err)
	}
	return &token, nil
}
