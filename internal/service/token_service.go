package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/fieldserve-io/fieldserve/internal/models"
)

// tokenStore is the storage surface the token engine needs. Both the SQL
// and the in-memory repositories satisfy it.
type tokenStore interface {
	Create(ctx context.Context, token *models.WorkflowToken) (int64, error)
	GetByPrefix(ctx context.Context, prefix string) ([]*models.WorkflowToken, error)
	Consume(ctx context.Context, id int64, usedAt time.Time) (bool, error)
	ExpireActive(ctx context.Context, serviceRequestID int, action string, now time.Time) (int64, error)
	ExpireAllForRequest(ctx context.Context, serviceRequestID int, now time.Time) (int64, error)
}

// IssuedToken pairs a recipient with the raw secret generated for them.
// The raw value exists only in memory on its way into an email.
type IssuedToken struct {
	EmployeeID int
	Raw        string
}

// TokenService issues and validates single-use workflow action tokens.
type TokenService struct {
	store tokenStore
	now   func() time.Time
}

// NewTokenService creates a new token service
func NewTokenService(store tokenStore) *TokenService {
	return &TokenService{store: store, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// Issue creates a single token for one employee and one action. Any
// not-yet-used older tokens for the same (request, action) pair are
// expired first, so only the newest token is ever honorable.
func (s *TokenService) Issue(ctx context.Context, serviceRequestID, employeeID int, action string, retryAttempt int, expiresAt *time.Time) (string, error) {
	batch, err := s.IssueBatch(ctx, serviceRequestID, []int{employeeID}, action, retryAttempt, expiresAt)
	if err != nil {
		return "", err
	}
	return batch[0].Raw, nil
}

// IssueBatch creates one token per recipient for the same action and retry
// attempt. The whole previous generation for (request, action) is expired
// before the new batch is written, so a stale reminder email cannot be
// replayed once a fresher one has been sent.
func (s *TokenService) IssueBatch(ctx context.Context, serviceRequestID int, employeeIDs []int, action string, retryAttempt int, expiresAt *time.Time) ([]IssuedToken, error) {
	if len(employeeIDs) == 0 {
		return nil, fmt.Errorf("issue %s tokens: no recipients", action)
	}

	now := s.now()
	if _, err := s.store.ExpireActive(ctx, serviceRequestID, action, now); err != nil {
		return nil, fmt.Errorf("supersede %s tokens: %w", action, err)
	}

	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: *expiresAt, Valid: true}
	}

	issued := make([]IssuedToken, 0, len(employeeIDs))
	for _, employeeID := range employeeIDs {
		raw, prefix, err := generateToken()
		if err != nil {
			return nil, err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash token: %w", err)
		}

		token := &models.WorkflowToken{
			ServiceRequestID: serviceRequestID,
			EmployeeID:       employeeID,
			Action:           action,
			RetryAttempt:     retryAttempt,
			Prefix:           prefix,
			TokenHash:        string(hash),
			ExpiresAt:        expiry,
			CreatedAt:        now,
		}
		if _, err := s.store.Create(ctx, token); err != nil {
			return nil, fmt.Errorf("create %s token: %w", action, err)
		}
		issued = append(issued, IssuedToken{EmployeeID: employeeID, Raw: raw})
	}

	return issued, nil
}

// ValidateAndConsume resolves a raw token, checks every validity
// condition, and consumes it. Consumption is a single conditional update,
// so concurrent validations of the same token yield exactly one success;
// losers get ErrTokenUsed. actingEmployeeID of 0 means the caller's
// identity is taken from the token itself.
func (s *TokenService) ValidateAndConsume(ctx context.Context, rawToken, expectedAction string, actingEmployeeID int) (*models.WorkflowToken, error) {
	prefix, ok := parseTokenPrefix(rawToken)
	if !ok {
		return nil, ErrTokenNotFound
	}

	candidates, err := s.store.GetByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("lookup token: %w", err)
	}

	var token *models.WorkflowToken
	for _, candidate := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(candidate.TokenHash), []byte(rawToken)) == nil {
			token = candidate
			break
		}
	}
	if token == nil {
		return nil, ErrTokenNotFound
	}

	now := s.now()
	switch {
	case token.IsUsed():
		return nil, ErrTokenUsed
	case token.IsExpired(now):
		return nil, ErrTokenExpired
	case token.Action != expectedAction:
		return nil, ErrWrongAction
	case actingEmployeeID > 0 && token.EmployeeID != actingEmployeeID:
		return nil, ErrWrongEmployee
	}

	consumed, err := s.store.Consume(ctx, token.ID, now)
	if err != nil {
		return nil, fmt.Errorf("consume token: %w", err)
	}
	if !consumed {
		// Lost the race against a concurrent click on the same link.
		return nil, ErrTokenUsed
	}

	token.UsedAt = sql.NullTime{Time: now, Valid: true}
	return token, nil
}

// PeekRequestID resolves a raw token to its service request without any
// validity checks or consumption. Lets a dead acknowledge link be turned
// into a "who got there first" answer instead of a bare failure.
func (s *TokenService) PeekRequestID(ctx context.Context, rawToken string) (int, bool) {
	prefix, ok := parseTokenPrefix(rawToken)
	if !ok {
		return 0, false
	}
	candidates, err := s.store.GetByPrefix(ctx, prefix)
	if err != nil {
		return 0, false
	}
	for _, candidate := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(candidate.TokenHash), []byte(rawToken)) == nil {
			return candidate.ServiceRequestID, true
		}
	}
	return 0, false
}

// ExpireAction invalidates every outstanding token for one action on a
// request, e.g. the other recipients' acknowledge links once someone has
// claimed the work.
func (s *TokenService) ExpireAction(ctx context.Context, serviceRequestID int, action string) error {
	_, err := s.store.ExpireActive(ctx, serviceRequestID, action, s.now())
	return err
}

// ExpireAll invalidates every outstanding token for a request. Called when
// the workflow reaches its terminal state.
func (s *TokenService) ExpireAll(ctx context.Context, serviceRequestID int) error {
	_, err := s.store.ExpireAllForRequest(ctx, serviceRequestID, s.now())
	return err
}

// generateToken returns the raw token and its clear-text lookup prefix.
// Format: fs_<prefix>_<random>.
func generateToken() (raw, prefix string, err error) {
	randomBytes := make([]byte, models.TokenRandomLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("generate random: %w", err)
	}
	randomPart := hex.EncodeToString(randomBytes)

	prefix = randomPart[:models.TokenPrefixLength]
	raw = fmt.Sprintf("%s%s_%s", models.TokenPrefix, prefix, randomPart[models.TokenPrefixLength:])
	return raw, prefix, nil
}

// parseTokenPrefix extracts the lookup prefix from a raw token.
func parseTokenPrefix(rawToken string) (string, bool) {
	if !strings.HasPrefix(rawToken, models.TokenPrefix) {
		return "", false
	}
	tokenPart := rawToken[len(models.TokenPrefix):]
	if len(tokenPart) < models.TokenPrefixLength+1 {
		return "", false
	}
	return tokenPart[:models.TokenPrefixLength], true
}
