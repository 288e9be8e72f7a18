package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldserve-io/fieldserve/internal/models"
	"github.com/fieldserve-io/fieldserve/internal/repository"
	"github.com/fieldserve-io/fieldserve/internal/service"
)

func newTokenService(now time.Time) (*service.TokenService, *repository.MemoryTokenRepository) {
	repo := repository.NewMemoryTokenRepository()
	svc := service.NewTokenService(repo).WithClock(func() time.Time { return now })
	return svc, repo
}

func TestTokenSingleUse(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, _ := newTokenService(now)

	raw, err := svc.Issue(ctx, 42, 7, models.ActionAcknowledge, 0, nil)
	require.NoError(t, err)
	require.Contains(t, raw, models.TokenPrefix)

	token, err := svc.ValidateAndConsume(ctx, raw, models.ActionAcknowledge, 0)
	require.NoError(t, err)
	assert.Equal(t, 42, token.ServiceRequestID)
	assert.Equal(t, 7, token.EmployeeID)
	assert.True(t, token.IsUsed())

	// Second click on the same link.
	_, err = svc.ValidateAndConsume(ctx, raw, models.ActionAcknowledge, 0)
	assert.ErrorIs(t, err, service.ErrTokenUsed)
}

func TestTokenExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	repo := repository.NewMemoryTokenRepository()
	clock := now
	svc := service.NewTokenService(repo).WithClock(func() time.Time { return clock })

	expiresAt := now.Add(time.Hour)
	raw, err := svc.Issue(ctx, 1, 7, models.ActionAcknowledge, 0, &expiresAt)
	require.NoError(t, err)

	clock = now.Add(2 * time.Hour)
	_, err = svc.ValidateAndConsume(ctx, raw, models.ActionAcknowledge, 0)
	assert.ErrorIs(t, err, service.ErrTokenExpired)
}

func TestTokenWithoutExpiryNeverExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	repo := repository.NewMemoryTokenRepository()
	clock := now
	svc := service.NewTokenService(repo).WithClock(func() time.Time { return clock })

	raw, err := svc.Issue(ctx, 1, 7, models.ActionStart, 0, nil)
	require.NoError(t, err)

	clock = now.AddDate(1, 0, 0)
	token, err := svc.ValidateAndConsume(ctx, raw, models.ActionStart, 0)
	require.NoError(t, err)
	assert.Equal(t, models.ActionStart, token.Action)
}

func TestTokenWrongAction(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTokenService(time.Now())

	raw, err := svc.Issue(ctx, 1, 7, models.ActionStop, 0, nil)
	require.NoError(t, err)

	_, err = svc.ValidateAndConsume(ctx, raw, models.ActionClose, 0)
	assert.ErrorIs(t, err, service.ErrWrongAction)
}

func TestTokenWrongEmployee(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTokenService(time.Now())

	raw, err := svc.Issue(ctx, 1, 7, models.ActionStart, 0, nil)
	require.NoError(t, err)

	_, err = svc.ValidateAndConsume(ctx, raw, models.ActionStart, 9)
	assert.ErrorIs(t, err, service.ErrWrongEmployee)

	// Acting employee matching the token passes.
	token, err := svc.ValidateAndConsume(ctx, raw, models.ActionStart, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, token.EmployeeID)
}

func TestTokenUnknown(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTokenService(time.Now())

	cases := []string{
		"",
		"garbage",
		"fs_short",
		"fs_00000000_ffffffffffffffffffffffffffffffff",
	}
	for _, raw := range cases {
		_, err := svc.ValidateAndConsume(ctx, raw, models.ActionAcknowledge, 0)
		assert.ErrorIs(t, err, service.ErrTokenNotFound, "raw=%q", raw)
	}
}

func TestIssueBatchSupersedesPreviousGeneration(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	repo := repository.NewMemoryTokenRepository()
	clock := now
	svc := service.NewTokenService(repo).WithClock(func() time.Time { return clock })

	first, err := svc.IssueBatch(ctx, 5, []int{1, 2, 3}, models.ActionAcknowledge, 0, nil)
	require.NoError(t, err)
	require.Len(t, first, 3)

	clock = now.Add(2 * time.Minute)
	second, err := svc.IssueBatch(ctx, 5, []int{1, 2, 3}, models.ActionAcknowledge, 1, nil)
	require.NoError(t, err)
	require.Len(t, second, 3)

	// Every first-generation link is dead.
	for _, issued := range first {
		_, err := svc.ValidateAndConsume(ctx, issued.Raw, models.ActionAcknowledge, 0)
		assert.ErrorIs(t, err, service.ErrTokenExpired)
	}

	// The fresh generation works.
	token, err := svc.ValidateAndConsume(ctx, second[1].Raw, models.ActionAcknowledge, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, token.RetryAttempt)
}

func TestIssueBatchDoesNotTouchOtherActions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTokenService(time.Now())

	startRaw, err := svc.Issue(ctx, 5, 1, models.ActionStart, 0, nil)
	require.NoError(t, err)

	_, err = svc.IssueBatch(ctx, 5, []int{1, 2}, models.ActionAcknowledge, 1, nil)
	require.NoError(t, err)

	token, err := svc.ValidateAndConsume(ctx, startRaw, models.ActionStart, 0)
	require.NoError(t, err)
	assert.Equal(t, models.ActionStart, token.Action)
}

func TestExpireAllKillsEveryAction(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTokenService(time.Now())

	stopRaw, err := svc.Issue(ctx, 5, 1, models.ActionStop, 0, nil)
	require.NoError(t, err)
	closeRaw, err := svc.Issue(ctx, 5, 1, models.ActionClose, 0, nil)
	require.NoError(t, err)

	require.NoError(t, svc.ExpireAll(ctx, 5))

	_, err = svc.ValidateAndConsume(ctx, stopRaw, models.ActionStop, 0)
	assert.ErrorIs(t, err, service.ErrTokenExpired)
	_, err = svc.ValidateAndConsume(ctx, closeRaw, models.ActionClose, 0)
	assert.ErrorIs(t, err, service.ErrTokenExpired)
}

func TestPeekRequestID(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTokenService(time.Now())

	raw, err := svc.Issue(ctx, 77, 1, models.ActionAcknowledge, 0, nil)
	require.NoError(t, err)

	// Peek works on live and on consumed tokens alike.
	id, ok := svc.PeekRequestID(ctx, raw)
	require.True(t, ok)
	assert.Equal(t, 77, id)

	_, err = svc.ValidateAndConsume(ctx, raw, models.ActionAcknowledge, 0)
	require.NoError(t, err)

	id, ok = svc.PeekRequestID(ctx, raw)
	require.True(t, ok)
	assert.Equal(t, 77, id)

	_, ok = svc.PeekRequestID(ctx, "fs_00000000_ffffffffffffffffffffffffffffffff")
	assert.False(t, ok)
}
