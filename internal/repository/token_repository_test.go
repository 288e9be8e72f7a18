package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/fieldserve-io/fieldserve/internal/models"
	"github.com/fieldserve-io/fieldserve/internal/repository"
)

func sampleToken(createdAt time.Time) *models.WorkflowToken {
	return &models.WorkflowToken{
		ServiceRequestID: 100,
		EmployeeID:       15,
		Action:           models.ActionAcknowledge,
		RetryAttempt:     0,
		Prefix:           "1a2b3c4d",
		TokenHash:        "$2a$10$hash",
		ExpiresAt:        sql.NullTime{Time: createdAt.Add(24 * time.Hour), Valid: true},
		CreatedAt:        createdAt,
	}
}

// lib/pq does not implement LastInsertId, so the insert must go through a
// RETURNING clause when the postgres driver is active.
func TestTokenCreatePostgresUsesReturning(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := repository.NewTokenRepository(db)
	createdAt := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	token := sampleToken(createdAt)

	mock.ExpectQuery(`INSERT INTO workflow_tokens (.+) RETURNING id`).
		WithArgs(100, 15, models.ActionAcknowledge, 0, "1a2b3c4d", "$2a$10$hash", token.ExpiresAt, createdAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	id, err := repo.Create(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenCreateMySQLUsesLastInsertID(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := repository.NewTokenRepository(db)
	createdAt := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	token := sampleToken(createdAt)

	mock.ExpectExec("INSERT INTO workflow_tokens").
		WithArgs(100, 15, models.ActionAcknowledge, 0, "1a2b3c4d", "$2a$10$hash", token.ExpiresAt, createdAt).
		WillReturnResult(sqlmock.NewResult(42, 1))

	id, err := repo.Create(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

// The single-open-session guard is a conditional INSERT; under postgres a
// conflicting insert returns no RETURNING row and must come back as a
// clean conflict, not an error.
func TestOpenSessionPostgresConflict(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := repository.NewTimeEntryRepository(db)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO time_entries (.+) RETURNING id`).
		WithArgs(100, 15, start, start, 100, 15).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	id, inserted, err := repo.OpenSession(context.Background(), 100, 15, start)
	require.NoError(t, err)
	require.False(t, inserted)
	require.Zero(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenSessionPostgresInsert(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := repository.NewTimeEntryRepository(db)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO time_entries (.+) RETURNING id`).
		WithArgs(100, 15, start, start, 100, 15).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	id, inserted, err := repo.OpenSession(context.Background(), 100, 15, start)
	require.NoError(t, err)
	require.True(t, inserted)
	require.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}
