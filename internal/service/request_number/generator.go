// Package request_number generates unique, human-readable service request
// numbers backed by an atomically incremented counter table.
package request_number

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fieldserve-io/fieldserve/internal/database"
)

// Generator is the interface all request number generators implement.
type Generator interface {
	// Generate creates a new unique request number.
	Generate(ctx context.Context) (string, error)
}

var ErrCounterUpdateFailed = errors.New("failed to update request number counter")

// getNextCounter atomically increments and returns the next counter value
// for a counter UID, creating the row on first use. Written as
// update-then-insert with one retry so it works on MySQL, PostgreSQL and
// SQLite alike.
func getNextCounter(ctx context.Context, db *sql.DB, counterUID string) (int64, error) {
	for attempt := 0; attempt < 2; attempt++ {
		result, err := db.ExecContext(ctx, database.ConvertPlaceholders(`
			UPDATE request_number_counter
			SET counter = counter + 1
			WHERE counter_uid = ?
		`), counterUID)
		if err != nil {
			return 0, err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		if rows > 0 {
			var counter int64
			err = db.QueryRowContext(ctx, database.ConvertPlaceholders(`
				SELECT counter FROM request_number_counter WHERE counter_uid = ?
			`), counterUID).Scan(&counter)
			return counter, err
		}

		// First number for this counter UID. A concurrent insert loses the
		// unique constraint race and falls back to the update path above.
		_, err = db.ExecContext(ctx, database.ConvertPlaceholders(`
			INSERT INTO request_number_counter (counter, counter_uid, created_at)
			VALUES (1, ?, CURRENT_TIMESTAMP)
		`), counterUID)
		if err == nil {
			return 1, nil
		}
	}
	return 0, ErrCounterUpdateFailed
}

// resetCounter resets a counter to a specific value.
func resetCounter(ctx context.Context, db *sql.DB, counterUID string, value int64) error {
	result, err := db.ExecContext(ctx, database.ConvertPlaceholders(`
		UPDATE request_number_counter SET counter = ? WHERE counter_uid = ?
	`), value, counterUID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		_, err = db.ExecContext(ctx, database.ConvertPlaceholders(`
			INSERT INTO request_number_counter (counter, counter_uid, created_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
		`), value, counterUID)
	}
	return err
}
