package database

import (
	"context"
	"database/sql"
	"errors"
)

// InsertReturningID executes an INSERT and reports the new row's id.
// MySQL and SQLite surface it through LastInsertId; lib/pq only through a
// RETURNING clause driven by QueryRow, so the PostgreSQL path appends one.
// inserted is false when the statement matched nothing, which conditional
// INSERT ... SELECT guards rely on. The query must already have been run
// through ConvertPlaceholders.
func InsertReturningID(ctx context.Context, db *sql.DB, query string, args ...any) (id int64, inserted bool, err error) {
	if IsPostgreSQL() {
		err = db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		return id, true, nil
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if rows == 0 {
		return 0, false, nil
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}
