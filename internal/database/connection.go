// Package database owns the shared sql.DB handle and the cross-driver
// SQL compatibility helpers.
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Open establishes a pooled connection for the given driver and DSN and
// verifies it with a ping.
func Open(driver, dsn string) (*sql.DB, error) {
	name := driver
	switch name {
	case "sqlite":
		name = "sqlite3"
	case "mariadb":
		name = "mysql"
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return db, nil
}
