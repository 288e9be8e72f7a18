package database

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// GetDBDriver returns the active database driver name.
// In test mode, TEST_ prefixed environment variables take precedence.
func GetDBDriver() string {
	driver := os.Getenv("TEST_DB_DRIVER")
	if driver == "" {
		driver = os.Getenv("DB_DRIVER")
	}
	if driver == "" {
		driver = "mysql"
	}
	return strings.ToLower(driver)
}

// IsMySQL returns true if using MySQL/MariaDB.
func IsMySQL() bool {
	driver := GetDBDriver()
	return driver == "mysql" || driver == "mariadb"
}

// IsPostgreSQL returns true if using PostgreSQL.
func IsPostgreSQL() bool {
	return GetDBDriver() == "postgres"
}

// IsSQLite returns true if using SQLite (tests and single-node installs).
func IsSQLite() bool {
	driver := GetDBDriver()
	return driver == "sqlite" || driver == "sqlite3"
}

var dollarPlaceholder = regexp.MustCompile(`\$\d+`)

// ConvertPlaceholders converts SQL placeholders to the format required by
// the current database. Queries must be written with ? placeholders only;
// $N placeholders panic to keep the codebase portable.
//   - PostgreSQL: ? becomes $1, $2, ...
//   - MySQL/SQLite: ? passed through as-is
func ConvertPlaceholders(query string) string {
	if dollarPlaceholder.MatchString(query) {
		panic(fmt.Sprintf("ConvertPlaceholders: $N placeholders are not allowed, use ?.\nQuery: %s", query))
	}

	if IsPostgreSQL() && strings.Contains(query, "?") {
		var result strings.Builder
		paramNum := 1
		for _, c := range query {
			if c == '?' {
				fmt.Fprintf(&result, "$%d", paramNum)
				paramNum++
			} else {
				result.WriteRune(c)
			}
		}
		query = result.String()
	}

	if !IsPostgreSQL() {
		// MySQL is case-insensitive by default, SQLite LIKE is too.
		query = strings.ReplaceAll(query, " ILIKE ", " LIKE ")
		query = strings.ReplaceAll(query, " ilike ", " LIKE ")
	}

	return query
}
