package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/fieldserve-io/fieldserve/internal/database"
	"github.com/fieldserve-io/fieldserve/internal/models"
)

// EmployeeRepository reads employee identity rows for token issuance and
// notification fan-out.
type EmployeeRepository struct {
	db *sql.DB
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(db *sql.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

const employeeColumns = `
	id, login, first_name, last_name, email, phone, role, timezone, active, created_at`

// GetByID retrieves an employee. Returns nil when not found.
func (r *EmployeeRepository) GetByID(ctx context.Context, id int) (*models.Employee, error) {
	query := database.ConvertPlaceholders(`
		SELECT ` + employeeColumns + `
		FROM employees
		WHERE id = ?
	`)

	row := r.db.QueryRowContext(ctx, query, id)
	emp, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return emp, err
}

// ListActive returns all active employees. Used when escalation widens
// the audience past the originally notified set.
func (r *EmployeeRepository) ListActive(ctx context.Context) ([]*models.Employee, error) {
	query := database.ConvertPlaceholders(`
		SELECT ` + employeeColumns + `
		FROM employees
		WHERE active = 1
		ORDER BY id
	`)
	return r.queryEmployees(ctx, query)
}

// ListByRoles returns active employees holding any of the given roles.
func (r *EmployeeRepository) ListByRoles(ctx context.Context, roles ...string) ([]*models.Employee, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(roles)), ",")
	query := database.ConvertPlaceholders(`
		SELECT ` + employeeColumns + `
		FROM employees
		WHERE active = 1 AND role IN (` + placeholders + `)
		ORDER BY id
	`)

	args := make([]any, len(roles))
	for i, role := range roles {
		args[i] = role
	}
	return r.queryEmployees(ctx, query, args...)
}

func (r *EmployeeRepository) queryEmployees(ctx context.Context, query string, args ...any) ([]*models.Employee, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	var employees []*models.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

func scanEmployee(row rowScanner) (*models.Employee, error) {
	var e models.Employee
	err := row.Scan(
		&e.ID, &e.Login, &e.FirstName, &e.LastName, &e.Email,
		&e.Phone, &e.Role, &e.Timezone, &e.Active, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan employee: %w", err)
	}
	return &e, nil
}
