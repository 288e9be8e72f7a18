package models

import "time"

// Employee roles used for audience widening on escalation and for the
// admin/executive notification fan-out on start/close.
const (
	RoleTechnician = "technician"
	RoleDispatcher = "dispatcher"
	RoleAdmin      = "admin"
	RoleExecutive  = "executive"
)

// Employee is the minimal identity record the workflow core needs:
// who can act on tokens and where notifications land.
type Employee struct {
	ID        int
	Login     string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Role      string
	Timezone  string
	Active    bool
	CreatedAt time.Time
}

// FullName returns "First Last", falling back to the login when both
// name parts are empty.
func (e *Employee) FullName() string {
	name := e.FirstName
	if e.LastName != "" {
		if name != "" {
			name += " "
		}
		name += e.LastName
	}
	if name == "" {
		return e.Login
	}
	return name
}
