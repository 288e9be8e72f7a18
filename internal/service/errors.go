package service

import (
	"errors"
	"fmt"
)

// Token validation failures. Each maps to one reason code at the API
// boundary; none is ever treated as success.
var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenUsed     = errors.New("token already used")
	ErrWrongAction   = errors.New("token does not authorize this action")
	ErrWrongEmployee = errors.New("token belongs to a different employee")
)

var (
	// ErrRequestNotFound indicates a missing service request or workflow
	// state row. A data-integrity condition, not a caller mistake.
	ErrRequestNotFound = errors.New("service request not found")
	// ErrSessionConflict indicates an open work session already exists for
	// the (request, technician) pair.
	ErrSessionConflict = errors.New("a work session is already open")
	// ErrNoOpenSession indicates a stop was attempted with no running session.
	ErrNoOpenSession = errors.New("no open work session")
	// ErrCloseReasonRequired indicates close was called without a reason.
	ErrCloseReasonRequired = errors.New("a close reason is required")
)

// StateConflictError reports an action attempted from the wrong workflow
// state. The message names the actual current state because a stale email
// link is the most common caller mistake.
type StateConflictError struct {
	Action       string
	CurrentState string
	// ActorName is set when the conflict is a repeat of an action someone
	// already performed, so the caller gets "already acknowledged by X"
	// instead of a generic refusal.
	ActorName string
}

func (e *StateConflictError) Error() string {
	if e.ActorName != "" {
		return fmt.Sprintf("already %sd by %s", e.Action, e.ActorName)
	}
	return fmt.Sprintf("cannot %s from state=%s", e.Action, e.CurrentState)
}

// IsTokenInvalid reports whether err belongs to the token failure family.
func IsTokenInvalid(err error) bool {
	return errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenUsed) ||
		errors.Is(err, ErrWrongAction) ||
		errors.Is(err, ErrWrongEmployee)
}
