// Package apierrors provides structured API error codes and responses.
// All codes are namespaced (e.g., "token:expired", "workflow:state_conflict").
package apierrors

import "net/http"

// Token validation failures. Each maps one reason from the token engine so
// callers always learn why a link stopped working.
const (
	CodeTokenNotFound = "token:not_found"
	CodeTokenExpired  = "token:expired"
	CodeTokenUsed     = "token:already_used"
	CodeWrongAction   = "token:wrong_action"
	CodeWrongEmployee = "token:wrong_employee"
)

// Workflow errors
const (
	CodeStateConflict       = "workflow:state_conflict"
	CodeRequestNotFound     = "workflow:request_not_found"
	CodeCloseReasonRequired = "workflow:close_reason_required"
	CodeSessionConflict     = "workflow:session_conflict"
)

// Core errors
const (
	CodeUnauthorized   = "core:unauthorized"
	CodeForbidden      = "core:forbidden"
	CodeInvalidRequest = "core:invalid_request"
	CodeInvalidID      = "core:invalid_id"
	CodeNotFound       = "core:not_found"
	CodeRateLimited    = "core:rate_limited"
	CodeInternalError  = "core:internal_error"
)

var registeredErrors = []ErrorCode{
	{Code: CodeTokenNotFound, Message: "Action link not recognized", HTTPStatus: http.StatusBadRequest},
	{Code: CodeTokenExpired, Message: "Action link has expired", HTTPStatus: http.StatusBadRequest},
	{Code: CodeTokenUsed, Message: "Action link was already used", HTTPStatus: http.StatusBadRequest},
	{Code: CodeWrongAction, Message: "Action link does not authorize this action", HTTPStatus: http.StatusBadRequest},
	{Code: CodeWrongEmployee, Message: "Action link belongs to a different employee", HTTPStatus: http.StatusBadRequest},

	{Code: CodeStateConflict, Message: "Action not valid for the current workflow state", HTTPStatus: http.StatusConflict},
	{Code: CodeRequestNotFound, Message: "Service request not found", HTTPStatus: http.StatusNotFound},
	{Code: CodeCloseReasonRequired, Message: "A close reason is required", HTTPStatus: http.StatusBadRequest},
	{Code: CodeSessionConflict, Message: "A work session is already open", HTTPStatus: http.StatusConflict},

	{Code: CodeUnauthorized, Message: "Authentication required", HTTPStatus: http.StatusUnauthorized},
	{Code: CodeForbidden, Message: "Permission denied", HTTPStatus: http.StatusForbidden},
	{Code: CodeInvalidRequest, Message: "Invalid request body", HTTPStatus: http.StatusBadRequest},
	{Code: CodeInvalidID, Message: "Invalid ID format", HTTPStatus: http.StatusBadRequest},
	{Code: CodeNotFound, Message: "Resource not found", HTTPStatus: http.StatusNotFound},
	{Code: CodeRateLimited, Message: "Too many requests", HTTPStatus: http.StatusTooManyRequests},
	{Code: CodeInternalError, Message: "Internal server error", HTTPStatus: http.StatusInternalServerError},
}

func init() {
	for _, e := range registeredErrors {
		Registry.Register(e)
	}
}
