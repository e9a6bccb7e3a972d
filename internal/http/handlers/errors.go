// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable: clients branch on them. Generic
// codes mirror the HTTP status; workflow codes name the rule that refused
// the call so a client can react (for example, by switching to the session
// that is already active).
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "active_session_exists",
//	  "message": "user already has an active session"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/nutrichat-backend/internal/services"
)

const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeForbidden          = "forbidden"
	ErrCodeNotFound           = "not_found"
	ErrCodeConflict           = "conflict"
	ErrCodeInternal           = "internal_error"
	ErrCodeStorageUnavailable = "storage_unavailable"
	ErrCodeMethodNotAllowed   = "method_not_allowed"

	// Workflow:
	ErrCodeValidation           = "validation_failed"
	ErrCodeInvalidTransition    = "invalid_transition"
	ErrCodeRequestNotPending    = "request_not_pending"
	ErrCodePendingRequestExists = "pending_request_exists"
	ErrCodeActiveSessionExists  = "active_session_exists"
	ErrCodeSessionNotActive     = "session_not_active"
	ErrCodeNoneAvailable        = "no_nutritionist_available"
	ErrCodeContentTooLong       = "content_too_long"
	ErrCodeEmptyContent         = "empty_content"
)

// specificCodes refines the kind code for errors clients act on directly.
var specificCodes = []struct {
	err  error
	code string
}{
	{services.ErrRequestNotPending, ErrCodeRequestNotPending},
	{services.ErrPendingRequestExists, ErrCodePendingRequestExists},
	{services.ErrUserHasActiveSession, ErrCodeActiveSessionExists},
	{services.ErrSessionNotActive, ErrCodeSessionNotActive},
	{services.ErrNoNutritionistAvailable, ErrCodeNoneAvailable},
	{services.ErrContentTooLong, ErrCodeContentTooLong},
	{services.ErrQueryTooLong, ErrCodeContentTooLong},
	{services.ErrEmptyContent, ErrCodeEmptyContent},
}

// statusFor maps a service error to an HTTP status and code by its kind.
func statusFor(err error) (int, string) {
	var status int
	var code string
	switch {
	case errors.Is(err, services.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, ErrCodeStorageUnavailable
	case errors.Is(err, services.ErrNotFound):
		status, code = http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, services.ErrForbidden):
		status, code = http.StatusForbidden, ErrCodeForbidden
	case errors.Is(err, services.ErrInvalidTransition):
		status, code = http.StatusConflict, ErrCodeInvalidTransition
	case errors.Is(err, services.ErrValidation):
		status, code = http.StatusBadRequest, ErrCodeValidation
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
	for _, sc := range specificCodes {
		if errors.Is(err, sc.err) {
			return status, sc.code
		}
	}
	return status, code
}

// failErr writes the envelope for a service error. Messages of 5xx errors
// are replaced so driver details never reach the client.
func failErr(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		msg = http.StatusText(status)
	}
	fail(c, status, code, msg)
}
