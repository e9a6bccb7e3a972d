// Package services implements the chat session orchestration: the directory
// of nutritionists, the request broker, the session store, the message
// ledger and the notification dispatcher.
//
// This file centralizes service-level errors. Each specific error belongs to
// one kind (ErrNotFound, ErrInvalidTransition, ErrValidation, ErrForbidden,
// ErrStorageUnavailable) so callers can branch with errors.Is on the kind,
// while the message stays specific. Translation into HTTP status codes is
// performed at the handler layer.
package services

import (
	"errors"

	"github.com/tbourn/nutrichat-backend/internal/repo"
)

// Error kinds.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrValidation         = errors.New("validation failed")
	ErrForbidden          = errors.New("forbidden")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// kindError is a specific error tagged with its kind.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error { return &kindError{kind: kind, msg: msg} }

// Directory errors.
var (
	ErrNutritionistNotFound    = newError(ErrNotFound, "nutritionist not found")
	ErrNameRequired            = newError(ErrValidation, "name is required")
	ErrNutritionistExists      = newError(ErrValidation, "nutritionist already exists")
	ErrNoNutritionistAvailable = newError(ErrValidation, "no nutritionist is available")
	ErrInvalidWorkingHours     = newError(ErrValidation, "working hours must use HH:MM with start before end")
	ErrInvalidResponseTime     = newError(ErrValidation, "average response time must be >= 0")
)

// Request broker errors.
var (
	ErrRequestNotFound      = newError(ErrNotFound, "session request not found")
	ErrRequestNotPending    = newError(ErrInvalidTransition, "session request is no longer pending")
	ErrPendingRequestExists = newError(ErrInvalidTransition, "user already has a pending session request")
	ErrNotRequestOwner      = newError(ErrForbidden, "session request belongs to another user")
	ErrNotRequestTarget     = newError(ErrForbidden, "session request is addressed to another nutritionist")
	ErrUserIDRequired       = newError(ErrValidation, "user id is required")
	ErrQueryTooLong         = newError(ErrValidation, "initial query too long")
)

// Session store errors.
var (
	ErrSessionNotFound      = newError(ErrNotFound, "session not found")
	ErrUserHasActiveSession = newError(ErrInvalidTransition, "user already has an active session")
	ErrNotParticipant       = newError(ErrForbidden, "not a participant of this session")
	ErrInvalidRole          = newError(ErrValidation, "role must be user or nutritionist")
)

// Message ledger errors.
var (
	ErrEmptyContent     = newError(ErrValidation, "message content is empty")
	ErrContentTooLong   = newError(ErrValidation, "message content too long")
	ErrSessionNotActive = newError(ErrInvalidTransition, "session is not active")
	ErrMessageNotFound  = newError(ErrNotFound, "message not found")
)

// Notification errors.
var (
	ErrNotificationNotFound = newError(ErrNotFound, "notification not found")
	ErrInvalidNotification  = newError(ErrValidation, "invalid notification")
)

// storageError wraps a driver error as ErrStorageUnavailable, keeping the
// original in the chain.
type storageError struct{ err error }

func (e *storageError) Error() string   { return "storage unavailable: " + e.err.Error() }
func (e *storageError) Unwrap() []error { return []error{ErrStorageUnavailable, e.err} }

// storage classifies a repository error: nil stays nil, record-not-found
// becomes notFound and anything else is a storage failure.
func storage(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrNotFound):
		return notFound
	default:
		return &storageError{err: err}
	}
}
