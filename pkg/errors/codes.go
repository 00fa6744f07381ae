package errors

import (
	"errors"
	"fmt"
)

// Error codes surfaced to API clients.
const (
	CodeInvalidCoordinate  = "INVALID_COORDINATE"
	CodeContentRequired    = "CONTENT_REQUIRED"
	CodeContentTooLong     = "CONTENT_TOO_LONG"
	CodeMissingAuthContext = "MISSING_AUTH_CONTEXT"
	CodeInvalidExpiry      = "INVALID_EXPIRY"
	CodeInvalidVote        = "INVALID_VOTE"
	CodeNotAuthorized      = "NOT_AUTHORIZED"
	CodeInvalidCursor      = "INVALID_CURSOR"
)

// Sentinel causes. Match them with errors.Is through the AppError chain.
var (
	ErrInvalidCoordinate  = errors.New("invalid coordinate")
	ErrContentRequired    = errors.New("content required")
	ErrContentTooLong     = errors.New("content too long")
	ErrMissingAuthContext = errors.New("missing auth context")
	ErrInvalidExpiry      = errors.New("invalid expiry")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrInvalidCursor      = errors.New("invalid cursor")
)

// InvalidCoordinate builds the validation error for an out-of-range coordinate.
func InvalidCoordinate(lat, lon float64) *AppError {
	return NewValidationError(fmt.Sprintf("coordinates out of range: lat=%v lon=%v", lat, lon)).
		WithCode(CodeInvalidCoordinate).
		WithCause(ErrInvalidCoordinate).
		WithDetails(map[string]interface{}{"latitude": lat, "longitude": lon})
}

// ContentRequired builds the validation error for empty content.
func ContentRequired(field string) *AppError {
	return NewValidationError(fmt.Sprintf("%s is required", field)).
		WithCode(CodeContentRequired).
		WithCause(ErrContentRequired)
}

// ContentTooLong builds the validation error for content above max runes.
func ContentTooLong(field string, max int) *AppError {
	return NewValidationError(fmt.Sprintf("%s must be %d characters or less", field, max)).
		WithCode(CodeContentTooLong).
		WithCause(ErrContentTooLong).
		WithDetails(map[string]interface{}{"max": max})
}

// MissingAuthContext is returned when an operation needs a signed-in user.
func MissingAuthContext() *AppError {
	return NewValidationError("no current user on session").
		WithCode(CodeMissingAuthContext).
		WithCause(ErrMissingAuthContext)
}

// InvalidExpiry builds the validation error for an expiry outside the allowed window.
func InvalidExpiry(days, min, max int) *AppError {
	return NewValidationError(fmt.Sprintf("expiresInDays must be between %d and %d, got %d", min, max, days)).
		WithCode(CodeInvalidExpiry).
		WithCause(ErrInvalidExpiry)
}

// NotAuthorized is returned when the current user does not own the target.
func NotAuthorized(action string) *AppError {
	return NewForbiddenError(fmt.Sprintf("not authorized to %s", action)).
		WithCode(CodeNotAuthorized).
		WithCause(ErrNotAuthorized)
}

// InvalidCursor is returned when a pagination cursor cannot be decoded.
func InvalidCursor(err error) *AppError {
	return NewValidationError("invalid pagination cursor").
		WithCode(CodeInvalidCursor).
		WithCause(fmt.Errorf("%w: %v", ErrInvalidCursor, err))
}
