package api

import (
	"errors"
	"fmt"

	"github.com/branchwise/branchwise/internal/content"
)

// Error represents an API error
type Error struct {
	Code    int
	Message string
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// ErrThrottled is returned when a user exceeds the engagement rate limit
var ErrThrottled = NewError(ErrTooManyRequests, "Too many requests")

// fieldError is the data of an invalid params response
type fieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// classify maps an error onto a JSON-RPC code, message and data. Client
// errors report false so they are not logged as failures.
func classify(err error) (code int, message string, data interface{}, serverSide bool) {
	var (
		validation *content.ValidationError
		notFound   *content.NotFoundError
		authz      *content.AuthorizationError
		conflict   *content.ConflictError
		apiErr     *Error
	)
	switch {
	case errors.As(err, &validation):
		return ErrInvalidParams, "Invalid params", fieldError{Field: validation.Field, Reason: validation.Reason}, false
	case errors.As(err, &notFound):
		return ErrNotFound, "Not found", notFound.Error(), false
	case errors.As(err, &authz):
		return ErrForbidden, "Forbidden", authz.Error(), false
	case errors.As(err, &conflict):
		return ErrConflict, "Conflict", conflict.Error(), false
	case errors.As(err, &apiErr):
		return apiErr.Code, apiErr.Message, nil, false
	default:
		return ErrServerError, "Server error", err.Error(), true
	}
}
