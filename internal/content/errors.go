package content

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input for a single field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a missing node, parent, report or saved lineage
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// AuthorizationError reports a requester that may not perform an action
type AuthorizationError struct {
	Action      string
	RequesterID string
}

func (e *AuthorizationError) Error() string {
	if e.RequesterID == "" {
		return fmt.Sprintf("not authorized to %s", e.Action)
	}
	return fmt.Sprintf("%s is not authorized to %s", e.RequesterID, e.Action)
}

// ConflictError reports a duplicate report or saved lineage
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Reason
}

// Kinds used in NotFoundError
const (
	KindNode         = "node"
	KindReport       = "report"
	KindSavedLineage = "saved lineage"
)

// NodeNotFound builds the NotFoundError for a content node
func NodeNotFound(id string) error {
	return &NotFoundError{Kind: KindNode, ID: id}
}

// Invalid builds a ValidationError
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsNotFound reports whether err wraps a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsValidation reports whether err wraps a ValidationError
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsAuthorization reports whether err wraps an AuthorizationError
func IsAuthorization(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

// IsConflict reports whether err wraps a ConflictError
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}
