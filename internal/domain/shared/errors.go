// Package shared contains common domain types and errors that are used across
// all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation    = errors.New("validation error")
	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyValue    = errors.New("value cannot be empty")
	ErrInvalidFormat = errors.New("invalid format")

	// State errors
	ErrInvalidState = errors.New("invalid state")
	ErrExpired      = errors.New("expired")

	// Authorization errors
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadCredentials = errors.New("bad credentials")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "lesson", "checkin", "slab"
	Op      string // Operation that failed, e.g., "Create", "Ensure"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// User domain errors
var (
	ErrUserNotFound      = NewDomainError("user", "Find", ErrNotFound, "user not found")
	ErrUserAlreadyExists = NewDomainError("user", "Create", ErrAlreadyExists, "user already exists")
	ErrUserWithoutGroup  = NewDomainError("user", "CheckGroup", ErrInvalidState, "user has no group affiliation")
)

// Token domain errors
var (
	ErrTokenNotFound = NewDomainError("token", "Validate", ErrNotFound, "token not found")
	ErrTokenExpired  = NewDomainError("token", "Validate", ErrExpired, "token expired")
)

// Lesson domain errors
var (
	ErrLessonNotFound = NewDomainError("lesson", "Find", ErrNotFound, "lesson not found")
	ErrInvalidLesson  = NewDomainError("lesson", "Validate", ErrInvalidEntity, "invalid lesson")
)

// Slab domain errors
var (
	ErrSlabNotFound = NewDomainError("slab", "Find", ErrNotFound, "check-in point not found")
	ErrInvalidSlab  = NewDomainError("slab", "Validate", ErrInvalidEntity, "invalid check-in point")
)

// CheckIn domain errors
var (
	ErrCheckInNotFound = NewDomainError("checkin", "Find", ErrNotFound, "check-in not found")
	ErrCheckInExists   = NewDomainError("checkin", "Create", ErrAlreadyExists, "check-in already recorded for this lesson")
)

// External service errors
var (
	ErrLukkaritUnavailable = NewDomainError("lukkarit", "Request", ErrServiceUnavailable, "Lukkarit calendar is unavailable")
	ErrLukkaritTimeout     = NewDomainError("lukkarit", "Request", ErrTimeout, "Lukkarit calendar request timeout")
	ErrLukkaritMarkup      = NewDomainError("lukkarit", "Parse", ErrInvalidFormat, "unexpected markup from Lukkarit calendar")
	ErrMetkaUnavailable    = NewDomainError("metka", "Request", ErrServiceUnavailable, "Metka portal is unavailable")
	ErrMetkaMarkup         = NewDomainError("metka", "Parse", ErrInvalidFormat, "unexpected markup from Metka portal")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrInvalidFormat)
}
