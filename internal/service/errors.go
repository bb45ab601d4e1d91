package service

import (
	"fmt"
	"sort"
	"strings"
)

// NotFoundError represents a missing or invisible resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	return ok
}

// ConflictError reports a duplicate registration or an exhausted capacity.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string {
	if e.Reason == "" {
		return "conflict"
	}
	return e.Reason
}

// Is enables errors.Is matching on ConflictError.
func (e ConflictError) Is(target error) bool {
	_, ok := target.(ConflictError)
	return ok
}

// UnauthorizedError reports a failed role or ownership check.
type UnauthorizedError struct {
	Reason string
}

func (e UnauthorizedError) Error() string {
	if e.Reason == "" {
		return "unauthorized"
	}
	return e.Reason
}

// Is enables errors.Is matching on UnauthorizedError.
func (e UnauthorizedError) Is(target error) bool {
	_, ok := target.(UnauthorizedError)
	return ok
}

// ValidationError carries field-level detail for malformed input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Sentinels for errors.Is.
var (
	ErrNotFound     = NotFoundError{}
	ErrConflict     = ConflictError{}
	ErrUnauthorized = UnauthorizedError{}
)

var (
	errEventNotFound        = NotFoundError{Resource: "event"}
	errRegistrationNotFound = NotFoundError{Resource: "registration"}
	errAlreadyRegistered    = ConflictError{Reason: "already registered for this event"}
	errCapacityReached      = ConflictError{Reason: "event capacity reached"}
	errCapacityBelowActive  = ConflictError{Reason: "capacity is below the number of accepted registrations"}
	errCommitteeOnly        = UnauthorizedError{Reason: "committee role required"}
	errNotOwner             = UnauthorizedError{Reason: "not allowed to modify this registration"}
	errNoIdentity           = UnauthorizedError{Reason: "missing identity"}
)

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
