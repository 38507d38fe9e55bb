package model

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the service layer for a domain
// rejection matches exactly one of these with errors.Is.
var (
	ErrNotFound                  = errors.New("not found")
	ErrDuplicateRegistration     = errors.New("identity already holds an active registration for this resource")
	ErrCapacityExceeded          = errors.New("resource is at capacity")
	ErrNotAcceptingRegistrations = errors.New("resource is not accepting registrations")
	ErrPastDeadline              = errors.New("registration deadline has passed")
	ErrInvalidTransition         = errors.New("invalid status transition")
	ErrNotEligible               = errors.New("not eligible")
	ErrInvalidInput              = errors.New("invalid input")
	ErrForbidden                 = errors.New("forbidden")
)

// DuplicateRegistrationError carries the registration that already holds the
// slot so callers can tell the registrant where to look.
type DuplicateRegistrationError struct {
	ResourceID string
	ExistingID string
}

func (e *DuplicateRegistrationError) Error() string {
	if e.ExistingID == "" {
		return fmt.Sprintf("already registered for resource %s", e.ResourceID)
	}
	return fmt.Sprintf("already registered for resource %s (registration %s)", e.ResourceID, e.ExistingID)
}

func (e *DuplicateRegistrationError) Is(target error) bool { return target == ErrDuplicateRegistration }

// TransitionError describes a rejected lifecycle edge.
type TransitionError struct {
	From  string
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s from status %q", e.Event, e.From)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// EligibilityError explains why a completion-gated action was refused.
type EligibilityError struct {
	Reason string
}

func (e *EligibilityError) Error() string { return "not eligible: " + e.Reason }

func (e *EligibilityError) Is(target error) bool { return target == ErrNotEligible }

// ValidationError reports a malformed field in a request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + " " + e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// Invalid is shorthand for a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string { return e.Entity + " " + e.ID + " not found" }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ResourceNotFound builds a NotFoundError for a resource id.
func ResourceNotFound(id string) error { return &NotFoundError{Entity: "resource", ID: id} }

// RegistrationNotFound builds a NotFoundError for a registration id.
func RegistrationNotFound(id string) error { return &NotFoundError{Entity: "registration", ID: id} }

// Code returns the stable machine-readable code for an error kind, used in
// API responses and metric labels.
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateRegistration):
		return "duplicate_registration"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrNotAcceptingRegistrations):
		return "not_accepting_registrations"
	case errors.Is(err, ErrPastDeadline):
		return "past_deadline"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal"
	}
}

// IsDomain reports whether err is one of the domain rejection kinds rather
// than an infrastructure failure.
func IsDomain(err error) bool {
	c := Code(err)
	return c != "internal" && c != "ok"
}
