// Package services implements the business logic that coordinates across
// repositories and external systems: account lifecycle, email verification,
// and the subscription checkout flow. Handlers translate the errors defined
// here into HTTP responses; raw provider and transport errors never cross
// that boundary.
package services

import (
	"errors"
	"fmt"
)

// Authentication errors. Deliberately vague: the login path reports the same
// error for an unknown email and a wrong password so accounts cannot be
// enumerated.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("not found")

// State-conflict errors: invariant violations surfaced to the caller with a
// specific reason (HTTP 400).
var (
	ErrDuplicateEmail      = errors.New("a user with this email already exists")
	ErrInvalidRoleTenancy  = errors.New("platform owners must have no organization and organization admins must have one")
	ErrOrgCapacityExceeded = errors.New("organization has reached its active user limit")
	ErrAlreadyVerified     = errors.New("email is already verified")
	ErrCodeMismatch        = errors.New("verification code is incorrect")
	ErrCodeExpired         = errors.New("verification code has expired")
	ErrNoOrganization      = errors.New("user does not belong to an organization")
	ErrPlanNotFound        = errors.New("subscription plan not found")
)

// ExternalError wraps a failure of an external dependency (SMTP relay,
// payment gateway). Callers present a generic message to the client; the
// wrapped diagnostic is for server-side logs only.
type ExternalError struct {
	Op  string // "email dispatch", "payment initiate", "payment lookup"
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// IsExternal reports whether err originates from an external dependency.
func IsExternal(err error) bool {
	var ee *ExternalError
	return errors.As(err, &ee)
}
