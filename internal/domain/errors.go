package domain

import "fmt"

// Error types for consistent error handling across the portal.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure calling the exchange backend.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrBackend carries a non-success backend response. The message is
// surfaced to the user verbatim when present.
type ErrBackend struct {
	Status  int
	Message string
}

func (e *ErrBackend) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend returned status %d", e.Status)
}

// ErrValidation indicates a validation error (bad input), detected
// locally with no network call.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates the requested transition conflicts with the
// resource's current state (e.g. resuming a non-pending operation).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrInvalidTransition indicates a wizard transition requested from the
// wrong stage.
type ErrInvalidTransition struct {
	From   WizardState
	Action string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot %s from stage %s", e.Action, e.From)
}

// ErrExpired indicates the operation's transfer window has closed.
type ErrExpired struct {
	OperationID string
}

func (e *ErrExpired) Error() string {
	return fmt.Sprintf("operation expired: %s", e.OperationID)
}

// ErrRateUnavailable indicates no exchange rate has been received yet.
type ErrRateUnavailable struct{}

func (e *ErrRateUnavailable) Error() string {
	return "exchange rate not available yet"
}
