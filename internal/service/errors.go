package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id uuid.UUID, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrJobNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "job")
}

func NewErrUserNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "user")
}

func NewErrAssignmentNotFound(jobID, workerID uuid.UUID) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("worker %s has not applied to job %s", workerID, jobID)}
}

// ErrConflict reports a duplicate or a transition the current state does
// not allow.
type ErrConflict struct {
	error
}

func NewErrConflict(format string, args ...any) *ErrConflict {
	return &ErrConflict{fmt.Errorf(format, args...)}
}

func NewErrAlreadyApplied(jobID, workerID uuid.UUID) *ErrConflict {
	return NewErrConflict("worker %s already applied to job %s", workerID, jobID)
}

func NewErrIllegalTransition(jobID uuid.UUID, reason string) *ErrConflict {
	return NewErrConflict("job %s: %s", jobID, reason)
}

type ErrValidation struct {
	error
}

func NewErrValidation(format string, args ...any) *ErrValidation {
	return &ErrValidation{fmt.Errorf(format, args...)}
}

// ErrGateway wraps a failed or unconfirmed payment gateway call.
type ErrGateway struct {
	error
}

func NewErrGateway(op string, err error) *ErrGateway {
	return &ErrGateway{fmt.Errorf("payment gateway %s failed: %w", op, err)}
}

func (e *ErrGateway) Unwrap() error {
	return e.error
}

type ErrForbidden struct {
	error
}

func NewErrForbidden(format string, args ...any) *ErrForbidden {
	return &ErrForbidden{fmt.Errorf(format, args...)}
}

type ErrUnauthorized struct {
	error
}

func NewErrInvalidCredentials() *ErrUnauthorized {
	return &ErrUnauthorized{fmt.Errorf("invalid email or password")}
}

// ErrInvalidEvent marks a webhook delivery that must not be retried as-is.
type ErrInvalidEvent struct {
	error
}

func NewErrInvalidEvent(err error) *ErrInvalidEvent {
	return &ErrInvalidEvent{err}
}
