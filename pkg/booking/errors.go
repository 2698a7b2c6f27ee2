package booking

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the booking service.
var (
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrRoleNotPermitted      = errors.New("role not permitted")
	ErrNotFound              = errors.New("not found")
	ErrOutOfRange            = errors.New("out of range")
	ErrStaleStatus           = errors.New("stale status precondition")
	ErrAlreadyRefunded       = errors.New("already refunded")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrInvalidStatus         = errors.New("invalid status")
	ErrInvalidRole           = errors.New("invalid role")
	ErrInvalidCoordinates    = errors.New("invalid coordinates")
	ErrMissingLocation       = errors.New("missing booking location")
	ErrNotAssignedProvider   = errors.New("not the assigned provider")
	ErrStartCodeMismatch     = errors.New("start code mismatch")
	ErrInvalidServiceConfig  = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
