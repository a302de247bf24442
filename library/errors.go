package library

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by LibraryManager wraps exactly one of these
// or the underlying storage error.
var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrExistingLoan        = errors.New("existing loan")
	ErrMissingLoan         = errors.New("missing loan")
	ErrExistingReservation = errors.New("existing reservation")
	ErrInvalidLoanLimit    = errors.New("loan limit reached")
	ErrValidation          = errors.New("invalid input")
)

// OperationError describes why a business operation was rejected or aborted.
type OperationError struct {
	Op     string // operation name, e.g. "lend"
	Entity string // "book", "member", "loan" or "reservation"
	ID     string // identifier of the offending entity
	Ref    string // related identifier, e.g. the reservation that must be claimed first
	Msg    string
	Err    error
}

func (e *OperationError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.ID == "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return fmt.Sprintf("%s: %s %s: %s", e.Op, e.Entity, e.ID, msg)
}

func (e *OperationError) Unwrap() error { return e.Err }

func opError(op, entity, id string, kind error, format string, args ...any) *OperationError {
	return &OperationError{Op: op, Entity: entity, ID: id, Msg: fmt.Sprintf(format, args...), Err: kind}
}

// IsRuleViolation reports whether err is a business-rule rejection rather than a
// storage or infrastructure failure.
func IsRuleViolation(err error) bool {
	for _, kind := range []error{
		ErrNotFound, ErrAlreadyExists, ErrExistingLoan, ErrMissingLoan,
		ErrExistingReservation, ErrInvalidLoanLimit, ErrValidation,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// Kind returns a short label for the error kind, used for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrExistingLoan):
		return "existing_loan"
	case errors.Is(err, ErrMissingLoan):
		return "missing_loan"
	case errors.Is(err, ErrExistingReservation):
		return "existing_reservation"
	case errors.Is(err, ErrInvalidLoanLimit):
		return "invalid_loan_limit"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "storage"
	}
}
