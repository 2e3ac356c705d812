package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrConsistency    = errors.New("consistency failure")
	ErrInvalidPayload = errors.New("invalid scheduled unit payload")
	ErrUnauthorized   = errors.New("missing user identity")

	// ErrNotDue reports that a recurring template was already claimed for
	// its current period.
	ErrNotDue = errors.New("recurring transaction not due")
)

// ValidationError reports malformed input. No mutation happens when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConsistencyFailure wraps a storage error that aborted an atomic unit.
type ConsistencyFailure struct {
	Op  string
	Err error
}

func (e *ConsistencyFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConsistencyFailure) Unwrap() error { return e.Err }

func (e *ConsistencyFailure) Is(target error) bool { return target == ErrConsistency }

// Consistency wraps err as a ConsistencyFailure unless it already carries a
// domain classification that callers act on.
func Consistency(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConsistency) || errors.Is(err, ErrNotDue) || errors.Is(err, ErrInvalidPayload) {
		return err
	}
	return &ConsistencyFailure{Op: op, Err: err}
}

// ScheduledUnitError marks a fan-out unit that must not be retried.
type ScheduledUnitError struct {
	TransactionID string
	UserID        string
	Reason        string
}

func (e *ScheduledUnitError) Error() string {
	return fmt.Sprintf("scheduled unit %s/%s: %s", e.UserID, e.TransactionID, e.Reason)
}

func (e *ScheduledUnitError) Is(target error) bool { return target == ErrInvalidPayload }
