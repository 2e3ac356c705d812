// Package jobs defines the fan-out contract between the recurring scheduler
// and the recurring processor. Delivery is at-least-once; handlers must be
// idempotent.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrix/internal/core"
)

// ErrPermanent marks a handler failure that must not be retried.
var ErrPermanent = errors.New("permanent job failure")

// RecurringDue is one fan-out unit: a recurring template that was due when scanned.
type RecurringDue struct {
	// JobID identifies one scheduling of the unit, for log correlation only.
	JobID         string `json:"job_id"`
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	// Attempt is 1 on first delivery.
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Validate reports a malformed payload as a terminal ScheduledUnitError.
func (j *RecurringDue) Validate() error {
	if j == nil {
		return &core.ScheduledUnitError{Reason: "empty payload"}
	}
	if j.TransactionID == "" || j.UserID == "" {
		return &core.ScheduledUnitError{
			TransactionID: j.TransactionID,
			UserID:        j.UserID,
			Reason:        "missing transactionId or userId",
		}
	}
	return nil
}

// Publisher defines the interface for publishing units to a queue.
type Publisher interface {
	PublishRecurringDue(ctx context.Context, job *RecurringDue) error
	Close() error
}

// Consumer defines the interface for consuming units from a queue.
type Consumer interface {
	// Start begins consuming and returns once workers are running.
	Start(ctx context.Context, handler Handler) error
	// Stop stops consuming and waits for in-flight units to complete.
	Stop(ctx context.Context) error
}

// Handler processes one unit. A nil return acknowledges it; an error for
// which IsPermanent is true drops it; any other error schedules a retry.
type Handler func(ctx context.Context, job *RecurringDue) error

// Permanent wraps err so IsPermanent reports true.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) || errors.Is(err, core.ErrInvalidPayload)
}

// RetryPolicy is exponential backoff with a bounded attempt count.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Backoff returns the delay before the retry that follows attempt:
// BaseDelay doubled per prior attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// ShouldRetry reports whether a unit that failed on attempt gets another delivery.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	return err != nil && !IsPermanent(err) && attempt < p.MaxAttempts
}
