// Package worker hosts the background loops: the periodic runners that drive
// the recurring scheduler and the budget evaluator, and the handler that
// consumes recurring units.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"fintrix/internal/jobs"
	applog "fintrix/internal/log"
	"fintrix/internal/throttle"
)

// Processor materializes one recurring unit.
type Processor interface {
	Process(ctx context.Context, job *jobs.RecurringDue) (bool, error)
}

// RecurringHandler consumes recurring units: it rejects malformed payloads,
// bounds per-user load and hands the unit to the processor.
type RecurringHandler struct {
	processor Processor
	limiter   *throttle.Keyed
}

// NewRecurringHandler returns a handler. A nil limiter disables throttling.
func NewRecurringHandler(processor Processor, limiter *throttle.Keyed) *RecurringHandler {
	return &RecurringHandler{
		processor: processor,
		limiter:   limiter,
	}
}

// Handle implements jobs.Handler.
func (h *RecurringHandler) Handle(ctx context.Context, job *jobs.RecurringDue) error {
	if err := job.Validate(); err != nil {
		slog.WarnContext(ctx, "Rejecting malformed recurring unit", applog.FieldError, err)
		return jobs.Permanent(err)
	}

	slog.DebugContext(ctx, "Processing recurring unit",
		"job_id", job.JobID,
		applog.FieldTransactionID, job.TransactionID,
		applog.FieldUserID, job.UserID,
		"attempt", job.Attempt)

	if h.limiter != nil {
		release, err := h.limiter.Acquire(ctx, job.UserID)
		if err != nil {
			return fmt.Errorf("throttle user %s: %w", job.UserID, err)
		}
		defer release()
	}

	created, err := h.processor.Process(ctx, job)
	if err != nil {
		if jobs.IsPermanent(err) {
			return jobs.Permanent(err)
		}
		return fmt.Errorf("process recurring transaction %s: %w", job.TransactionID, err)
	}

	if !created {
		slog.DebugContext(ctx, "Recurring unit was a no-op",
			"job_id", job.JobID,
			applog.FieldTransactionID, job.TransactionID)
	}
	return nil
}
