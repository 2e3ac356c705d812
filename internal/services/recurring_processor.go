package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fintrix/internal/core"
	"fintrix/internal/jobs"
	"fintrix/internal/ledger"
	applog "fintrix/internal/log"

	"github.com/google/uuid"
)

// RecurringProcessor materializes one occurrence of a due recurring template.
// It re-checks dueness inside the unit of work, so a unit delivered twice
// produces at most one occurrence.
type RecurringProcessor struct {
	store ledger.Store
	now   func() time.Time
}

func NewRecurringProcessor(store ledger.Store) *RecurringProcessor {
	return &RecurringProcessor{
		store: store,
		now:   time.Now,
	}
}

// Process handles one fan-out unit. It reports whether an occurrence was
// created. A template that is no longer due is a silent no-op. A malformed
// payload or a template that vanished returns an error matching
// core.ErrInvalidPayload, which must not be retried; any other error is
// transient.
func (p *RecurringProcessor) Process(ctx context.Context, job *jobs.RecurringDue) (bool, error) {
	if err := job.Validate(); err != nil {
		return false, err
	}

	now := p.now().UTC()
	var occurrence *core.Transaction
	err := p.store.WithinTx(ctx, func(tx ledger.Tx) error {
		template, err := tx.GetTransaction(ctx, job.UserID, job.TransactionID)
		if errors.Is(err, core.ErrNotFound) {
			return unitError(job, "template not found")
		}
		if err != nil {
			return err
		}
		if !template.IsRecurring || template.RecurringInterval == "" {
			return unitError(job, "transaction is not recurring")
		}
		if !template.IsDue(now) {
			return nil
		}

		next := core.NextRecurringDate(now, template.RecurringInterval)
		if err := tx.MarkRecurringProcessed(ctx, job.UserID, template.ID, now, next); err != nil {
			return err
		}

		occ := &core.Transaction{
			ID:          uuid.NewString(),
			UserID:      template.UserID,
			AccountID:   template.AccountID,
			Type:        template.Type,
			Amount:      template.Amount,
			Description: template.Description,
			Date:        now,
			Category:    template.Category,
			Source:      template.Source,
			Status:      core.StatusCompleted,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertTransaction(ctx, occ); err != nil {
			return err
		}
		err = tx.AddToBalance(ctx, occ.UserID, occ.AccountID, occ.Delta())
		if errors.Is(err, core.ErrNotFound) {
			return unitError(job, "account not found")
		}
		if err != nil {
			return err
		}
		occurrence = occ
		return nil
	})

	switch {
	case errors.Is(err, core.ErrNotDue):
		err = nil
	case errors.Is(err, core.ErrInvalidPayload):
		slog.WarnContext(ctx, "Dropping recurring unit",
			applog.FieldTransactionID, job.TransactionID,
			applog.FieldUserID, job.UserID,
			applog.FieldError, err)
		return false, err
	case err != nil:
		return false, core.Consistency("process recurring transaction", err)
	}

	if occurrence == nil {
		slog.DebugContext(ctx, "Recurring transaction not due, skipping",
			applog.FieldTransactionID, job.TransactionID,
			applog.FieldUserID, job.UserID)
		return false, nil
	}

	slog.InfoContext(ctx, "Created transaction from recurring template",
		applog.FieldTransactionID, occurrence.ID,
		"template_id", job.TransactionID,
		applog.FieldUserID, job.UserID,
		applog.FieldAccountID, occurrence.AccountID,
		"amount", core.FormatAmount(occurrence.Amount),
		"attempt", job.Attempt)

	return true, nil
}

func unitError(job *jobs.RecurringDue, reason string) error {
	return &core.ScheduledUnitError{
		TransactionID: job.TransactionID,
		UserID:        job.UserID,
		Reason:        reason,
	}
}
