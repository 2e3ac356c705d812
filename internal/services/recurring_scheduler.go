package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrix/internal/jobs"
	"fintrix/internal/ledger"
	applog "fintrix/internal/log"
)

// RecurringScheduler finds due recurring templates and publishes one unit
// per template. It does not mutate anything; the processor re-checks each
// unit before acting.
type RecurringScheduler struct {
	store     ledger.Store
	publisher jobs.Publisher
	batchSize int
	now       func() time.Time
}

func NewRecurringScheduler(store ledger.Store, publisher jobs.Publisher, batchSize int) *RecurringScheduler {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &RecurringScheduler{
		store:     store,
		publisher: publisher,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Run scans once and returns how many units were published. Zero due
// templates is a normal outcome. A failed publish is logged and the rest
// still go out; the returned error then summarizes the failures.
func (s *RecurringScheduler) Run(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.store.ListDueRecurring(ctx, now, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list due recurring transactions: %w", err)
	}

	if len(due) == 0 {
		slog.InfoContext(ctx, "No recurring transactions due", "now", now.Format(time.RFC3339))
		return 0, nil
	}
	if len(due) == s.batchSize {
		slog.WarnContext(ctx, "Recurring scan hit batch size, remainder waits for the next run",
			"batch_size", s.batchSize)
	}

	published, failed := 0, 0
	for _, t := range due {
		if ctx.Err() != nil {
			return published, ctx.Err()
		}
		err := s.publisher.PublishRecurringDue(ctx, &jobs.RecurringDue{
			TransactionID: t.ID,
			UserID:        t.UserID,
		})
		if err != nil {
			failed++
			slog.ErrorContext(ctx, "Failed to publish recurring unit",
				applog.FieldTransactionID, t.ID,
				applog.FieldUserID, t.UserID,
				applog.FieldError, err)
			continue
		}
		published++
	}

	slog.InfoContext(ctx, "Recurring scan complete",
		"due", len(due),
		"published", published,
		"failed", failed)

	if failed > 0 {
		return published, fmt.Errorf("%d of %d recurring units failed to publish", failed, len(due))
	}
	return published, nil
}
