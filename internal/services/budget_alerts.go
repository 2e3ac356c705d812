package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintrix/internal/core"
	"fintrix/internal/ledger"
	applog "fintrix/internal/log"
	"fintrix/internal/notify"

	"github.com/shopspring/decimal"
)

const DefaultAlertThreshold = 80

// BudgetAlertEvaluator notifies users whose month-to-date spend on their
// default account reached the threshold, at most once per calendar month.
type BudgetAlertEvaluator struct {
	store     ledger.Store
	users     *UserService
	notifier  notify.Notifier
	threshold decimal.Decimal
	now       func() time.Time
}

// NewBudgetAlertEvaluator builds an evaluator alerting at thresholdPercent of
// the budget. A non-positive threshold selects DefaultAlertThreshold.
func NewBudgetAlertEvaluator(store ledger.Store, users *UserService, notifier notify.Notifier, thresholdPercent int) *BudgetAlertEvaluator {
	if thresholdPercent <= 0 {
		thresholdPercent = DefaultAlertThreshold
	}
	return &BudgetAlertEvaluator{
		store:     store,
		users:     users,
		notifier:  notifier,
		threshold: decimal.NewFromInt(int64(thresholdPercent)),
		now:       time.Now,
	}
}

// Run evaluates every budget once and returns the number of alerts sent. A
// failing budget is logged and does not stop the others.
func (e *BudgetAlertEvaluator) Run(ctx context.Context) (int, error) {
	now := e.now().UTC()
	budgets, err := e.store.ListBudgets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list budgets: %w", err)
	}

	sent, failed := 0, 0
	for _, b := range budgets {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		alerted, err := e.evaluate(ctx, b, now)
		if err != nil {
			failed++
			slog.ErrorContext(ctx, "Budget alert evaluation failed",
				"budget_id", b.ID,
				applog.FieldUserID, b.UserID,
				applog.FieldError, err)
			continue
		}
		if alerted {
			sent++
		}
	}

	slog.InfoContext(ctx, "Budget alert run complete",
		"budgets", len(budgets),
		"alerts_sent", sent,
		"failed", failed)

	if failed > 0 {
		return sent, fmt.Errorf("%d of %d budgets failed evaluation", failed, len(budgets))
	}
	return sent, nil
}

func (e *BudgetAlertEvaluator) evaluate(ctx context.Context, b core.Budget, now time.Time) (bool, error) {
	if !b.Amount.IsPositive() {
		return false, nil
	}
	if b.LastAlertSent != nil && core.SameMonth(*b.LastAlertSent, now) {
		return false, nil
	}

	status := core.BudgetStatus{Budget: &b}
	var account *core.Account
	err := e.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		if account, err = tx.GetDefaultAccount(ctx, b.UserID); err != nil {
			return err
		}
		status.AccountID = account.ID
		status.CurrentExpenses, err = tx.SumExpenses(ctx, b.UserID, account.ID, core.MonthStart(now))
		return err
	})
	if errors.Is(err, core.ErrNotFound) {
		slog.DebugContext(ctx, "No default account, skipping budget", applog.FieldUserID, b.UserID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	used := status.PercentageUsed()
	if used.LessThan(e.threshold) {
		return false, nil
	}

	user, err := e.users.GetUser(ctx, b.UserID)
	if err != nil {
		return false, fmt.Errorf("resolve recipient: %w", err)
	}

	msg := notify.BudgetAlertMessage(user.Email, core.BudgetAlert{
		UserName:       user.Name,
		BudgetAmount:   b.Amount,
		TotalExpenses:  status.CurrentExpenses,
		UsedPercentage: used,
		Remaining:      status.Remaining(),
		AccountName:    account.Name,
		Month:          now.Month(),
		Year:           now.Year(),
	})
	if err := e.notifier.Send(ctx, msg); err != nil {
		return false, fmt.Errorf("send alert: %w", err)
	}

	err = e.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return tx.SetBudgetAlertSent(ctx, b.ID, now)
	})
	if err != nil {
		return true, core.Consistency("stamp budget alert", err)
	}

	slog.InfoContext(ctx, "Budget alert sent",
		"budget_id", b.ID,
		applog.FieldUserID, b.UserID,
		"used_percentage", used.StringFixed(1))

	return true, nil
}
