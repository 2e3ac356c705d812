package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fintrix/internal/core"
	"fintrix/internal/ledger"
	applog "fintrix/internal/log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BudgetService manages the single monthly budget of each user.
type BudgetService struct {
	store ledger.Store
	now   func() time.Time
}

func NewBudgetService(store ledger.Store) *BudgetService {
	return &BudgetService{
		store: store,
		now:   time.Now,
	}
}

// UpsertBudget creates or replaces the user's budget amount. The alert stamp
// of an existing budget is preserved.
func (s *BudgetService) UpsertBudget(ctx context.Context, userID string, amount decimal.Decimal) (*core.Budget, error) {
	if userID == "" {
		return nil, core.ErrUnauthorized
	}
	now := s.now().UTC()
	b := &core.Budget{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return tx.UpsertBudget(ctx, b)
	})
	if err != nil {
		return nil, core.Consistency("upsert budget", err)
	}

	slog.InfoContext(ctx, "Budget saved",
		"budget_id", b.ID,
		applog.FieldUserID, userID,
		"amount", core.FormatAmount(b.Amount))

	return b, nil
}

// CurrentBudget returns the user's budget (nil if none) and the month-to-date
// expenses on accountID, or on the default account when accountID is empty.
func (s *BudgetService) CurrentBudget(ctx context.Context, userID, accountID string) (*core.BudgetStatus, error) {
	if userID == "" {
		return nil, core.ErrUnauthorized
	}
	from := core.MonthStart(s.now())

	status := &core.BudgetStatus{CurrentExpenses: decimal.Zero}
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		b, err := tx.GetBudget(ctx, userID)
		switch {
		case errors.Is(err, core.ErrNotFound):
		case err != nil:
			return err
		default:
			status.Budget = b
		}

		var account *core.Account
		if accountID == "" {
			account, err = tx.GetDefaultAccount(ctx, userID)
		} else {
			account, err = tx.GetAccount(ctx, userID, accountID)
		}
		if err != nil {
			return err
		}
		status.AccountID = account.ID

		status.CurrentExpenses, err = tx.SumExpenses(ctx, userID, account.ID, from)
		return err
	})
	if err != nil {
		return nil, core.Consistency("current budget", err)
	}
	return status, nil
}
