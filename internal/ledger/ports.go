// Package ledger defines the storage contracts the services run against.
// Every user-facing method is scoped by userID; a row owned by someone else
// behaves exactly like a missing one and yields core.ErrNotFound.
package ledger

import (
	"context"
	"time"

	"fintrix/internal/core"

	"github.com/shopspring/decimal"
)

// Ports for outbound adapters.
type (
	AccountStore interface {
		GetAccount(ctx context.Context, userID, accountID string) (*core.Account, error)
		GetDefaultAccount(ctx context.Context, userID string) (*core.Account, error)
		ListAccounts(ctx context.Context, userID string) ([]core.Account, error)
		CountAccounts(ctx context.Context, userID string) (int, error)
		InsertAccount(ctx context.Context, a *core.Account) error
		ClearDefaultAccounts(ctx context.Context, userID string) error
		SetAccountDefault(ctx context.Context, userID, accountID string) error
		// AddToBalance applies delta with a single atomic increment.
		AddToBalance(ctx context.Context, userID, accountID string, delta decimal.Decimal) error
	}

	TransactionStore interface {
		GetTransaction(ctx context.Context, userID, id string) (*core.Transaction, error)
		ListTransactions(ctx context.Context, userID, accountID string) ([]core.Transaction, error)
		// ListTransactionsByIDs returns the subset of ids owned by userID.
		ListTransactionsByIDs(ctx context.Context, userID string, ids []string) ([]core.Transaction, error)
		InsertTransaction(ctx context.Context, t *core.Transaction) error
		UpdateTransaction(ctx context.Context, t *core.Transaction) error
		DeleteTransactions(ctx context.Context, userID string, ids []string) (int64, error)
		// MarkRecurringProcessed claims a due template for processedAt and
		// advances it to next. It fails with core.ErrNotDue when the template
		// is no longer due at processedAt, which makes it the guard against
		// two deliveries of the same unit both materializing an occurrence.
		MarkRecurringProcessed(ctx context.Context, userID, id string, processedAt, next time.Time) error
		// SumExpenses totals EXPENSE amounts on an account dated at or after from.
		SumExpenses(ctx context.Context, userID, accountID string, from time.Time) (decimal.Decimal, error)
	}

	BudgetStore interface {
		GetBudget(ctx context.Context, userID string) (*core.Budget, error)
		UpsertBudget(ctx context.Context, b *core.Budget) error
		SetBudgetAlertSent(ctx context.Context, budgetID string, at time.Time) error
	}

	UserStore interface {
		UpsertUser(ctx context.Context, u *core.User) error
		GetUser(ctx context.Context, userID string) (*core.User, error)
	}

	// Tx is the view of the store inside one atomic unit of work.
	Tx interface {
		AccountStore
		TransactionStore
		BudgetStore
		UserStore
	}

	// Store runs units of work and serves the cross-user scans used by the
	// background workers.
	Store interface {
		// WithinTx runs fn as one all-or-nothing unit. Any error returned by
		// fn, or a failed commit, leaves no trace of the unit.
		WithinTx(ctx context.Context, fn func(tx Tx) error) error
		// ListDueRecurring returns recurring COMPLETED templates that have not
		// ended and were never processed or whose next date is at or before now.
		ListDueRecurring(ctx context.Context, now time.Time, limit int) ([]core.Transaction, error)
		ListBudgets(ctx context.Context) ([]core.Budget, error)
		Ping(ctx context.Context) error
		Close() error
	}
)
