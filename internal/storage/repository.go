package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fintrix/internal/core"
	"fintrix/internal/ledger"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Write units take the database lock up front so concurrent deltas queue
// behind each other instead of failing on lock upgrade.
const dsnOptions = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the pool opens so WAL mode is set on a migrated file.
	if _, err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WithinTx implements ledger.Store
func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Consistency("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{q: r.queries.WithTx(tx)}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return core.Consistency("commit transaction", err)
	}
	return nil
}

// ListDueRecurring implements ledger.Store
func (r *SQLiteRepository) ListDueRecurring(ctx context.Context, now time.Time, limit int) ([]core.Transaction, error) {
	rows, err := r.queries.ListDueRecurring(ctx, toMillis(now), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list due recurring: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCoreTransaction(row))
	}
	return out, nil
}

// ListBudgets implements ledger.Store
func (r *SQLiteRepository) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := r.queries.ListBudgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	out := make([]core.Budget, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCoreBudget(row))
	}
	return out, nil
}

// sqliteTx implements ledger.Tx over one *sql.Tx.
type sqliteTx struct {
	q *Queries
}

func notFound(what, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, core.ErrNotFound)
	}
	return fmt.Errorf("get %s %s: %w", what, id, err)
}

func (t *sqliteTx) GetAccount(ctx context.Context, userID, accountID string) (*core.Account, error) {
	row, err := t.q.GetAccount(ctx, accountID, userID)
	if err != nil {
		return nil, notFound("account", accountID, err)
	}
	a := toCoreAccount(row)
	return &a, nil
}

func (t *sqliteTx) GetDefaultAccount(ctx context.Context, userID string) (*core.Account, error) {
	row, err := t.q.GetDefaultAccount(ctx, userID)
	if err != nil {
		return nil, notFound("default account for user", userID, err)
	}
	a := toCoreAccount(row)
	return &a, nil
}

func (t *sqliteTx) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	rows, err := t.q.ListAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]core.Account, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCoreAccount(row))
	}
	return out, nil
}

func (t *sqliteTx) CountAccounts(ctx context.Context, userID string) (int, error) {
	n, err := t.q.CountAccounts(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return int(n), nil
}

func (t *sqliteTx) InsertAccount(ctx context.Context, a *core.Account) error {
	if err := t.q.CreateAccount(ctx, Account{
		ID:                  a.ID,
		UserID:              a.UserID,
		Name:                a.Name,
		Type:                string(a.Type),
		BalanceCents:        core.MustCents(a.Balance),
		InitialBalanceCents: core.MustCents(a.InitialBalance),
		IsDefault:           a.IsDefault,
		CreatedAt:           toMillis(a.CreatedAt),
		UpdatedAt:           toMillis(a.UpdatedAt),
	}); err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	slog.DebugContext(ctx, "Account saved to SQLite",
		"id", a.ID,
		"user_id", a.UserID,
		"is_default", a.IsDefault)

	return nil
}

func (t *sqliteTx) ClearDefaultAccounts(ctx context.Context, userID string) error {
	if err := t.q.ClearDefaultAccounts(ctx, userID, toMillis(time.Now())); err != nil {
		return fmt.Errorf("clear default accounts: %w", err)
	}
	return nil
}

func (t *sqliteTx) SetAccountDefault(ctx context.Context, userID, accountID string) error {
	n, err := t.q.SetAccountDefault(ctx, accountID, userID, toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("set default account: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", accountID, core.ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) AddToBalance(ctx context.Context, userID, accountID string, delta decimal.Decimal) error {
	cents, err := core.ToCents(delta)
	if err != nil {
		return fmt.Errorf("balance delta: %w", err)
	}
	n, err := t.q.AddAccountBalance(ctx, AddAccountBalanceParams{
		DeltaCents: cents,
		UpdatedAt:  toMillis(time.Now()),
		ID:         accountID,
		UserID:     userID,
	})
	if err != nil {
		return fmt.Errorf("add to balance: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", accountID, core.ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) GetTransaction(ctx context.Context, userID, id string) (*core.Transaction, error) {
	row, err := t.q.GetTransaction(ctx, id, userID)
	if err != nil {
		return nil, notFound("transaction", id, err)
	}
	tx := toCoreTransaction(row)
	return &tx, nil
}

func (t *sqliteTx) ListTransactions(ctx context.Context, userID, accountID string) ([]core.Transaction, error) {
	rows, err := t.q.ListTransactionsByAccount(ctx, userID, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return toCoreTransactions(rows), nil
}

func (t *sqliteTx) ListTransactionsByIDs(ctx context.Context, userID string, ids []string) ([]core.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := t.q.ListTransactionsByIDs(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("list transactions by id: %w", err)
	}
	return toCoreTransactions(rows), nil
}

func (t *sqliteTx) InsertTransaction(ctx context.Context, tx *core.Transaction) error {
	if err := t.q.CreateTransaction(ctx, fromCoreTransaction(tx)); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", tx.ID,
		"account_id", tx.AccountID,
		"type", tx.Type,
		"amount", tx.Amount.String())

	return nil
}

func (t *sqliteTx) UpdateTransaction(ctx context.Context, tx *core.Transaction) error {
	n, err := t.q.UpdateTransaction(ctx, fromCoreTransaction(tx))
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", tx.ID, core.ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) DeleteTransactions(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := t.q.DeleteTransactionsByIDs(ctx, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	return n, nil
}

func (t *sqliteTx) MarkRecurringProcessed(ctx context.Context, userID, id string, processedAt, next time.Time) error {
	n, err := t.q.MarkRecurringProcessed(ctx, MarkRecurringProcessedParams{
		LastProcessed:     toMillis(processedAt),
		NextRecurringDate: toMillis(next),
		ID:                id,
		UserID:            userID,
	})
	if err != nil {
		return fmt.Errorf("mark recurring processed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("recurring transaction %s: %w", id, core.ErrNotDue)
	}
	return nil
}

func (t *sqliteTx) SumExpenses(ctx context.Context, userID, accountID string, from time.Time) (decimal.Decimal, error) {
	cents, err := t.q.SumExpenses(ctx, userID, accountID, toMillis(from))
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses: %w", err)
	}
	return core.FromCents(cents), nil
}

func (t *sqliteTx) GetBudget(ctx context.Context, userID string) (*core.Budget, error) {
	row, err := t.q.GetBudget(ctx, userID)
	if err != nil {
		return nil, notFound("budget for user", userID, err)
	}
	b := toCoreBudget(row)
	return &b, nil
}

func (t *sqliteTx) UpsertBudget(ctx context.Context, b *core.Budget) error {
	row, err := t.q.UpsertBudget(ctx, Budget{
		ID:          b.ID,
		UserID:      b.UserID,
		AmountCents: core.MustCents(b.Amount),
		CreatedAt:   toMillis(b.CreatedAt),
		UpdatedAt:   toMillis(b.UpdatedAt),
	})
	if err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}
	*b = toCoreBudget(row)
	return nil
}

func (t *sqliteTx) SetBudgetAlertSent(ctx context.Context, budgetID string, at time.Time) error {
	n, err := t.q.SetBudgetAlertSent(ctx, budgetID, toMillis(at))
	if err != nil {
		return fmt.Errorf("set budget alert sent: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("budget %s: %w", budgetID, core.ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) UpsertUser(ctx context.Context, u *core.User) error {
	row, err := t.q.UpsertUser(ctx, User{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: toMillis(u.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	*u = toCoreUser(row)
	return nil
}

func (t *sqliteTx) GetUser(ctx context.Context, userID string) (*core.User, error) {
	row, err := t.q.GetUser(ctx, userID)
	if err != nil {
		return nil, notFound("user", userID, err)
	}
	u := toCoreUser(row)
	return &u, nil
}
