// Package postgres is the ledger.Store backed by PostgreSQL through a pgx pool.
// Balance changes are single UPDATE ... SET balance_cents = balance_cents + $1
// statements, so writers to one account serialize on its row lock while
// writers to disjoint accounts proceed in parallel.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintrix/internal/core"
	"fintrix/internal/ledger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*Store)(nil)

// Open migrates the schema and connects a pool.
func Open(ctx context.Context, databaseURL string, maxConns int32) (*Store, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return core.Consistency("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return core.Consistency("commit transaction", err)
	}
	return nil
}

func (s *Store) ListDueRecurring(ctx context.Context, now time.Time, limit int) ([]core.Transaction, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE is_recurring AND status = 'COMPLETED'
		  AND (last_processed IS NULL OR next_recurring_date <= $1)
		  AND (recurring_end_date IS NULL OR recurring_end_date >= $1)
		ORDER BY next_recurring_date, id
		LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list due recurring: %w", err)
	}
	return collectTransactions(rows)
}

func (s *Store) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+budgetColumns+` FROM budgets ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func notFound(what, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, core.ErrNotFound)
	}
	return fmt.Errorf("get %s %s: %w", what, id, err)
}

func affected(what, id string, n int64) error {
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, core.ErrNotFound)
	}
	return nil
}

const accountColumns = `id, user_id, name, type, balance_cents, initial_balance_cents, is_default, created_at, updated_at`

func scanAccount(row pgx.Row) (core.Account, error) {
	var (
		a                    core.Account
		typ                  string
		balance, initBalance int64
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &typ, &balance, &initBalance, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	a.Type = core.AccountType(typ)
	a.Balance = core.FromCents(balance)
	a.InitialBalance = core.FromCents(initBalance)
	a.CreatedAt, a.UpdatedAt = a.CreatedAt.UTC(), a.UpdatedAt.UTC()
	return a, err
}

func (t *pgTx) GetAccount(ctx context.Context, userID, accountID string) (*core.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND user_id = $2`, accountID, userID))
	if err != nil {
		return nil, notFound("account", accountID, err)
	}
	return &a, nil
}

func (t *pgTx) GetDefaultAccount(ctx context.Context, userID string) (*core.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 AND is_default`, userID))
	if err != nil {
		return nil, notFound("default account for user", userID, err)
	}
	return &a, nil
}

func (t *pgTx) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *pgTx) CountAccounts(ctx context.Context, userID string) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func (t *pgTx) InsertAccount(ctx context.Context, a *core.Account) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.UserID, a.Name, string(a.Type),
		core.MustCents(a.Balance), core.MustCents(a.InitialBalance),
		a.IsDefault, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	slog.DebugContext(ctx, "Account saved to Postgres", "id", a.ID, "user_id", a.UserID, "is_default", a.IsDefault)
	return nil
}

func (t *pgTx) ClearDefaultAccounts(ctx context.Context, userID string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE accounts SET is_default = FALSE, updated_at = $1 WHERE user_id = $2 AND is_default`,
		time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("clear default accounts: %w", err)
	}
	return nil
}

func (t *pgTx) SetAccountDefault(ctx context.Context, userID, accountID string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts SET is_default = TRUE, updated_at = $1 WHERE id = $2 AND user_id = $3`,
		time.Now().UTC(), accountID, userID)
	if err != nil {
		return fmt.Errorf("set default account: %w", err)
	}
	return affected("account", accountID, tag.RowsAffected())
}

func (t *pgTx) AddToBalance(ctx context.Context, userID, accountID string, delta decimal.Decimal) error {
	cents, err := core.ToCents(delta)
	if err != nil {
		return fmt.Errorf("balance delta: %w", err)
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + $1, updated_at = $2 WHERE id = $3 AND user_id = $4`,
		cents, time.Now().UTC(), accountID, userID)
	if err != nil {
		return fmt.Errorf("add to balance: %w", err)
	}
	return affected("account", accountID, tag.RowsAffected())
}

const transactionColumns = `id, user_id, account_id, type, amount_cents, description, date, category, source, receipt_url,
	status, is_recurring, recurring_interval, next_recurring_date, last_processed, recurring_end_date, created_at, updated_at`

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		t               core.Transaction
		typ, status     string
		amount          int64
		interval        *string
		next, last, end *time.Time
	)
	err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &typ, &amount, &t.Description, &t.Date, &t.Category,
		&t.Source, &t.ReceiptURL, &status, &t.IsRecurring, &interval, &next, &last, &end, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.Type = core.TransactionType(typ)
	t.Status = core.TransactionStatus(status)
	t.Amount = core.FromCents(amount)
	if interval != nil {
		t.RecurringInterval = core.RecurringInterval(*interval)
	}
	t.NextRecurringDate, t.LastProcessed, t.RecurringEndDate = utcPtr(next), utcPtr(last), utcPtr(end)
	t.Date, t.CreatedAt, t.UpdatedAt = t.Date.UTC(), t.CreatedAt.UTC(), t.UpdatedAt.UTC()
	return t, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nullableInterval(iv core.RecurringInterval) *string {
	if iv == "" {
		return nil
	}
	s := string(iv)
	return &s
}

func collectTransactions(rows pgx.Rows) ([]core.Transaction, error) {
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTransaction locks the row until the unit ends so the delta read here
// is still current when the balance is adjusted.
func (t *pgTx) GetTransaction(ctx context.Context, userID, id string) (*core.Transaction, error) {
	tx, err := scanTransaction(t.tx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID))
	if err != nil {
		return nil, notFound("transaction", id, err)
	}
	return &tx, nil
}

func (t *pgTx) ListTransactions(ctx context.Context, userID, accountID string) ([]core.Transaction, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = $1 AND account_id = $2 ORDER BY date DESC, created_at DESC`, userID, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (t *pgTx) ListTransactionsByIDs(ctx context.Context, userID string, ids []string) ([]core.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	// Rows are locked in id order so overlapping batches cannot deadlock.
	rows, err := t.tx.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = $1 AND id = ANY($2) ORDER BY id FOR UPDATE`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("list transactions by id: %w", err)
	}
	return collectTransactions(rows)
}

func (t *pgTx) InsertTransaction(ctx context.Context, tx *core.Transaction) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		tx.ID, tx.UserID, tx.AccountID, string(tx.Type), core.MustCents(tx.Amount), tx.Description,
		tx.Date.UTC(), tx.Category, tx.Source, tx.ReceiptURL, string(tx.Status), tx.IsRecurring,
		nullableInterval(tx.RecurringInterval), utcPtr(tx.NextRecurringDate), utcPtr(tx.LastProcessed),
		utcPtr(tx.RecurringEndDate), tx.CreatedAt.UTC(), tx.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to Postgres",
		"id", tx.ID,
		"account_id", tx.AccountID,
		"type", tx.Type,
		"amount", tx.Amount.String())
	return nil
}

func (t *pgTx) UpdateTransaction(ctx context.Context, tx *core.Transaction) error {
	tag, err := t.tx.Exec(ctx, `UPDATE transactions SET
		account_id = $1, type = $2, amount_cents = $3, description = $4, date = $5, category = $6,
		source = $7, receipt_url = $8, status = $9, is_recurring = $10, recurring_interval = $11,
		next_recurring_date = $12, last_processed = $13, recurring_end_date = $14, updated_at = $15
		WHERE id = $16 AND user_id = $17`,
		tx.AccountID, string(tx.Type), core.MustCents(tx.Amount), tx.Description, tx.Date.UTC(), tx.Category,
		tx.Source, tx.ReceiptURL, string(tx.Status), tx.IsRecurring, nullableInterval(tx.RecurringInterval),
		utcPtr(tx.NextRecurringDate), utcPtr(tx.LastProcessed), utcPtr(tx.RecurringEndDate), tx.UpdatedAt.UTC(),
		tx.ID, tx.UserID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return affected("transaction", tx.ID, tag.RowsAffected())
}

func (t *pgTx) DeleteTransactions(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM transactions WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) MarkRecurringProcessed(ctx context.Context, userID, id string, processedAt, next time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE transactions
		SET last_processed = $1, next_recurring_date = $2, updated_at = $1
		WHERE id = $3 AND user_id = $4 AND is_recurring AND status = 'COMPLETED'
		  AND (last_processed IS NULL OR next_recurring_date <= $1)
		  AND (recurring_end_date IS NULL OR recurring_end_date >= $1)`,
		processedAt.UTC(), next.UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("mark recurring processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recurring transaction %s: %w", id, core.ErrNotDue)
	}
	return nil
}

func (t *pgTx) SumExpenses(ctx context.Context, userID, accountID string, from time.Time) (decimal.Decimal, error) {
	var cents int64
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount_cents), 0)::BIGINT FROM transactions
		WHERE user_id = $1 AND account_id = $2 AND type = 'EXPENSE' AND date >= $3`,
		userID, accountID, from.UTC()).Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses: %w", err)
	}
	return core.FromCents(cents), nil
}

const budgetColumns = `id, user_id, amount_cents, last_alert_sent, created_at, updated_at`

func scanBudget(row pgx.Row) (core.Budget, error) {
	var (
		b      core.Budget
		amount int64
		last   *time.Time
	)
	err := row.Scan(&b.ID, &b.UserID, &amount, &last, &b.CreatedAt, &b.UpdatedAt)
	b.Amount = core.FromCents(amount)
	b.LastAlertSent = utcPtr(last)
	b.CreatedAt, b.UpdatedAt = b.CreatedAt.UTC(), b.UpdatedAt.UTC()
	return b, err
}

func (t *pgTx) GetBudget(ctx context.Context, userID string) (*core.Budget, error) {
	b, err := scanBudget(t.tx.QueryRow(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE user_id = $1`, userID))
	if err != nil {
		return nil, notFound("budget for user", userID, err)
	}
	return &b, nil
}

func (t *pgTx) UpsertBudget(ctx context.Context, b *core.Budget) error {
	row := t.tx.QueryRow(ctx, `INSERT INTO budgets (`+budgetColumns+`) VALUES ($1, $2, $3, NULL, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET amount_cents = EXCLUDED.amount_cents, updated_at = EXCLUDED.updated_at
		RETURNING `+budgetColumns,
		b.ID, b.UserID, core.MustCents(b.Amount), b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	saved, err := scanBudget(row)
	if err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}
	*b = saved
	return nil
}

func (t *pgTx) SetBudgetAlertSent(ctx context.Context, budgetID string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE budgets SET last_alert_sent = $1, updated_at = $1 WHERE id = $2`, at.UTC(), budgetID)
	if err != nil {
		return fmt.Errorf("set budget alert sent: %w", err)
	}
	return affected("budget", budgetID, tag.RowsAffected())
}

func (t *pgTx) UpsertUser(ctx context.Context, u *core.User) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO users (id, email, name, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name
		RETURNING id, email, name, created_at`,
		u.ID, u.Email, u.Name, u.CreatedAt.UTC()).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return nil
}

func (t *pgTx) GetUser(ctx context.Context, userID string) (*core.User, error) {
	var u core.User
	err := t.tx.QueryRow(ctx, `SELECT id, email, name, created_at FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err != nil {
		return nil, notFound("user", userID, err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}
