package storage

import (
	"context"
	"strings"
)

const accountColumns = `id, user_id, name, type, balance_cents, initial_balance_cents, is_default, created_at, updated_at`

func scanAccount(row interface{ Scan(...interface{}) error }) (Account, error) {
	var i Account
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Name,
		&i.Type,
		&i.BalanceCents,
		&i.InitialBalanceCents,
		&i.IsDefault,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getAccount = `SELECT ` + accountColumns + ` FROM accounts WHERE id = ? AND user_id = ?`

func (q *Queries) GetAccount(ctx context.Context, id, userID string) (Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, getAccount, id, userID))
}

const getDefaultAccount = `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = ? AND is_default = 1`

func (q *Queries) GetDefaultAccount(ctx context.Context, userID string) (Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, getDefaultAccount, userID))
}

const listAccounts = `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = ? ORDER BY created_at DESC, id`

func (q *Queries) ListAccounts(ctx context.Context, userID string) ([]Account, error) {
	rows, err := q.db.QueryContext(ctx, listAccounts, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Account
	for rows.Next() {
		i, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const countAccounts = `SELECT COUNT(*) FROM accounts WHERE user_id = ?`

func (q *Queries) CountAccounts(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countAccounts, userID).Scan(&n)
	return n, err
}

const createAccount = `INSERT INTO accounts (` + accountColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateAccount(ctx context.Context, a Account) error {
	_, err := q.db.ExecContext(ctx, createAccount,
		a.ID,
		a.UserID,
		a.Name,
		a.Type,
		a.BalanceCents,
		a.InitialBalanceCents,
		a.IsDefault,
		a.CreatedAt,
		a.UpdatedAt,
	)
	return err
}

const clearDefaultAccounts = `UPDATE accounts SET is_default = 0, updated_at = ? WHERE user_id = ? AND is_default = 1`

func (q *Queries) ClearDefaultAccounts(ctx context.Context, userID string, updatedAt int64) error {
	_, err := q.db.ExecContext(ctx, clearDefaultAccounts, updatedAt, userID)
	return err
}

const setAccountDefault = `UPDATE accounts SET is_default = 1, updated_at = ? WHERE id = ? AND user_id = ?`

func (q *Queries) SetAccountDefault(ctx context.Context, id, userID string, updatedAt int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, setAccountDefault, updatedAt, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const addAccountBalance = `UPDATE accounts SET balance_cents = balance_cents + ?, updated_at = ? WHERE id = ? AND user_id = ?`

type AddAccountBalanceParams struct {
	DeltaCents int64
	UpdatedAt  int64
	ID         string
	UserID     string
}

func (q *Queries) AddAccountBalance(ctx context.Context, arg AddAccountBalanceParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, addAccountBalance, arg.DeltaCents, arg.UpdatedAt, arg.ID, arg.UserID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const transactionColumns = `id, user_id, account_id, type, amount_cents, description, date, category, source, receipt_url, status,
    is_recurring, recurring_interval, next_recurring_date, last_processed, recurring_end_date, created_at, updated_at`

func scanTransaction(row interface{ Scan(...interface{}) error }) (Transaction, error) {
	var i Transaction
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.AccountID,
		&i.Type,
		&i.AmountCents,
		&i.Description,
		&i.Date,
		&i.Category,
		&i.Source,
		&i.ReceiptUrl,
		&i.Status,
		&i.IsRecurring,
		&i.RecurringInterval,
		&i.NextRecurringDate,
		&i.LastProcessed,
		&i.RecurringEndDate,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func (q *Queries) listTransactions(ctx context.Context, query string, args ...interface{}) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		i, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ? AND user_id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id, userID string) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id, userID))
}

const listTransactionsByAccount = `SELECT ` + transactionColumns + ` FROM transactions
WHERE user_id = ? AND account_id = ?
ORDER BY date DESC, created_at DESC`

func (q *Queries) ListTransactionsByAccount(ctx context.Context, userID, accountID string) ([]Transaction, error) {
	return q.listTransactions(ctx, listTransactionsByAccount, userID, accountID)
}

const listTransactionsByIDs = `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ? AND id IN (/*SLICE:ids*/?)`

func (q *Queries) ListTransactionsByIDs(ctx context.Context, userID string, ids []string) ([]Transaction, error) {
	query, args := expandSlice(listTransactionsByIDs, []interface{}{userID}, ids)
	return q.listTransactions(ctx, query, args...)
}

const createTransaction = `INSERT INTO transactions (` + transactionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateTransaction(ctx context.Context, t Transaction) error {
	_, err := q.db.ExecContext(ctx, createTransaction,
		t.ID,
		t.UserID,
		t.AccountID,
		t.Type,
		t.AmountCents,
		t.Description,
		t.Date,
		t.Category,
		t.Source,
		t.ReceiptUrl,
		t.Status,
		t.IsRecurring,
		t.RecurringInterval,
		t.NextRecurringDate,
		t.LastProcessed,
		t.RecurringEndDate,
		t.CreatedAt,
		t.UpdatedAt,
	)
	return err
}

const updateTransaction = `UPDATE transactions SET
    account_id = ?, type = ?, amount_cents = ?, description = ?, date = ?, category = ?, source = ?,
    receipt_url = ?, status = ?, is_recurring = ?, recurring_interval = ?, next_recurring_date = ?,
    last_processed = ?, recurring_end_date = ?, updated_at = ?
WHERE id = ? AND user_id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, t Transaction) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateTransaction,
		t.AccountID,
		t.Type,
		t.AmountCents,
		t.Description,
		t.Date,
		t.Category,
		t.Source,
		t.ReceiptUrl,
		t.Status,
		t.IsRecurring,
		t.RecurringInterval,
		t.NextRecurringDate,
		t.LastProcessed,
		t.RecurringEndDate,
		t.UpdatedAt,
		t.ID,
		t.UserID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteTransactionsByIDs = `DELETE FROM transactions WHERE user_id = ? AND id IN (/*SLICE:ids*/?)`

func (q *Queries) DeleteTransactionsByIDs(ctx context.Context, userID string, ids []string) (int64, error) {
	query, args := expandSlice(deleteTransactionsByIDs, []interface{}{userID}, ids)
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markRecurringProcessed = `UPDATE transactions
SET last_processed = ?, next_recurring_date = ?, updated_at = ?
WHERE id = ? AND user_id = ? AND is_recurring = 1 AND status = 'COMPLETED'
  AND (last_processed IS NULL OR next_recurring_date <= ?)
  AND (recurring_end_date IS NULL OR recurring_end_date >= ?)`

type MarkRecurringProcessedParams struct {
	LastProcessed     int64
	NextRecurringDate int64
	ID                string
	UserID            string
}

func (q *Queries) MarkRecurringProcessed(ctx context.Context, arg MarkRecurringProcessedParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, markRecurringProcessed,
		arg.LastProcessed, arg.NextRecurringDate, arg.LastProcessed, arg.ID, arg.UserID,
		arg.LastProcessed, arg.LastProcessed)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const sumExpenses = `SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
WHERE user_id = ? AND account_id = ? AND type = 'EXPENSE' AND date >= ?`

func (q *Queries) SumExpenses(ctx context.Context, userID, accountID string, from int64) (int64, error) {
	var total int64
	err := q.db.QueryRowContext(ctx, sumExpenses, userID, accountID, from).Scan(&total)
	return total, err
}

const listDueRecurring = `SELECT ` + transactionColumns + ` FROM transactions
WHERE is_recurring = 1 AND status = 'COMPLETED'
  AND (last_processed IS NULL OR next_recurring_date <= ?)
  AND (recurring_end_date IS NULL OR recurring_end_date >= ?)
ORDER BY next_recurring_date, id
LIMIT ?`

func (q *Queries) ListDueRecurring(ctx context.Context, now int64, limit int64) ([]Transaction, error) {
	return q.listTransactions(ctx, listDueRecurring, now, now, limit)
}

const budgetColumns = `id, user_id, amount_cents, last_alert_sent, created_at, updated_at`

func scanBudget(row interface{ Scan(...interface{}) error }) (Budget, error) {
	var i Budget
	err := row.Scan(&i.ID, &i.UserID, &i.AmountCents, &i.LastAlertSent, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const getBudget = `SELECT ` + budgetColumns + ` FROM budgets WHERE user_id = ?`

func (q *Queries) GetBudget(ctx context.Context, userID string) (Budget, error) {
	return scanBudget(q.db.QueryRowContext(ctx, getBudget, userID))
}

const upsertBudget = `INSERT INTO budgets (` + budgetColumns + `) VALUES (?, ?, ?, NULL, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET amount_cents = excluded.amount_cents, updated_at = excluded.updated_at
RETURNING ` + budgetColumns

func (q *Queries) UpsertBudget(ctx context.Context, b Budget) (Budget, error) {
	return scanBudget(q.db.QueryRowContext(ctx, upsertBudget, b.ID, b.UserID, b.AmountCents, b.CreatedAt, b.UpdatedAt))
}

const listBudgets = `SELECT ` + budgetColumns + ` FROM budgets ORDER BY created_at, id`

func (q *Queries) ListBudgets(ctx context.Context) ([]Budget, error) {
	rows, err := q.db.QueryContext(ctx, listBudgets)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Budget
	for rows.Next() {
		i, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const setBudgetAlertSent = `UPDATE budgets SET last_alert_sent = ?, updated_at = ? WHERE id = ?`

func (q *Queries) SetBudgetAlertSent(ctx context.Context, id string, at int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, setBudgetAlertSent, at, at, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const upsertUser = `INSERT INTO users (id, email, name, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET email = excluded.email, name = excluded.name
RETURNING id, email, name, created_at`

func (q *Queries) UpsertUser(ctx context.Context, u User) (User, error) {
	var i User
	err := q.db.QueryRowContext(ctx, upsertUser, u.ID, u.Email, u.Name, u.CreatedAt).
		Scan(&i.ID, &i.Email, &i.Name, &i.CreatedAt)
	return i, err
}

const getUser = `SELECT id, email, name, created_at FROM users WHERE id = ?`

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	var i User
	err := q.db.QueryRowContext(ctx, getUser, id).Scan(&i.ID, &i.Email, &i.Name, &i.CreatedAt)
	return i, err
}

// expandSlice replaces the /*SLICE:...*/? marker with one placeholder per value.
func expandSlice(query string, args []interface{}, values []string) (string, []interface{}) {
	const marker = "/*SLICE:ids*/?"
	if len(values) == 0 {
		return strings.Replace(query, marker, "NULL", 1), args
	}
	query = strings.Replace(query, marker, strings.Repeat(",?", len(values))[1:], 1)
	for _, v := range values {
		args = append(args, v)
	}
	return query, args
}
