package storage

import (
	"database/sql"
	"time"

	"fintrix/internal/core"
)

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func toCoreAccount(a Account) core.Account {
	return core.Account{
		ID:             a.ID,
		UserID:         a.UserID,
		Name:           a.Name,
		Type:           core.AccountType(a.Type),
		Balance:        core.FromCents(a.BalanceCents),
		InitialBalance: core.FromCents(a.InitialBalanceCents),
		IsDefault:      a.IsDefault,
		CreatedAt:      fromMillis(a.CreatedAt),
		UpdatedAt:      fromMillis(a.UpdatedAt),
	}
}

func toCoreTransaction(t Transaction) core.Transaction {
	return core.Transaction{
		ID:                t.ID,
		UserID:            t.UserID,
		AccountID:         t.AccountID,
		Type:              core.TransactionType(t.Type),
		Amount:            core.FromCents(t.AmountCents),
		Description:       t.Description,
		Date:              fromMillis(t.Date),
		Category:          t.Category,
		Source:            t.Source,
		ReceiptURL:        t.ReceiptUrl,
		Status:            core.TransactionStatus(t.Status),
		IsRecurring:       t.IsRecurring,
		RecurringInterval: core.RecurringInterval(t.RecurringInterval.String),
		NextRecurringDate: timePtr(t.NextRecurringDate),
		LastProcessed:     timePtr(t.LastProcessed),
		RecurringEndDate:  timePtr(t.RecurringEndDate),
		CreatedAt:         fromMillis(t.CreatedAt),
		UpdatedAt:         fromMillis(t.UpdatedAt),
	}
}

func toCoreTransactions(rows []Transaction) []core.Transaction {
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCoreTransaction(row))
	}
	return out
}

func fromCoreTransaction(t *core.Transaction) Transaction {
	return Transaction{
		ID:                t.ID,
		UserID:            t.UserID,
		AccountID:         t.AccountID,
		Type:              string(t.Type),
		AmountCents:       core.MustCents(t.Amount),
		Description:       t.Description,
		Date:              toMillis(t.Date),
		Category:          t.Category,
		Source:            t.Source,
		ReceiptUrl:        t.ReceiptURL,
		Status:            string(t.Status),
		IsRecurring:       t.IsRecurring,
		RecurringInterval: sql.NullString{String: string(t.RecurringInterval), Valid: t.RecurringInterval != ""},
		NextRecurringDate: nullMillis(t.NextRecurringDate),
		LastProcessed:     nullMillis(t.LastProcessed),
		RecurringEndDate:  nullMillis(t.RecurringEndDate),
		CreatedAt:         toMillis(t.CreatedAt),
		UpdatedAt:         toMillis(t.UpdatedAt),
	}
}

func toCoreBudget(b Budget) core.Budget {
	return core.Budget{
		ID:            b.ID,
		UserID:        b.UserID,
		Amount:        core.FromCents(b.AmountCents),
		LastAlertSent: timePtr(b.LastAlertSent),
		CreatedAt:     fromMillis(b.CreatedAt),
		UpdatedAt:     fromMillis(b.UpdatedAt),
	}
}

func toCoreUser(u User) core.User {
	return core.User{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: fromMillis(u.CreatedAt),
	}
}
