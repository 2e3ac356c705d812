package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	AccountPersonal   AccountType = "PERSONAL"
	AccountWork       AccountType = "WORK"
	AccountBusiness   AccountType = "BUSINESS"
	AccountSavings    AccountType = "SAVINGS"
	AccountInvestment AccountType = "INVESTMENT"

	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"

	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"

	Daily   RecurringInterval = "DAILY"
	Weekly  RecurringInterval = "WEEKLY"
	Monthly RecurringInterval = "MONTHLY"
	Yearly  RecurringInterval = "YEARLY"
)

const maxDescriptionLen = 500

type (
	AccountType       string
	TransactionType   string
	TransactionStatus string
	RecurringInterval string

	User struct {
		ID        string
		Email     string
		Name      string
		CreatedAt time.Time
	}

	Account struct {
		ID             string
		UserID         string
		Name           string
		Type           AccountType
		Balance        decimal.Decimal
		InitialBalance decimal.Decimal // opening balance, not backed by a transaction
		IsDefault      bool
		CreatedAt      time.Time
		UpdatedAt      time.Time
	}

	Transaction struct {
		ID                string
		UserID            string
		AccountID         string
		Type              TransactionType
		Amount            decimal.Decimal
		Description       string
		Date              time.Time
		Category          string
		Source            string
		ReceiptURL        string
		Status            TransactionStatus
		IsRecurring       bool
		RecurringInterval RecurringInterval
		NextRecurringDate *time.Time
		LastProcessed     *time.Time
		RecurringEndDate  *time.Time
		CreatedAt         time.Time
		UpdatedAt         time.Time
	}

	Budget struct {
		ID            string
		UserID        string
		Amount        decimal.Decimal
		LastAlertSent *time.Time
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	// AccountDraft carries the caller-supplied fields of a new account.
	AccountDraft struct {
		Name      string
		Type      AccountType
		Balance   decimal.Decimal
		IsDefault bool
	}

	// TransactionDraft carries the caller-supplied fields of Create and the
	// full replacement fields of Update.
	TransactionDraft struct {
		AccountID         string
		Type              TransactionType
		Amount            decimal.Decimal
		Description       string
		Date              time.Time
		Category          string
		Source            string
		ReceiptURL        string
		Status            TransactionStatus
		IsRecurring       bool
		RecurringInterval RecurringInterval
		RecurringEndDate  *time.Time
	}
)

// ParseAccountType accepts any casing of a known account type.
func ParseAccountType(s string) (AccountType, error) {
	t := AccountType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case AccountPersonal, AccountWork, AccountBusiness, AccountSavings, AccountInvestment:
		return t, nil
	}
	return "", invalid("type", "unknown account type %q", s)
}

func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case Income, Expense:
		return t, nil
	}
	return "", invalid("type", "unknown transaction type %q", s)
}

// ParseStatus defaults an empty status to COMPLETED.
func ParseStatus(s string) (TransactionStatus, error) {
	if strings.TrimSpace(s) == "" {
		return StatusCompleted, nil
	}
	st := TransactionStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", invalid("status", "unknown status %q", s)
}

// ParseInterval returns "" for an empty input.
func ParseInterval(s string) (RecurringInterval, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	iv := RecurringInterval(strings.ToUpper(strings.TrimSpace(s)))
	if _, err := GetIntervalStrategy(iv); err != nil {
		return "", invalid("recurringInterval", "unknown interval %q", s)
	}
	return iv, nil
}

// Delta is the signed contribution of a transaction to its account balance.
func Delta(t TransactionType, amount decimal.Decimal) decimal.Decimal {
	if t == Expense {
		return amount.Neg()
	}
	return amount
}

func (t Transaction) Delta() decimal.Decimal {
	return Delta(t.Type, t.Amount)
}

func (d AccountDraft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return invalid("name", "name is required")
	}
	if len(d.Name) > 100 {
		return invalid("name", "name too long (max 100 characters)")
	}
	if _, err := ParseAccountType(string(d.Type)); err != nil {
		return err
	}
	if _, err := ToCents(d.Balance); err != nil {
		return invalid("balance", "%v", err)
	}
	return nil
}

// Validate checks field shapes and recurrence consistency. It normalizes
// nothing; callers pass the draft through Normalize first.
func (d TransactionDraft) Validate() error {
	if strings.TrimSpace(d.AccountID) == "" {
		return invalid("accountId", "account is required")
	}
	if _, err := ParseTransactionType(string(d.Type)); err != nil {
		return err
	}
	if !d.Amount.IsPositive() {
		return invalid("amount", "amount must be greater than zero")
	}
	if _, err := ToCents(d.Amount); err != nil {
		return invalid("amount", "%v", err)
	}
	if d.Date.IsZero() {
		return invalid("date", "date is required")
	}
	if strings.TrimSpace(d.Category) == "" {
		return invalid("category", "category is required")
	}
	if len(d.Description) > maxDescriptionLen {
		return invalid("description", "description too long (max %d characters)", maxDescriptionLen)
	}
	if _, err := ParseStatus(string(d.Status)); err != nil {
		return err
	}
	if d.IsRecurring {
		if d.RecurringInterval == "" {
			return invalid("recurringInterval", "interval is required for recurring transactions")
		}
		if _, err := ParseInterval(string(d.RecurringInterval)); err != nil {
			return err
		}
		if d.RecurringEndDate != nil && d.RecurringEndDate.Before(d.Date) {
			return invalid("recurringEndDate", "end date must not precede the transaction date")
		}
	} else if d.RecurringInterval != "" {
		return invalid("recurringInterval", "interval given for a non-recurring transaction")
	}
	return nil
}

// Normalize upper-cases enums, defaults the status and truncates the date to UTC.
func (d TransactionDraft) Normalize() TransactionDraft {
	d.Type = TransactionType(strings.ToUpper(strings.TrimSpace(string(d.Type))))
	d.RecurringInterval = RecurringInterval(strings.ToUpper(strings.TrimSpace(string(d.RecurringInterval))))
	if st, err := ParseStatus(string(d.Status)); err == nil {
		d.Status = st
	}
	d.Date = d.Date.UTC()
	d.Category = strings.TrimSpace(d.Category)
	d.Description = strings.TrimSpace(d.Description)
	if d.RecurringEndDate != nil {
		end := d.RecurringEndDate.UTC()
		d.RecurringEndDate = &end
	}
	return d
}

// Apply copies the draft onto t and recomputes the schedule from the draft's date.
func (d TransactionDraft) Apply(t *Transaction) {
	t.AccountID = d.AccountID
	t.Type = d.Type
	t.Amount = d.Amount
	t.Description = d.Description
	t.Date = d.Date
	t.Category = d.Category
	t.Source = d.Source
	t.ReceiptURL = d.ReceiptURL
	t.Status = d.Status
	t.IsRecurring = d.IsRecurring
	if d.IsRecurring {
		next := NextRecurringDate(d.Date, d.RecurringInterval)
		t.RecurringInterval = d.RecurringInterval
		t.NextRecurringDate = &next
		t.RecurringEndDate = d.RecurringEndDate
	} else {
		t.RecurringInterval = ""
		t.NextRecurringDate = nil
		t.LastProcessed = nil
		t.RecurringEndDate = nil
	}
}

func (b Budget) Validate() error {
	if !b.Amount.IsPositive() {
		return invalid("amount", "budget must be greater than zero")
	}
	if _, err := ToCents(b.Amount); err != nil {
		return invalid("amount", "%v", err)
	}
	return nil
}

// MonthStart returns 00:00 UTC on the first day of t's month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// SameMonth reports whether a and b fall in the same UTC calendar month.
func SameMonth(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}
