package storage

import "database/sql"

type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt int64
}

type Account struct {
	ID                  string
	UserID              string
	Name                string
	Type                string
	BalanceCents        int64
	InitialBalanceCents int64
	IsDefault           bool
	CreatedAt           int64
	UpdatedAt           int64
}

type Transaction struct {
	ID                string
	UserID            string
	AccountID         string
	Type              string
	AmountCents       int64
	Description       string
	Date              int64
	Category          string
	Source            string
	ReceiptUrl        string
	Status            string
	IsRecurring       bool
	RecurringInterval sql.NullString
	NextRecurringDate sql.NullInt64
	LastProcessed     sql.NullInt64
	RecurringEndDate  sql.NullInt64
	CreatedAt         int64
	UpdatedAt         int64
}

type Budget struct {
	ID            string
	UserID        string
	AmountCents   int64
	LastAlertSent sql.NullInt64
	CreatedAt     int64
	UpdatedAt     int64
}
