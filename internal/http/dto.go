package http

import (
	"time"

	"fintrix/internal/core"
)

// Wire shapes. Amounts are decimal strings with two places so clients never
// see float rounding; times are RFC 3339 UTC.

type accountDTO struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	Balance        string    `json:"balance"`
	InitialBalance string    `json:"initialBalance"`
	IsDefault      bool      `json:"isDefault"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type transactionDTO struct {
	ID                string     `json:"id"`
	AccountID         string     `json:"accountId"`
	Type              string     `json:"type"`
	Amount            string     `json:"amount"`
	Description       string     `json:"description,omitempty"`
	Date              time.Time  `json:"date"`
	Category          string     `json:"category"`
	Source            string     `json:"source,omitempty"`
	ReceiptURL        string     `json:"receiptUrl,omitempty"`
	Status            string     `json:"status"`
	IsRecurring       bool       `json:"isRecurring"`
	RecurringInterval string     `json:"recurringInterval,omitempty"`
	NextRecurringDate *time.Time `json:"nextRecurringDate,omitempty"`
	LastProcessed     *time.Time `json:"lastProcessed,omitempty"`
	RecurringEndDate  *time.Time `json:"recurringEndDate,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type budgetAmountDTO struct {
	ID            string     `json:"id"`
	Amount        string     `json:"amount"`
	LastAlertSent *time.Time `json:"lastAlertSent,omitempty"`
}

type budgetDTO struct {
	Budget          *budgetAmountDTO `json:"budget"`
	AccountID       string           `json:"accountId,omitempty"`
	CurrentExpenses string           `json:"currentExpenses"`
	PercentageUsed  string           `json:"percentageUsed"`
	Remaining       string           `json:"remaining"`
}

type userDTO struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func newAccountDTO(a core.Account) accountDTO {
	return accountDTO{
		ID:             a.ID,
		Name:           a.Name,
		Type:           string(a.Type),
		Balance:        core.FormatAmount(a.Balance),
		InitialBalance: core.FormatAmount(a.InitialBalance),
		IsDefault:      a.IsDefault,
		CreatedAt:      a.CreatedAt.UTC(),
		UpdatedAt:      a.UpdatedAt.UTC(),
	}
}

func newAccountDTOs(accounts []core.Account) []accountDTO {
	out := make([]accountDTO, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, newAccountDTO(a))
	}
	return out
}

func newTransactionDTO(t core.Transaction) transactionDTO {
	return transactionDTO{
		ID:                t.ID,
		AccountID:         t.AccountID,
		Type:              string(t.Type),
		Amount:            core.FormatAmount(t.Amount),
		Description:       t.Description,
		Date:              t.Date.UTC(),
		Category:          t.Category,
		Source:            t.Source,
		ReceiptURL:        t.ReceiptURL,
		Status:            string(t.Status),
		IsRecurring:       t.IsRecurring,
		RecurringInterval: string(t.RecurringInterval),
		NextRecurringDate: t.NextRecurringDate,
		LastProcessed:     t.LastProcessed,
		RecurringEndDate:  t.RecurringEndDate,
		CreatedAt:         t.CreatedAt.UTC(),
		UpdatedAt:         t.UpdatedAt.UTC(),
	}
}

func newTransactionDTOs(txs []core.Transaction) []transactionDTO {
	out := make([]transactionDTO, 0, len(txs))
	for _, t := range txs {
		out = append(out, newTransactionDTO(t))
	}
	return out
}

func newBudgetDTO(s core.BudgetStatus) budgetDTO {
	dto := budgetDTO{
		AccountID:       s.AccountID,
		CurrentExpenses: core.FormatAmount(s.CurrentExpenses),
		PercentageUsed:  s.PercentageUsed().StringFixed(1),
		Remaining:       core.FormatAmount(s.Remaining()),
	}
	if s.Budget != nil {
		dto.Budget = &budgetAmountDTO{
			ID:            s.Budget.ID,
			Amount:        core.FormatAmount(s.Budget.Amount),
			LastAlertSent: s.Budget.LastAlertSent,
		}
	}
	return dto
}

func newUserDTO(u core.User) userDTO {
	return userDTO{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt.UTC()}
}
