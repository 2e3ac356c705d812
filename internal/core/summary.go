package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetStatus is a budget together with month-to-date spend on one account.
type BudgetStatus struct {
	Budget          *Budget
	AccountID       string
	CurrentExpenses decimal.Decimal
}

// PercentageUsed returns spend as a percentage of the budget, or zero when
// there is no positive budget.
func (s BudgetStatus) PercentageUsed() decimal.Decimal {
	if s.Budget == nil || !s.Budget.Amount.IsPositive() {
		return decimal.Zero
	}
	return s.CurrentExpenses.Div(s.Budget.Amount).Mul(hundred)
}

func (s BudgetStatus) Remaining() decimal.Decimal {
	if s.Budget == nil {
		return decimal.Zero
	}
	return s.Budget.Amount.Sub(s.CurrentExpenses)
}

// BudgetAlert is the display data handed to the notifier.
type BudgetAlert struct {
	UserName       string
	BudgetAmount   decimal.Decimal
	TotalExpenses  decimal.Decimal
	UsedPercentage decimal.Decimal
	Remaining      decimal.Decimal
	AccountName    string
	Month          time.Month
	Year           int
}
