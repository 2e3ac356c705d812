package http

import (
	"errors"
	"net/http"
	"strings"

	"fintrix/internal/core"

	"github.com/shopspring/decimal"
)

// handleGetBudget returns the budget with month-to-date spend on the
// account named by ?accountId, or on the default account.
func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	accountID := strings.TrimSpace(r.URL.Query().Get("accountId"))

	status, err := s.svc.Budgets.CurrentBudget(r.Context(), uid, accountID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	OK(w, newBudgetDTO(*status))
}

func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	amount, err := req.Amount.positive("amount")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	budget, err := s.svc.Budgets.UpsertBudget(r.Context(), uid, amount)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	// A user without accounts still gets the budget back, with no spend.
	status, err := s.svc.Budgets.CurrentBudget(r.Context(), uid, "")
	switch {
	case errors.Is(err, core.ErrNotFound):
		status = &core.BudgetStatus{Budget: budget, CurrentExpenses: decimal.Zero}
	case err != nil:
		WriteError(w, r, err)
		return
	}
	OK(w, newBudgetDTO(*status))
}
