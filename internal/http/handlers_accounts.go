package http

import (
	"net/http"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	accounts, err := s.svc.Accounts.ListAccounts(r.Context(), uid)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	OK(w, newAccountDTOs(accounts))
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	draft, err := req.toDraft()
	if err != nil {
		WriteError(w, r, err)
		return
	}

	account, err := s.svc.Accounts.CreateAccount(r.Context(), uid, draft)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Created(w, newAccountDTO(*account))
}

func (s *Server) handleSetDefaultAccount(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	account, err := s.svc.Accounts.SetDefaultAccount(r.Context(), uid, r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	OK(w, newAccountDTO(*account))
}

func (s *Server) handleListAccountTransactions(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	account, txs, err := s.svc.Transactions.ListByAccount(r.Context(), uid, r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	OK(w, map[string]any{
		"account":      newAccountDTO(*account),
		"transactions": newTransactionDTOs(txs),
	})
}
