package http

import (
	"net/http"

	"fintrix/internal/adapters"
	"fintrix/internal/core"
	applog "fintrix/internal/log"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	draft, err := req.toDraft()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	s.create(w, r, uid, draft)
}

// handleCreateExtracted accepts a receipt extractor's draft. It goes
// through the same Create path as any other input.
func (s *Server) handleCreateExtracted(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req adapters.ExtractedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	s.create(w, r, uid, adapters.ToTransactionDraft(req))
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, uid string, draft core.TransactionDraft) {
	tx, err := s.svc.Transactions.Create(r.Context(), uid, draft)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	s.logMutation(r, applog.OpCreate, uid, tx)
	Created(w, newTransactionDTO(*tx))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	tx, err := s.svc.Transactions.Get(r.Context(), uid, r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	OK(w, newTransactionDTO(*tx))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	draft, err := req.toDraft()
	if err != nil {
		WriteError(w, r, err)
		return
	}

	tx, err := s.svc.Transactions.Update(r.Context(), uid, r.PathValue("id"), draft)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	s.logMutation(r, applog.OpUpdate, uid, tx)
	OK(w, newTransactionDTO(*tx))
}

func (s *Server) handleDeleteTransactions(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req deleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	deleted, err := s.svc.Transactions.DeleteMany(r.Context(), uid, req.IDs)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if deleted > 0 {
		s.countMutation()
		applog.FromContext(r.Context()).WithComponent(applog.ComponentLedger).InfoContext(r.Context(), "Transactions deleted",
			applog.FieldUserID, uid,
			applog.FieldOperation, applog.OpDelete,
			"count", deleted)
	}
	OK(w, map[string]int64{"deleted": deleted})
}

func (s *Server) logMutation(r *http.Request, op, uid string, tx *core.Transaction) {
	s.countMutation()
	cents, _ := core.ToCents(tx.Amount)
	s.access.LogTransactionMutation(r.Context(), op, uid, tx.ID, tx.AccountID, string(tx.Type), cents)
}
