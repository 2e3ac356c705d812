package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrix/internal/core"
	"fintrix/internal/ledger"
	applog "fintrix/internal/log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionService applies transaction mutations together with their
// balance deltas. Each mutation is one unit of work against the store.
type TransactionService struct {
	store ledger.Store
	now   func() time.Time
}

func NewTransactionService(store ledger.Store) *TransactionService {
	return &TransactionService{
		store: store,
		now:   time.Now,
	}
}

// Create inserts a transaction and applies its delta to the owning account.
func (s *TransactionService) Create(ctx context.Context, userID string, draft core.TransactionDraft) (*core.Transaction, error) {
	if userID == "" {
		return nil, core.ErrUnauthorized
	}
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t := &core.Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	draft.Apply(t)

	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.GetAccount(ctx, userID, t.AccountID); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		return tx.AddToBalance(ctx, userID, t.AccountID, t.Delta())
	})
	if err != nil {
		return nil, core.Consistency("create transaction", err)
	}

	slog.InfoContext(ctx, "Transaction created",
		applog.FieldTransactionID, t.ID,
		applog.FieldUserID, userID,
		applog.FieldAccountID, t.AccountID,
		"type", t.Type,
		"amount", core.FormatAmount(t.Amount),
		"recurring", t.IsRecurring)

	return t, nil
}

// Update replaces the fields of an owned transaction and moves the balance by
// the difference between the new and the stored delta. When the account
// changes, the stored delta is reversed on the old account and the new delta
// applied to the new one.
func (s *TransactionService) Update(ctx context.Context, userID, id string, draft core.TransactionDraft) (*core.Transaction, error) {
	if userID == "" {
		return nil, core.ErrUnauthorized
	}
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var updated core.Transaction
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		current, err := tx.GetTransaction(ctx, userID, id)
		if err != nil {
			return err
		}
		if _, err := tx.GetAccount(ctx, userID, draft.AccountID); err != nil {
			return err
		}

		oldAccount, oldDelta := current.AccountID, current.Delta()
		updated = *current
		draft.Apply(&updated)
		updated.UpdatedAt = now

		if err := tx.UpdateTransaction(ctx, &updated); err != nil {
			return err
		}

		if oldAccount == updated.AccountID {
			net := updated.Delta().Sub(oldDelta)
			if net.IsZero() {
				return nil
			}
			return tx.AddToBalance(ctx, userID, oldAccount, net)
		}
		if err := tx.AddToBalance(ctx, userID, oldAccount, oldDelta.Neg()); err != nil {
			return err
		}
		return tx.AddToBalance(ctx, userID, updated.AccountID, updated.Delta())
	})
	if err != nil {
		return nil, core.Consistency("update transaction", err)
	}

	slog.InfoContext(ctx, "Transaction updated",
		applog.FieldTransactionID, id,
		applog.FieldUserID, userID,
		applog.FieldAccountID, updated.AccountID,
		"type", updated.Type,
		"amount", core.FormatAmount(updated.Amount))

	return &updated, nil
}

// DeleteMany removes the caller-owned subset of ids. Reversals are summed per
// account and written once per account. Ids the caller does not own are
// ignored. It returns the number of rows deleted.
func (s *TransactionService) DeleteMany(ctx context.Context, userID string, ids []string) (int64, error) {
	if userID == "" {
		return 0, core.ErrUnauthorized
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		owned, err := tx.ListTransactionsByIDs(ctx, userID, ids)
		if err != nil {
			return err
		}
		if len(owned) == 0 {
			return nil
		}

		ownedIDs := make([]string, 0, len(owned))
		reversals := make(map[string]decimal.Decimal)
		var accounts []string
		for _, t := range owned {
			ownedIDs = append(ownedIDs, t.ID)
			if _, ok := reversals[t.AccountID]; !ok {
				accounts = append(accounts, t.AccountID)
			}
			reversals[t.AccountID] = reversals[t.AccountID].Sub(t.Delta())
		}

		deleted, err = tx.DeleteTransactions(ctx, userID, ownedIDs)
		if err != nil {
			return err
		}
		if deleted != int64(len(ownedIDs)) {
			return fmt.Errorf("deleted %d of %d owned transactions", deleted, len(ownedIDs))
		}

		for _, accountID := range accounts {
			if reversals[accountID].IsZero() {
				continue
			}
			if err := tx.AddToBalance(ctx, userID, accountID, reversals[accountID]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, core.Consistency("delete transactions", err)
	}

	slog.InfoContext(ctx, "Transactions deleted",
		applog.FieldUserID, userID,
		"requested", len(ids),
		"deleted", deleted)

	return deleted, nil
}

func (s *TransactionService) Get(ctx context.Context, userID, id string) (*core.Transaction, error) {
	if userID == "" {
		return nil, core.ErrUnauthorized
	}
	var t *core.Transaction
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		t, err = tx.GetTransaction(ctx, userID, id)
		return err
	})
	if err != nil {
		return nil, core.Consistency("get transaction", err)
	}
	return t, nil
}

// ListByAccount returns the account and its transactions, newest first.
func (s *TransactionService) ListByAccount(ctx context.Context, userID, accountID string) (*core.Account, []core.Transaction, error) {
	if userID == "" {
		return nil, nil, core.ErrUnauthorized
	}
	var (
		account *core.Account
		txs     []core.Transaction
	)
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		if account, err = tx.GetAccount(ctx, userID, accountID); err != nil {
			return err
		}
		txs, err = tx.ListTransactions(ctx, userID, accountID)
		return err
	})
	if err != nil {
		return nil, nil, core.Consistency("list transactions", err)
	}
	return account, txs, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
