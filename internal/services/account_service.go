package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"fintrix/internal/core"
	"fintrix/internal/ledger"
	applog "fintrix/internal/log"

	"github.com/google/uuid"
)

// AccountService manages a user's accounts and the single-default rule.
type AccountService struct {
	store ledger.Store
	now   func() time.Time
}

func NewAccountService(store ledger.Store) *AccountService {
	return &AccountService{
		store: store,
		now:   time.Now,
	}
}

// CreateAccount inserts an account. A user's first account is always the
// default; a new default clears the flag on the user's other accounts in the
// same unit of work.
func (s *AccountService) CreateAccount(ctx context.Context, userID string, draft core.AccountDraft) (*core.Account, error) {
	if userID == "" {
		return nil, core.ErrUnauthorized
	}
	draft.Name = strings.TrimSpace(draft.Name)
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	typ, _ := core.ParseAccountType(string(draft.Type))

	now := s.now().UTC()
	a := &core.Account{
		ID:             uuid.NewString(),
		UserID:         userID,
		Name:           draft.Name,
		Type:           typ,
		Balance:        draft.Balance,
		InitialBalance: draft.Balance,
		IsDefault:      draft.IsDefault,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		n, err := tx.CountAccounts(ctx, userID)
		if err != nil {
			return err
		}
		if n == 0 {
			a.IsDefault = true
		}
		if a.IsDefault && n > 0 {
			if err := tx.ClearDefaultAccounts(ctx, userID); err != nil {
				return err
			}
		}
		return tx.InsertAccount(ctx, a)
	})
	if err != nil {
		return nil, core.Consistency("create account", err)
	}

	slog.InfoContext(ctx, "Account created",
		applog.FieldAccountID, a.ID,
		applog.FieldUserID, userID,
		"type", a.Type,
		"is_default", a.IsDefault)

	return a, nil
}

// SetDefaultAccount makes accountID the user's only default account.
func (s *AccountService) SetDefaultAccount(ctx context.Context, userID, accountID string) (*core.Account, error) {
	if userID == "" {
		return nil, core.ErrUnauthorized
	}
	var account *core.Account
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		if account, err = tx.GetAccount(ctx, userID, accountID); err != nil {
			return err
		}
		if account.IsDefault {
			return nil
		}
		if err := tx.ClearDefaultAccounts(ctx, userID); err != nil {
			return err
		}
		if err := tx.SetAccountDefault(ctx, userID, accountID); err != nil {
			return err
		}
		account.IsDefault = true
		return nil
	})
	if err != nil {
		return nil, core.Consistency("set default account", err)
	}
	return account, nil
}

func (s *AccountService) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	if userID == "" {
		return nil, core.ErrUnauthorized
	}
	var accounts []core.Account
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		accounts, err = tx.ListAccounts(ctx, userID)
		return err
	})
	if err != nil {
		return nil, core.Consistency("list accounts", err)
	}
	return accounts, nil
}
