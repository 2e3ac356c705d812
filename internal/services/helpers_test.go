package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fintrix/internal/core"
	"fintrix/internal/jobs"
	"fintrix/internal/ledger"
	"fintrix/internal/storage"

	"github.com/shopspring/decimal"
)

var errPublish = errors.New("broker unavailable")

var testNow = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestStore(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// faultStore wraps a real store so tests can count or fail balance writes
// inside a unit of work.
type faultStore struct {
	ledger.Store
	failAdd error

	mu       sync.Mutex
	addCalls map[string]int
}

func newFaultStore(inner ledger.Store) *faultStore {
	return &faultStore{Store: inner, addCalls: make(map[string]int)}
}

func (s *faultStore) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.Store.WithinTx(ctx, func(tx ledger.Tx) error {
		return fn(&faultTx{Tx: tx, s: s})
	})
}

func (s *faultStore) balanceWrites(accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCalls[accountID]
}

type faultTx struct {
	ledger.Tx
	s *faultStore
}

func (t *faultTx) AddToBalance(ctx context.Context, userID, accountID string, delta decimal.Decimal) error {
	t.s.mu.Lock()
	t.s.addCalls[accountID]++
	t.s.mu.Unlock()
	if t.s.failAdd != nil {
		return t.s.failAdd
	}
	return t.Tx.AddToBalance(ctx, userID, accountID, delta)
}

// recordingPublisher captures published units.
type recordingPublisher struct {
	mu     sync.Mutex
	jobs   []string
	failOn string
	closed atomic.Bool
}

func (p *recordingPublisher) PublishRecurringDue(ctx context.Context, job *jobs.RecurringDue) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if job.TransactionID == p.failOn {
		return errPublish
	}
	p.jobs = append(p.jobs, job.UserID+"/"+job.TransactionID)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed.Store(true)
	return nil
}

func newAccount(t *testing.T, store ledger.Store, userID, name, opening string) *core.Account {
	t.Helper()
	svc := NewAccountService(store)
	svc.now = fixedClock(testNow)
	a, err := svc.CreateAccount(context.Background(), userID, core.AccountDraft{
		Name:    name,
		Type:    core.AccountPersonal,
		Balance: d(opening),
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return a
}

func balanceOf(t *testing.T, store ledger.Store, userID, accountID string) decimal.Decimal {
	t.Helper()
	var got decimal.Decimal
	err := store.WithinTx(context.Background(), func(tx ledger.Tx) error {
		a, err := tx.GetAccount(context.Background(), userID, accountID)
		if err != nil {
			return err
		}
		got = a.Balance
		return nil
	})
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	return got
}

func assertBalance(t *testing.T, store ledger.Store, userID, accountID, want string) {
	t.Helper()
	if got := balanceOf(t, store, userID, accountID); !got.Equal(d(want)) {
		t.Errorf("balance of %s = %s, want %s", accountID, got, want)
	}
}

func draft(accountID string, typ core.TransactionType, amount string) core.TransactionDraft {
	return core.TransactionDraft{
		AccountID: accountID,
		Type:      typ,
		Amount:    d(amount),
		Date:      testNow,
		Category:  "general",
	}
}
