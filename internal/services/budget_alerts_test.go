package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fintrix/internal/cache"
	"fintrix/internal/core"
	"fintrix/internal/ledger"
	"fintrix/internal/notify"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (n *fakeNotifier) Send(ctx context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

type alertFixture struct {
	store    ledger.Store
	account  *core.Account
	notifier *fakeNotifier
	users    *UserService
}

func newAlertFixture(t *testing.T) *alertFixture {
	t.Helper()
	store := newTestStore(t)
	users := NewUserService(store, cache.NewLRUCache[core.User](10, time.Minute))
	if _, err := users.InitUser(context.Background(), "user-1", "ada@example.com", "Ada"); err != nil {
		t.Fatalf("InitUser: %v", err)
	}
	acc := newAccount(t, store, "user-1", "Main", "0")
	if _, err := NewBudgetService(store).UpsertBudget(context.Background(), "user-1", d("1000")); err != nil {
		t.Fatalf("UpsertBudget: %v", err)
	}
	return &alertFixture{store: store, account: acc, notifier: &fakeNotifier{}, users: users}
}

func (f *alertFixture) spend(t *testing.T, amount string, date time.Time) {
	t.Helper()
	dr := draft(f.account.ID, core.Expense, amount)
	dr.Date = date
	if _, err := newTransactionService(f.store).Create(context.Background(), "user-1", dr); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func (f *alertFixture) run(t *testing.T, now time.Time) int {
	t.Helper()
	e := NewBudgetAlertEvaluator(f.store, f.users, f.notifier, 0)
	e.now = fixedClock(now)
	n, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return n
}

func TestBudgetAlerts_OncePerMonth(t *testing.T) {
	f := newAlertFixture(t)
	f.spend(t, "850", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))

	if n := f.run(t, time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC)); n != 1 {
		t.Fatalf("first run alerts = %d, want 1", n)
	}
	msg := f.notifier.sent[0]
	if msg.To != "ada@example.com" || msg.Alert.UserName != "Ada" {
		t.Errorf("recipient = %q / %q", msg.To, msg.Alert.UserName)
	}
	if !msg.Alert.UsedPercentage.Equal(d("85")) || !msg.Alert.Remaining.Equal(d("150")) || !msg.Alert.TotalExpenses.Equal(d("850")) {
		t.Errorf("alert = %+v", msg.Alert)
	}

	if n := f.run(t, time.Date(2024, 3, 20, 6, 0, 0, 0, time.UTC)); n != 0 {
		t.Errorf("same-month run alerts = %d, want 0", n)
	}

	f.spend(t, "900", time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC))
	if n := f.run(t, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)); n != 1 {
		t.Errorf("next-month run alerts = %d, want 1", n)
	}
	if len(f.notifier.sent) != 2 {
		t.Errorf("total alerts = %d, want 2", len(f.notifier.sent))
	}
}

func TestBudgetAlerts_BelowThresholdIsNotStamped(t *testing.T) {
	f := newAlertFixture(t)
	f.spend(t, "799.99", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))

	if n := f.run(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)); n != 0 {
		t.Fatalf("alerts = %d, want 0", n)
	}

	// Crossing the threshold later in the month still alerts.
	f.spend(t, "0.01", time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC))
	if n := f.run(t, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)); n != 1 {
		t.Errorf("alerts at exactly 80%% = %d, want 1", n)
	}
}

func TestBudgetAlerts_LastMonthSpendIgnored(t *testing.T) {
	f := newAlertFixture(t)
	f.spend(t, "950", time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC))

	if n := f.run(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)); n != 0 {
		t.Errorf("alerts = %d, want 0", n)
	}
}

func TestBudgetAlerts_NotifierFailureRetriesNextRun(t *testing.T) {
	f := newAlertFixture(t)
	f.spend(t, "900", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	f.notifier.err = errors.New("smtp unavailable")

	e := NewBudgetAlertEvaluator(f.store, f.users, f.notifier, 80)
	e.now = fixedClock(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	if n, err := e.Run(context.Background()); err == nil || n != 0 {
		t.Fatalf("Run = %d, %v; want 0 and an error", n, err)
	}

	f.notifier.err = nil
	if n := f.run(t, time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC)); n != 1 {
		t.Errorf("retry alerts = %d, want 1", n)
	}
}

func TestBudgetAlerts_UserWithoutAccountSkipped(t *testing.T) {
	store := newTestStore(t)
	users := NewUserService(store, nil)
	if _, err := NewBudgetService(store).UpsertBudget(context.Background(), "user-9", d("10")); err != nil {
		t.Fatalf("UpsertBudget: %v", err)
	}

	e := NewBudgetAlertEvaluator(store, users, &fakeNotifier{}, 80)
	if n, err := e.Run(context.Background()); err != nil || n != 0 {
		t.Errorf("Run = %d, %v; want 0, nil", n, err)
	}
}
