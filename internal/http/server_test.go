package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fintrix/internal/cache"
	"fintrix/internal/core"
	applog "fintrix/internal/log"
	"fintrix/internal/services"
	"fintrix/internal/storage"
)

type testServer struct {
	t   *testing.T
	srv *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	svc := Services{
		Transactions: services.NewTransactionService(repo),
		Accounts:     services.NewAccountService(repo),
		Budgets:      services.NewBudgetService(repo),
		Users:        services.NewUserService(repo, cache.NewLRUCache[core.User](10, time.Minute)),
	}
	logger := applog.New(applog.Config{Output: io.Discard})
	srv := NewServer(":0", repo, svc, logger, Options{MutationsPerMinute: 1000})
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return &testServer{t: t, srv: srv}
}

// do sends body as JSON for user and decodes the Result envelope.
func (ts *testServer) do(method, path, user string, body any) (int, Result) {
	ts.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			ts.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.10:5000"
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rec, req)

	var res Result
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			ts.t.Fatalf("%s %s: bad envelope %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, res
}

// data re-decodes the envelope payload into dst.
func data[T any](t *testing.T, res Result) T {
	t.Helper()
	raw, err := json.Marshal(res.Data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal data %s: %v", raw, err)
	}
	return out
}

func (ts *testServer) createAccount(user, name, balance string) accountDTO {
	ts.t.Helper()
	code, res := ts.do(http.MethodPost, "/api/accounts", user, map[string]any{
		"name": name, "type": "personal", "balance": balance,
	})
	if code != http.StatusCreated || !res.Success {
		ts.t.Fatalf("create account: %d %+v", code, res)
	}
	return data[accountDTO](ts.t, res)
}

func (ts *testServer) balance(user, accountID string) string {
	ts.t.Helper()
	code, res := ts.do(http.MethodGet, "/api/accounts/"+accountID+"/transactions", user, nil)
	if code != http.StatusOK {
		ts.t.Fatalf("list account: %d %+v", code, res)
	}
	return data[struct {
		Account accountDTO `json:"account"`
	}](ts.t, res).Account.Balance
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		code, res := ts.do(http.MethodGet, path, "", nil)
		if code != http.StatusOK || !res.Success {
			t.Errorf("%s = %d %+v", path, code, res)
		}
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("db down") }

func TestReadyReportsStoreFailure(t *testing.T) {
	srv := NewServer(":0", failingPinger{}, Services{}, applog.New(applog.Config{Output: io.Discard}), Options{})
	defer srv.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d, want 503", rec.Code)
	}
}

func TestMissingUserIsUnauthorized(t *testing.T) {
	ts := newTestServer(t)

	code, res := ts.do(http.MethodGet, "/api/accounts", "", nil)
	if code != http.StatusUnauthorized || res.Success || res.Error == "" {
		t.Errorf("got %d %+v, want 401 failure envelope", code, res)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	const user = "user-1"

	acc := ts.createAccount(user, "Main", "100.00")
	if !acc.IsDefault {
		t.Error("first account should be default")
	}

	code, res := ts.do(http.MethodPost, "/api/transactions", user, map[string]any{
		"accountId": acc.ID, "type": "EXPENSE", "amount": "25.50",
		"date": "2024-01-10", "category": "groceries",
	})
	if code != http.StatusCreated {
		t.Fatalf("create = %d %+v", code, res)
	}
	tx := data[transactionDTO](t, res)
	if got := ts.balance(user, acc.ID); got != "74.50" {
		t.Errorf("balance after create = %s, want 74.50", got)
	}

	code, res = ts.do(http.MethodPut, "/api/transactions/"+tx.ID, user, map[string]any{
		"accountId": acc.ID, "type": "INCOME", "amount": 10,
		"date": "2024-01-10", "category": "refund",
	})
	if code != http.StatusOK {
		t.Fatalf("update = %d %+v", code, res)
	}
	if got := ts.balance(user, acc.ID); got != "110.00" {
		t.Errorf("balance after update = %s, want 110.00", got)
	}

	code, res = ts.do(http.MethodGet, "/api/transactions/"+tx.ID, "someone-else", nil)
	if code != http.StatusNotFound {
		t.Errorf("foreign get = %d, want 404", code)
	}

	code, res = ts.do(http.MethodPost, "/api/transactions/delete", user, map[string]any{"ids": []string{tx.ID, tx.ID}})
	if code != http.StatusOK {
		t.Fatalf("delete = %d %+v", code, res)
	}
	if n := data[map[string]int64](t, res)["deleted"]; n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if got := ts.balance(user, acc.ID); got != "100.00" {
		t.Errorf("balance after delete = %s, want 100.00", got)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	ts := newTestServer(t)
	const user = "user-1"
	acc := ts.createAccount(user, "Main", "0")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"malformed json", `{"amount":`, http.StatusBadRequest},
		{"unknown field", map[string]any{"accountId": acc.ID, "bogus": true}, http.StatusBadRequest},
		{"negative amount", map[string]any{"accountId": acc.ID, "type": "EXPENSE", "amount": "-5", "date": "2024-01-10", "category": "x"}, http.StatusUnprocessableEntity},
		{"three decimals", map[string]any{"accountId": acc.ID, "type": "EXPENSE", "amount": "1.234", "date": "2024-01-10", "category": "x"}, http.StatusUnprocessableEntity},
		{"bad date", map[string]any{"accountId": acc.ID, "type": "EXPENSE", "amount": "1", "date": "10/01/2024", "category": "x"}, http.StatusUnprocessableEntity},
		{"recurring without interval", map[string]any{"accountId": acc.ID, "type": "EXPENSE", "amount": "1", "date": "2024-01-10", "category": "x", "isRecurring": true}, http.StatusUnprocessableEntity},
		{"unknown account", map[string]any{"accountId": "missing", "type": "EXPENSE", "amount": "1", "date": "2024-01-10", "category": "x"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, res := ts.do(http.MethodPost, "/api/transactions", user, tt.body)
			if code != tt.want {
				t.Errorf("status = %d, want %d (%+v)", code, tt.want, res)
			}
			if res.Success || res.Error == "" {
				t.Errorf("envelope = %+v, want failure with message", res)
			}
		})
	}

	if got := ts.balance(user, acc.ID); got != "0.00" {
		t.Errorf("balance = %s, rejected requests must not mutate", got)
	}
}

func TestCreateFromExtractedDraft(t *testing.T) {
	ts := newTestServer(t)
	const user = "user-1"
	acc := ts.createAccount(user, "Main", "50")

	code, res := ts.do(http.MethodPost, "/api/transactions/extracted", user, map[string]any{
		"accountId": acc.ID,
		"draft": map[string]any{
			"amount": 12.5, "date": "2024-01-12", "merchantName": "Cafe", "category": "Food",
		},
	})
	if code != http.StatusCreated {
		t.Fatalf("extracted = %d %+v", code, res)
	}
	tx := data[transactionDTO](t, res)
	if tx.Type != "EXPENSE" || tx.Source != "Cafe" || tx.Category != "food" {
		t.Errorf("tx = %+v", tx)
	}
	if got := ts.balance(user, acc.ID); got != "37.50" {
		t.Errorf("balance = %s, want 37.50", got)
	}

	code, _ = ts.do(http.MethodPost, "/api/transactions/extracted", user, map[string]any{"accountId": acc.ID, "draft": map[string]any{}})
	if code != http.StatusUnprocessableEntity {
		t.Errorf("empty extraction = %d, want 422", code)
	}
}

func TestAccountsAndDefault(t *testing.T) {
	ts := newTestServer(t)
	const user = "user-1"
	ts.createAccount(user, "Main", "0")
	second := ts.createAccount(user, "Savings", "0")
	if second.IsDefault {
		t.Error("second account should not be default")
	}

	code, res := ts.do(http.MethodPost, "/api/accounts/"+second.ID+"/default", user, nil)
	if code != http.StatusOK || !data[accountDTO](t, res).IsDefault {
		t.Fatalf("set default = %d %+v", code, res)
	}

	_, res = ts.do(http.MethodGet, "/api/accounts", user, nil)
	for _, a := range data[[]accountDTO](t, res) {
		if (a.ID == second.ID) != a.IsDefault {
			t.Errorf("account %s default = %v", a.Name, a.IsDefault)
		}
	}
}

func TestBudgetEndpoints(t *testing.T) {
	ts := newTestServer(t)
	const user = "user-1"

	code, res := ts.do(http.MethodPut, "/api/budget", user, map[string]any{"amount": "500"})
	if code != http.StatusOK {
		t.Fatalf("upsert without account = %d %+v", code, res)
	}
	if b := data[budgetDTO](t, res); b.Budget == nil || b.Budget.Amount != "500.00" {
		t.Errorf("budget = %+v", b)
	}

	ts.createAccount(user, "Main", "0")
	code, res = ts.do(http.MethodGet, "/api/budget", user, nil)
	if code != http.StatusOK {
		t.Fatalf("get budget = %d %+v", code, res)
	}
	if b := data[budgetDTO](t, res); b.CurrentExpenses != "0.00" || b.Remaining != "500.00" {
		t.Errorf("status = %+v", b)
	}

	code, _ = ts.do(http.MethodPut, "/api/budget", user, map[string]any{"amount": "0"})
	if code != http.StatusUnprocessableEntity {
		t.Errorf("zero budget = %d, want 422", code)
	}
}

func TestInitUser(t *testing.T) {
	ts := newTestServer(t)

	code, res := ts.do(http.MethodPost, "/api/users/init", "user-1", map[string]any{"email": "ada@example.com", "name": "Ada"})
	if code != http.StatusOK || data[userDTO](t, res).Email != "ada@example.com" {
		t.Fatalf("init = %d %+v", code, res)
	}

	code, _ = ts.do(http.MethodPost, "/api/users/init", "user-1", map[string]any{"email": "not-an-email"})
	if code != http.StatusUnprocessableEntity {
		t.Errorf("bad email = %d, want 422", code)
	}
}

func TestMutationsAreRateLimited(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()
	srv := NewServer(":0", repo, Services{Accounts: services.NewAccountService(repo)},
		applog.New(applog.Config{Output: io.Discard}), Options{MutationsPerMinute: 2})
	ts := &testServer{t: t, srv: srv}
	defer srv.Shutdown(context.Background())

	body := map[string]any{"name": "A", "type": "WORK"}
	for i := 0; i < 2; i++ {
		if code, res := ts.do(http.MethodPost, "/api/accounts", "u", body); code != http.StatusCreated {
			t.Fatalf("request %d = %d %+v", i, code, res)
		}
	}
	code, res := ts.do(http.MethodPost, "/api/accounts", "u", body)
	if code != http.StatusTooManyRequests || res.Success {
		t.Errorf("third mutation = %d %+v, want 429", code, res)
	}
	if code, _ := ts.do(http.MethodGet, "/api/accounts", "u", nil); code != http.StatusOK {
		t.Errorf("reads are not limited, got %d", code)
	}
}
