package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/planeja-api-go/internal/domain"
	"github.com/boddenberg/planeja-api-go/internal/handler"
	"github.com/boddenberg/planeja-api-go/internal/infra/cache"
	"github.com/boddenberg/planeja-api-go/internal/infra/observability"
	"github.com/boddenberg/planeja-api-go/internal/infra/resilience"
	"github.com/boddenberg/planeja-api-go/internal/infra/sqlite"
	"github.com/boddenberg/planeja-api-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func TestHealthz(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, nil, observability.NewMetrics(), handler.Options{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, nil, observability.NewMetrics(), handler.Options{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, nil, observability.NewMetrics(), handler.Options{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestV1_UnavailableWithoutAuthService(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, nil, observability.NewMetrics(), handler.Options{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/wallets", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestBulkhead_RejectsWhenFull(t *testing.T) {
	bh := resilience.NewBulkhead(1)
	if err := bh.TryAcquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer bh.Release()

	router := handler.NewRouter(handler.Services{}, nil, observability.NewMetrics(), handler.Options{Bulkhead: bh}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/metrics/ledger", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}

	// Operational endpoints sit outside the bulkhead.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz: expected 200, got %d", rec.Code)
	}
}

// ============================================================
// Full API flow against a real SQLite file
// ============================================================

type api struct {
	t       *testing.T
	handler http.Handler
}

func newAPI(t *testing.T) *api {
	t.Helper()

	logger := zap.NewNop()
	store, err := sqlite.Open(context.Background(),
		sqlite.Config{Path: filepath.Join(t.TempDir(), "api.db"), BusyTimeout: 5 * time.Second},
		resilience.NewCircuitBreaker("sqlite-handler-test", logger),
		resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond},
		logger,
	)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	users := cache.New[bool](time.Minute)
	t.Cleanup(users.Close)

	now := func() time.Time { return time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC) }
	metrics := observability.NewMetrics()
	ledger := service.NewLedger(store, metrics, now, logger)

	svcs := handler.Services{
		Auth: service.NewAuthService(store, users, metrics, service.AuthConfig{
			JWTSecret:  "handler-test-secret",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: time.Hour,
			BcryptCost: bcrypt.MinCost,
		}, logger),
		Wallets:    service.NewWalletService(store, now, logger),
		Accounts:   service.NewAccountService(store, metrics, now, logger),
		Categories: service.NewCategoryService(store, now, logger),
		Ledger:     ledger,
		Dashboard:  service.NewDashboardService(ledger, store),
	}

	return &api{
		t: t,
		handler: handler.NewRouter(svcs, store, metrics, handler.Options{
			AllowedOrigins: []string{"http://localhost:3000"},
			Bulkhead:       resilience.NewBulkhead(10),
		}, logger),
	}
}

// do sends body as JSON and decodes the response into out when out is non-nil.
func (a *api) do(method, path, token string, body any, out any) int {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	if out != nil {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			a.t.Fatalf("%s %s: decode response (status %d): %v", method, path, rec.Code, err)
		}
	}
	return rec.Code
}

func (a *api) register(email string) domain.AuthResponse {
	a.t.Helper()
	var resp domain.AuthResponse
	code := a.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name": "Maria", "email": email, "password": "secret123",
	}, &resp)
	if code != http.StatusCreated {
		a.t.Fatalf("register: expected 201, got %d", code)
	}
	return resp
}

type errorBody struct {
	StatusCode int                 `json:"statusCode"`
	Details    []string            `json:"details"`
	Fields     map[string][]string `json:"fields"`
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	a := newAPI(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/wallets", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			a.handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestAPI_LedgerFlow(t *testing.T) {
	a := newAPI(t)
	token := a.register("maria@example.com").Token

	var wallet domain.Wallet
	if code := a.do(http.MethodPost, "/v1/wallets", token, map[string]any{"name": "Pessoal"}, &wallet); code != http.StatusCreated {
		t.Fatalf("create wallet: expected 201, got %d", code)
	}

	var account domain.Account
	code := a.do(http.MethodPost, "/v1/wallets/"+wallet.ID+"/accounts", token,
		map[string]any{"name": "Corrente", "balance": "100"}, &account)
	if code != http.StatusCreated {
		t.Fatalf("create account: expected 201, got %d", code)
	}
	if !account.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("opening balance = %s, want 100", account.Balance)
	}

	var category domain.Category
	if code := a.do(http.MethodPost, "/v1/categories", token, map[string]any{"name": "Mercado"}, &category); code != http.StatusCreated {
		t.Fatalf("create category: expected 201, got %d", code)
	}

	var tx domain.Transaction
	code = a.do(http.MethodPost, "/v1/transactions", token, map[string]any{
		"name": "Feira", "value": "30.5", "type": "EXPENSE",
		"accountId": account.ID, "categoryId": category.ID, "date": "2025-03-10",
	}, &tx)
	if code != http.StatusCreated {
		t.Fatalf("create transaction: expected 201, got %d", code)
	}

	balanceIs := func(want string) {
		t.Helper()
		var got domain.Account
		if code := a.do(http.MethodGet, "/v1/accounts/"+account.ID, token, nil, &got); code != http.StatusOK {
			t.Fatalf("get account: expected 200, got %d", code)
		}
		if !got.Balance.Equal(decimal.RequireFromString(want)) {
			t.Errorf("balance = %s, want %s", got.Balance, want)
		}
	}
	balanceIs("69.5")

	if code := a.do(http.MethodPatch, "/v1/transactions/"+tx.ID, token, map[string]any{"value": "50"}, nil); code != http.StatusOK {
		t.Fatalf("update transaction: expected 200, got %d", code)
	}
	balanceIs("50")

	var summary domain.Summary
	if code := a.do(http.MethodGet, "/v1/transactions/summary", token, nil, &summary); code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d", code)
	}
	if !summary.TotalBalance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("totalBalance = %s, want 50", summary.TotalBalance)
	}
	if !summary.MonthExpense.Equal(decimal.NewFromInt(50)) {
		t.Errorf("monthExpense = %s, want 50", summary.MonthExpense)
	}
	if summary.Period.From != "2025-03-01" || summary.Period.To != "2025-03-31" {
		t.Errorf("period = %+v", summary.Period)
	}

	var filtered []domain.Transaction
	if code := a.do(http.MethodGet, "/v1/transactions?categoryId="+category.ID, token, nil, &filtered); code != http.StatusOK {
		t.Fatalf("list transactions: expected 200, got %d", code)
	}
	if len(filtered) != 1 || filtered[0].ID != tx.ID {
		t.Errorf("category filter returned %d transactions", len(filtered))
	}

	var inUse errorBody
	if code := a.do(http.MethodDelete, "/v1/categories/"+category.ID, token, nil, &inUse); code != http.StatusConflict {
		t.Errorf("delete category in use: expected 409, got %d", code)
	}

	if code := a.do(http.MethodDelete, "/v1/transactions/"+tx.ID, token, nil, nil); code != http.StatusOK {
		t.Fatalf("delete transaction: expected 200, got %d", code)
	}
	balanceIs("100")

	var dashboard domain.Dashboard
	if code := a.do(http.MethodGet, "/v1/dashboard", token, nil, &dashboard); code != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d", code)
	}
	if len(dashboard.Accounts) != 1 {
		t.Errorf("dashboard accounts = %d, want 1", len(dashboard.Accounts))
	}
	// Only the opening-balance transaction remains.
	if len(dashboard.RecentTransactions) != 1 {
		t.Errorf("dashboard recent = %d, want 1", len(dashboard.RecentTransactions))
	}

	var snapshot domain.LedgerMetrics
	if code := a.do(http.MethodGet, "/v1/metrics/ledger", "", nil, &snapshot); code != http.StatusOK {
		t.Fatalf("ledger metrics: expected 200, got %d", code)
	}
	if snapshot.TransactionsDeleted != 1 {
		t.Errorf("transactionsDeleted = %v, want 1", snapshot.TransactionsDeleted)
	}
}

func TestAPI_OtherUsersResourcesAreNotFound(t *testing.T) {
	a := newAPI(t)
	owner := a.register("owner@example.com").Token
	intruder := a.register("intruder@example.com").Token

	var wallet domain.Wallet
	a.do(http.MethodPost, "/v1/wallets", owner, map[string]any{"name": "Pessoal"}, &wallet)
	var account domain.Account
	a.do(http.MethodPost, "/v1/wallets/"+wallet.ID+"/accounts", owner, map[string]any{"name": "Corrente"}, &account)

	var body errorBody
	if code := a.do(http.MethodGet, "/v1/accounts/"+account.ID, intruder, nil, &body); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	var missing errorBody
	a.do(http.MethodGet, "/v1/accounts/does-not-exist", intruder, nil, &missing)
	if len(body.Details) != 1 || len(missing.Details) != 1 || body.Details[0] != missing.Details[0] {
		t.Errorf("foreign and missing account answers differ: %v vs %v", body.Details, missing.Details)
	}

	code := a.do(http.MethodPost, "/v1/transactions", intruder, map[string]any{
		"name": "Intrusa", "value": "10", "type": "INCOME", "accountId": account.ID,
	}, nil)
	if code != http.StatusNotFound {
		t.Errorf("create on foreign account: expected 404, got %d", code)
	}
}

func TestAPI_ValidationErrorShape(t *testing.T) {
	a := newAPI(t)
	token := a.register("shape@example.com").Token

	var body errorBody
	if code := a.do(http.MethodPost, "/v1/wallets", token, map[string]any{"name": ""}, &body); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if body.StatusCode != http.StatusBadRequest {
		t.Errorf("statusCode = %d", body.StatusCode)
	}
	if len(body.Fields["name"]) == 0 {
		t.Errorf("expected a field error on name, got %v", body.Fields)
	}
	if body.Details == nil {
		t.Error("details must be an array, not null")
	}
}

func TestAPI_MalformedBody(t *testing.T) {
	a := newAPI(t)
	token := a.register("malformed@example.com").Token

	req := httptest.NewRequest(http.MethodPost, "/v1/wallets", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Fields["root"]) == 0 {
		t.Errorf("expected a root field error, got %v", body.Fields)
	}
}

func TestAPI_DeletedUserTokenIsRejected(t *testing.T) {
	a := newAPI(t)
	token := a.register("gone@example.com").Token

	if code := a.do(http.MethodDelete, "/v1/auth/me", token, nil, nil); code != http.StatusOK {
		t.Fatalf("delete me: expected 200, got %d", code)
	}
	if code := a.do(http.MethodGet, "/v1/auth/me", token, nil, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 after account deletion, got %d", code)
	}
}

func TestAPI_RefreshRotatesToken(t *testing.T) {
	a := newAPI(t)
	first := a.register("rotate@example.com")

	var second domain.AuthResponse
	if code := a.do(http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refreshToken": first.RefreshToken}, &second); code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", code)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("refresh token was not rotated")
	}
	if code := a.do(http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refreshToken": first.RefreshToken}, nil); code != http.StatusUnauthorized {
		t.Errorf("reusing a rotated token: expected 401, got %d", code)
	}
}
