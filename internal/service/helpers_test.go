package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/planeja-api-go/internal/domain"
	"github.com/boddenberg/planeja-api-go/internal/infra/cache"
	"github.com/boddenberg/planeja-api-go/internal/infra/observability"
	"github.com/boddenberg/planeja-api-go/internal/infra/resilience"
	"github.com/boddenberg/planeja-api-go/internal/infra/sqlite"
	"github.com/boddenberg/planeja-api-go/internal/port"
	"github.com/boddenberg/planeja-api-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// fakeClock is a settable clock shared by every service in an env.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type env struct {
	store      *sqlite.Store
	clock      *fakeClock
	metrics    *observability.Metrics
	auth       *service.AuthService
	wallets    *service.WalletService
	accounts   *service.AccountService
	categories *service.CategoryService
	ledger     *service.Ledger
	dashboard  *service.DashboardService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	logger := zap.NewNop()
	store, err := sqlite.Open(context.Background(),
		sqlite.Config{Path: filepath.Join(t.TempDir(), "planeja.db"), BusyTimeout: 5 * time.Second},
		resilience.NewCircuitBreaker("sqlite-test", logger),
		resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond},
		logger,
	)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	users := cache.New[bool](time.Minute)
	t.Cleanup(users.Close)

	clock := &fakeClock{now: time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)}
	metrics := observability.NewMetrics()
	ledger := service.NewLedger(store, metrics, clock.Now, logger)

	return &env{
		store:   store,
		clock:   clock,
		metrics: metrics,
		auth: service.NewAuthService(store, users, metrics, service.AuthConfig{
			JWTSecret:  "test-secret-0123456789",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: time.Hour,
			BcryptCost: bcrypt.MinCost,
		}, logger),
		wallets:    service.NewWalletService(store, clock.Now, logger),
		accounts:   service.NewAccountService(store, metrics, clock.Now, logger),
		categories: service.NewCategoryService(store, clock.Now, logger),
		ledger:     ledger,
		dashboard:  service.NewDashboardService(ledger, store),
	}
}

// newUser registers a user and returns its id.
func (e *env) newUser(t *testing.T, email string) string {
	t.Helper()
	resp, err := e.auth.Register(context.Background(), &domain.RegisterRequest{Name: "Teste", Email: email, Password: "secret123"})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return resp.User.ID
}

// newAccount creates a wallet and an account with the given opening balance.
func (e *env) newAccount(t *testing.T, userID, opening string) *domain.Account {
	t.Helper()
	ctx := context.Background()

	w, err := e.wallets.Create(ctx, userID, &domain.CreateWalletRequest{Name: "Carteira"})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	req := &domain.CreateAccountRequest{Name: "Conta"}
	if opening != "" {
		b := decimal.RequireFromString(opening)
		req.Balance = &b
	}
	a, err := e.accounts.Create(ctx, userID, w.ID, req)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}

func (e *env) newTransaction(t *testing.T, userID, accountID string, typ domain.TransactionType, value string) *domain.Transaction {
	t.Helper()
	tx, err := e.ledger.CreateTransaction(context.Background(), userID, &domain.CreateTransactionRequest{
		Name:      "Lançamento",
		Value:     decimal.RequireFromString(value),
		Type:      typ,
		AccountID: accountID,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return tx
}

func (e *env) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	a, err := e.store.GetAccount(context.Background(), accountID)
	if err != nil || a == nil {
		t.Fatalf("get account %s: (%v, %v)", accountID, a, err)
	}
	return a.Balance
}

// signedSum recomputes the balance from the transaction rows.
func (e *env) signedSum(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	txs, err := e.store.ListTransactions(context.Background(), domain.TransactionFilter{AccountIDs: []string{accountID}})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	sum := decimal.Zero
	for i := range txs {
		sum = sum.Add(txs[i].SignedEffect())
	}
	return sum
}

func assertBalance(t *testing.T, e *env, accountID, want string) {
	t.Helper()
	got := e.balance(t, accountID)
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("expected balance %s, got %s", want, got)
	}
	if sum := e.signedSum(t, accountID); !sum.Equal(got) {
		t.Fatalf("balance %s drifted from signed sum %s", got, sum)
	}
}

func assertNotFound(t *testing.T, err error, resource string) {
	t.Helper()
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if resource != "" && nf.Resource != resource {
		t.Fatalf("expected not found %q, got %q", resource, nf.Resource)
	}
}

var errInjected = errors.New("injected balance failure")

// faultyStore fails every balance adjustment issued inside RunAtomic.
type faultyStore struct {
	port.Store
}

func (f faultyStore) RunAtomic(ctx context.Context, fn func(q port.Queries) error) error {
	return f.Store.RunAtomic(ctx, func(q port.Queries) error {
		return fn(faultyQueries{Queries: q})
	})
}

type faultyQueries struct {
	port.Queries
}

func (faultyQueries) ApplyBalanceDelta(context.Context, string, decimal.Decimal) error {
	return errInjected
}

func decimalOf(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
