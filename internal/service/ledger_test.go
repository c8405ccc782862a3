package service_test

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/planeja-api-go/internal/domain"
	"github.com/boddenberg/planeja-api-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func ptr[T any](v T) *T { return &v }

func TestLedger_CreateUpdateDeleteRestoresBalance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.newUser(t, "s1@example.com")
	acct := e.newAccount(t, user, "")

	assertBalance(t, e, acct.ID, "0")

	tx := e.newTransaction(t, user, acct.ID, domain.TransactionIncome, "100")
	assertBalance(t, e, acct.ID, "100")

	if _, err := e.ledger.UpdateTransaction(ctx, user, tx.ID, &domain.UpdateTransactionRequest{Value: ptr(decimal.NewFromInt(40))}); err != nil {
		t.Fatalf("update: %v", err)
	}
	assertBalance(t, e, acct.ID, "40")

	if err := e.ledger.RemoveTransaction(ctx, user, tx.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	assertBalance(t, e, acct.ID, "0")
}

func TestLedger_TypeFlipSwingsTwice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.newUser(t, "s2@example.com")
	acct := e.newAccount(t, user, "100")

	tx := e.newTransaction(t, user, acct.ID, domain.TransactionExpense, "30")
	assertBalance(t, e, acct.ID, "70")

	updated, err := e.ledger.UpdateTransaction(ctx, user, tx.ID, &domain.UpdateTransactionRequest{Type: ptr(domain.TransactionIncome)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Value.Equal(decimal.NewFromInt(30)) {
		t.Errorf("expected value to be kept, got %s", updated.Value)
	}
	assertBalance(t, e, acct.ID, "130")
}

func TestLedger_CreateReturnsSummaries(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.newUser(t, "refs@example.com")
	acct := e.newAccount(t, user, "")

	cat, err := e.categories.Create(ctx, user, &domain.CreateCategoryRequest{Name: "Mercado", Color: ptr("#22C55E")})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}

	tx, err := e.ledger.CreateTransaction(ctx, user, &domain.CreateTransactionRequest{
		Name: "Feira", Value: decimal.RequireFromString("52.37"), Type: domain.TransactionExpense,
		Date: ptr("2025-03-02"), AccountID: acct.ID, CategoryID: &cat.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if tx.Category == nil || tx.Category.Name != "Mercado" {
		t.Errorf("expected category summary, got %+v", tx.Category)
	}
	if tx.Account == nil || tx.Account.Wallet == nil || tx.Account.Name != "Conta" {
		t.Errorf("expected account/wallet summary, got %+v", tx.Account)
	}
	if want := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC); !tx.Date.Equal(want) {
		t.Errorf("expected date %s, got %s", want, tx.Date)
	}
}

func TestLedger_CreateValidation(t *testing.T) {
	e := newEnv(t)
	user := e.newUser(t, "val@example.com")
	acct := e.newAccount(t, user, "")

	_, err := e.ledger.CreateTransaction(context.Background(), user, &domain.CreateTransactionRequest{
		Name: "", Value: decimal.NewFromInt(-5), Type: "TRANSFER", Date: ptr("ontem"), AccountID: acct.ID,
	})

	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	for _, field := range []string{"name", "value", "type", "date"} {
		if len(verr.Fields[field]) == 0 {
			t.Errorf("expected a message for %q, got %v", field, verr.Fields)
		}
	}
	assertBalance(t, e, acct.ID, "0")
}

func TestLedger_RejectsValuesOutsideMoneyPrecision(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.newUser(t, "huge@example.com")
	acct := e.newAccount(t, user, "10")

	for _, v := range []string{"1e20000000", "1000000000000000", "0.005"} {
		_, err := e.ledger.CreateTransaction(ctx, user, &domain.CreateTransactionRequest{
			Name: "Enorme", Value: decimalOf(v), Type: domain.TransactionIncome, AccountID: acct.ID,
		})
		var verr *domain.ErrValidation
		if !errors.As(err, &verr) || len(verr.Fields["value"]) == 0 {
			t.Fatalf("create with %s: expected a value ErrValidation, got %v", v, err)
		}
	}

	tx := e.newTransaction(t, user, acct.ID, domain.TransactionIncome, "5")
	huge := decimalOf("1e20000000")
	_, err := e.ledger.UpdateTransaction(ctx, user, tx.ID, &domain.UpdateTransactionRequest{Value: &huge})
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("update: expected ErrValidation, got %v", err)
	}

	assertBalance(t, e, acct.ID, "15")
}

func TestLedger_CategoryPatchAbsentVersusNull(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.newUser(t, "patch@example.com")
	acct := e.newAccount(t, user, "")

	cat, err := e.categories.Create(ctx, user, &domain.CreateCategoryRequest{Name: "Lazer"})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	tx, err := e.ledger.CreateTransaction(ctx, user, &domain.CreateTransactionRequest{
		Name: "Cinema", Value: decimal.NewFromInt(20), Type: domain.TransactionExpense, AccountID: acct.ID, CategoryID: &cat.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	kept, err := e.ledger.UpdateTransaction(ctx, user, tx.ID, &domain.UpdateTransactionRequest{Name: ptr("Cinema IMAX")})
	if err != nil {
		t.Fatalf("update name: %v", err)
	}
	if kept.CategoryID == nil || *kept.CategoryID != cat.ID {
		t.Fatalf("expected category kept when absent, got %v", kept.CategoryID)
	}

	cleared, err := e.ledger.UpdateTransaction(ctx, user, tx.ID, &domain.UpdateTransactionRequest{CategoryID: domain.Null()})
	if err != nil {
		t.Fatalf("clear category: %v", err)
	}
	if cleared.CategoryID != nil || cleared.Category != nil {
		t.Fatalf("expected category cleared, got %v", cleared.CategoryID)
	}
	assertBalance(t, e, acct.ID, "-20")
}

func TestLedger_EmptyPatchIsInvalidArgument(t *testing.T) {
	e := newEnv(t)
	user := e.newUser(t, "empty@example.com")
	acct := e.newAccount(t, user, "")
	tx := e.newTransaction(t, user, acct.ID, domain.TransactionIncome, "1")

	_, err := e.ledger.UpdateTransaction(context.Background(), user, tx.ID, &domain.UpdateTransactionRequest{})

	var invalid *domain.ErrInvalidArgument
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestLedger_AtomicityUnderInjectedFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.newUser(t, "atomic@example.com")
	acct := e.newAccount(t, user, "50")
	existing := e.newTransaction(t, user, acct.ID, domain.TransactionExpense, "10")

	faulty := service.NewLedger(faultyStore{Store: e.store}, e.metrics, e.clock.Now, zap.NewNop())

	_, err := faulty.CreateTransaction(ctx, user, &domain.CreateTransactionRequest{
		Name: "Falha", Value: decimal.NewFromInt(999), Type: domain.TransactionIncome, AccountID: acct.ID,
	})
	if !errors.Is(err, errInjected) {
		t.Fatalf("expected injected failure, got %v", err)
	}

	txs, err := e.ledger.ListTransactions(ctx, user, &acct.ID, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected only the 2 committed transactions, got %d", len(txs))
	}
	assertBalance(t, e, acct.ID, "40")

	if _, err := faulty.UpdateTransaction(ctx, user, existing.ID, &domain.UpdateTransactionRequest{Value: ptr(decimal.NewFromInt(25))}); !errors.Is(err, errInjected) {
		t.Fatalf("expected injected failure on update, got %v", err)
	}
	got, _ := e.ledger.GetTransaction(ctx, user, existing.ID)
	if !got.Value.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected row update rolled back, got value %s", got.Value)
	}

	if err := faulty.RemoveTransaction(ctx, user, existing.ID); !errors.Is(err, errInjected) {
		t.Fatalf("expected injected failure on remove, got %v", err)
	}
	if _, err := e.ledger.GetTransaction(ctx, user, existing.ID); err != nil {
		t.Errorf("expected row delete rolled back, got %v", err)
	}
	assertBalance(t, e, acct.ID, "40")

	if got := e.metrics.GetLedgerSnapshot().RolledBack; got != 3 {
		t.Errorf("expected 3 rollbacks recorded, got %v", got)
	}
}

func TestLedger_BalanceInvariantRandomSequence(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.newUser(t, "random@example.com")
	acct := e.newAccount(t, user, "")

	rng := rand.New(rand.NewSource(42))
	types := []domain.TransactionType{domain.TransactionIncome, domain.TransactionExpense}
	var live []string

	for i := 0; i < 60; i++ {
		value := decimal.New(rng.Int63n(100000)+1, -2)

		switch op := rng.Intn(3); {
		case op == 0 || len(live) == 0:
			tx, err := e.ledger.CreateTransaction(ctx, user, &domain.CreateTransactionRequest{
				Name: "r", Value: value, Type: types[rng.Intn(2)], AccountID: acct.ID,
			})
			if err != nil {
				t.Fatalf("step %d create: %v", i, err)
			}
			live = append(live, tx.ID)
		case op == 1:
			id := live[rng.Intn(len(live))]
			req := &domain.UpdateTransactionRequest{Value: &value}
			if rng.Intn(2) == 0 {
				req.Type = &types[rng.Intn(2)]
			}
			if _, err := e.ledger.UpdateTransaction(ctx, user, id, req); err != nil {
				t.Fatalf("step %d update: %v", i, err)
			}
		default:
			k := rng.Intn(len(live))
			if err := e.ledger.RemoveTransaction(ctx, user, live[k]); err != nil {
				t.Fatalf("step %d remove: %v", i, err)
			}
			live = append(live[:k], live[k+1:]...)
		}

		if got, sum := e.balance(t, acct.ID), e.signedSum(t, acct.ID); !got.Equal(sum) {
			t.Fatalf("step %d: balance %s != signed sum %s", i, got, sum)
		}
	}
}

func TestLedger_ConcurrentWritersSerialize(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.newUser(t, "concurrent@example.com")
	acct := e.newAccount(t, user, "")

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ledger.CreateTransaction(ctx, user, &domain.CreateTransactionRequest{
				Name: "c", Value: decimal.RequireFromString("0.10"), Type: domain.TransactionIncome, AccountID: acct.ID,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	committed := 0
	for err := range errs {
		if err == nil {
			committed++
		}
	}
	if committed == 0 {
		t.Fatal("expected at least one committed writer")
	}

	want := decimal.RequireFromString("0.10").Mul(decimal.NewFromInt(int64(committed)))
	if got := e.balance(t, acct.ID); !got.Equal(want) {
		t.Fatalf("expected balance %s for %d commits, got %s", want, committed, got)
	}
	assertBalance(t, e, acct.ID, want.String())
}

func TestLedger_OwnershipIsolation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.newUser(t, "alice@example.com")
	bob := e.newUser(t, "bob@example.com")
	aliceAcct := e.newAccount(t, alice, "")
	aliceTx := e.newTransaction(t, alice, aliceAcct.ID, domain.TransactionIncome, "10")
	aliceCat, err := e.categories.Create(ctx, alice, &domain.CreateCategoryRequest{Name: "Privada"})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	bobAcct := e.newAccount(t, bob, "")

	_, err = e.ledger.CreateTransaction(ctx, bob, &domain.CreateTransactionRequest{
		Name: "x", Value: decimal.NewFromInt(1), Type: domain.TransactionIncome, AccountID: aliceAcct.ID,
	})
	assertNotFound(t, err, "account")

	_, err = e.ledger.CreateTransaction(ctx, bob, &domain.CreateTransactionRequest{
		Name: "x", Value: decimal.NewFromInt(1), Type: domain.TransactionIncome, AccountID: bobAcct.ID, CategoryID: &aliceCat.ID,
	})
	assertNotFound(t, err, "category")

	_, err = e.ledger.GetTransaction(ctx, bob, aliceTx.ID)
	assertNotFound(t, err, "transaction")

	_, err = e.ledger.UpdateTransaction(ctx, bob, aliceTx.ID, &domain.UpdateTransactionRequest{Name: ptr("hack")})
	assertNotFound(t, err, "transaction")

	assertNotFound(t, e.ledger.RemoveTransaction(ctx, bob, aliceTx.ID), "transaction")

	_, err = e.ledger.ListTransactions(ctx, bob, &aliceAcct.ID, nil)
	assertNotFound(t, err, "account")

	_, err = e.ledger.ListTransactions(ctx, bob, nil, &aliceCat.ID)
	assertNotFound(t, err, "category")

	// Someone else's id and a made-up id are indistinguishable.
	_, errOther := e.ledger.GetTransaction(ctx, bob, aliceTx.ID)
	_, errMissing := e.ledger.GetTransaction(ctx, bob, "does-not-exist")
	var a, b *domain.ErrNotFound
	errors.As(errOther, &a)
	errors.As(errMissing, &b)
	if a.Message() != b.Message() {
		t.Errorf("expected identical messages, got %q and %q", a.Message(), b.Message())
	}

	bobTxs, err := e.ledger.ListTransactions(ctx, bob, nil, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bobTxs) != 0 {
		t.Errorf("expected bob to see no transactions, got %d", len(bobTxs))
	}
	assertBalance(t, e, aliceAcct.ID, "10")
}

func TestLedger_FailsClosedWithoutIdentity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var unauth *domain.ErrUnauthorized
	if _, err := e.ledger.ListTransactions(ctx, "", nil, nil); !errors.As(err, &unauth) {
		t.Errorf("list: expected ErrUnauthorized, got %v", err)
	}
	if _, err := e.ledger.Summary(ctx, ""); !errors.As(err, &unauth) {
		t.Errorf("summary: expected ErrUnauthorized, got %v", err)
	}
	if err := e.ledger.RemoveTransaction(ctx, "", "x"); !errors.As(err, &unauth) {
		t.Errorf("remove: expected ErrUnauthorized, got %v", err)
	}
}

func TestLedger_SummaryCountsWholeMonth(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.newUser(t, "summary@example.com")
	acct := e.newAccount(t, user, "")

	for _, in := range []struct {
		date  string
		typ   domain.TransactionType
		value string
	}{
		{"2025-03-01", domain.TransactionIncome, "1000"},
		{"2025-03-28T18:30:00Z", domain.TransactionExpense, "250.50"},
		{"2025-02-28T23:59:59Z", domain.TransactionExpense, "99"},
	} {
		_, err := e.ledger.CreateTransaction(ctx, user, &domain.CreateTransactionRequest{
			Name: "s", Value: decimal.RequireFromString(in.value), Type: in.typ, Date: ptr(in.date), AccountID: acct.ID,
		})
		if err != nil {
			t.Fatalf("create %s: %v", in.date, err)
		}
	}

	for _, day := range []int{3, 31} {
		e.clock.Set(time.Date(2025, 3, day, 12, 0, 0, 0, time.UTC))

		s, err := e.ledger.Summary(ctx, user)
		if err != nil {
			t.Fatalf("summary on day %d: %v", day, err)
		}
		if !s.MonthIncome.Equal(decimal.RequireFromString("1000")) {
			t.Errorf("day %d: expected income 1000, got %s", day, s.MonthIncome)
		}
		if !s.MonthExpense.Equal(decimal.RequireFromString("250.50")) {
			t.Errorf("day %d: expected expense 250.50, got %s", day, s.MonthExpense)
		}
		if !s.TotalBalance.Equal(decimal.RequireFromString("650.50")) {
			t.Errorf("day %d: expected total 650.50, got %s", day, s.TotalBalance)
		}
		if s.Period.From != "2025-03-01" || s.Period.To != "2025-03-31" {
			t.Errorf("day %d: unexpected period %+v", day, s.Period)
		}
	}
}

func TestLedger_ReadsAreIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.newUser(t, "idem@example.com")
	acct := e.newAccount(t, user, "10")
	e.newTransaction(t, user, acct.ID, domain.TransactionExpense, "3")

	l1, err1 := e.ledger.ListTransactions(ctx, user, nil, nil)
	l2, err2 := e.ledger.ListTransactions(ctx, user, nil, nil)
	if err1 != nil || err2 != nil {
		t.Fatalf("list: %v / %v", err1, err2)
	}
	if !reflect.DeepEqual(l1, l2) {
		t.Error("expected identical listings")
	}

	s1, _ := e.ledger.Summary(ctx, user)
	s2, _ := e.ledger.Summary(ctx, user)
	if !reflect.DeepEqual(s1, s2) {
		t.Errorf("expected identical summaries, got %+v and %+v", s1, s2)
	}
}
