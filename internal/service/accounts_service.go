package service

import (
	"context"
	"time"

	"github.com/boddenberg/planeja-api-go/internal/domain"
	"github.com/boddenberg/planeja-api-go/internal/infra/observability"
	"github.com/boddenberg/planeja-api-go/internal/port"
	"github.com/boddenberg/planeja-api-go/internal/validate"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var accountTracer = otel.Tracer("service/accounts")

// OpeningBalanceName names the transaction that records a starting balance.
const OpeningBalanceName = "Saldo inicial"

// AccountService manages accounts inside the caller's wallets.
//
// Accounts are created with a zero balance. A starting balance is recorded
// as an opening transaction in the same atomic unit, so the balance still
// equals the signed sum of the account's transactions.
type AccountService struct {
	store   port.Store
	metrics *observability.Metrics
	now     Clock
	logger  *zap.Logger
}

// NewAccountService creates a new account service. A nil clock means time.Now.
func NewAccountService(store port.Store, metrics *observability.Metrics, now Clock, logger *zap.Logger) *AccountService {
	if now == nil {
		now = time.Now
	}
	return &AccountService{store: store, metrics: metrics, now: now, logger: logger}
}

// ============================================================
// Create — POST /v1/wallets/{walletId}/accounts
// ============================================================

func (s *AccountService) Create(ctx context.Context, userID, walletID string, req *domain.CreateAccountRequest) (*domain.Account, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.Create")
	defer span.End()
	span.SetAttributes(attribute.String("wallet.id", walletID))

	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := validate.Struct(req, validate.OptionalMoney("balance", req.Balance)); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	a := &domain.Account{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Balance:   decimal.Zero,
		WalletID:  walletID,
		CreatedAt: now,
	}
	opening := openingTransaction(a.ID, req.Balance, now)

	var created *domain.Account
	err := s.store.RunAtomic(ctx, func(q port.Queries) error {
		if _, err := NewOwnership(q).Wallet(ctx, userID, walletID); err != nil {
			return err
		}
		if err := q.CreateAccount(ctx, a); err != nil {
			return err
		}
		if opening != nil {
			if _, err := insertTransaction(ctx, q, userID, opening); err != nil {
				return err
			}
		}

		var err error
		created, err = q.GetAccount(ctx, a.ID)
		return err
	})
	if opening != nil && s.metrics != nil {
		s.metrics.RecordLedgerOp(observability.OpCreate, err)
		if err == nil {
			s.metrics.AddBalanceAdjustments(1)
		}
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("account created",
		zap.String("account_id", created.ID),
		zap.String("wallet_id", walletID),
		zap.String("opening_balance", created.Balance.String()),
	)
	return created, nil
}

// openingTransaction turns a non-zero starting balance into an INCOME
// (positive) or EXPENSE (negative) transaction. It returns nil otherwise.
func openingTransaction(accountID string, balance *decimal.Decimal, now time.Time) *domain.Transaction {
	if balance == nil || balance.IsZero() {
		return nil
	}
	typ := domain.TransactionIncome
	if balance.IsNegative() {
		typ = domain.TransactionExpense
	}
	return &domain.Transaction{
		ID:        uuid.NewString(),
		Name:      OpeningBalanceName,
		Value:     balance.Abs(),
		Type:      typ,
		Date:      now,
		AccountID: accountID,
		CreatedAt: now,
	}
}

// ============================================================
// Reads
// ============================================================

func (s *AccountService) ListByWallet(ctx context.Context, userID, walletID string) ([]domain.Account, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.ListByWallet")
	defer span.End()

	if _, err := NewOwnership(s.store).Wallet(ctx, userID, walletID); err != nil {
		return nil, err
	}
	return s.store.ListAccountsByWallet(ctx, walletID)
}

// ListAll returns every account the caller owns across wallets.
func (s *AccountService) ListAll(ctx context.Context, userID string) ([]domain.Account, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.ListAll")
	defer span.End()

	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return s.store.ListAccountsByUser(ctx, userID)
}

func (s *AccountService) Get(ctx context.Context, userID, id string) (*domain.Account, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.Get")
	defer span.End()

	return NewOwnership(s.store).Account(ctx, userID, id)
}

// ============================================================
// Rename / Remove
// ============================================================

// Rename changes the account name. The balance is never patchable here:
// only the ledger moves it.
func (s *AccountService) Rename(ctx context.Context, userID, id string, req *domain.UpdateAccountRequest) (*domain.Account, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.Rename")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", id))

	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	var updated *domain.Account
	err := s.store.RunAtomic(ctx, func(q port.Queries) error {
		a, err := NewOwnership(q).Account(ctx, userID, id)
		if err != nil {
			return err
		}
		if req.Name != nil {
			if err := q.RenameAccount(ctx, id, *req.Name); err != nil {
				return err
			}
			a.Name = *req.Name
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Remove deletes the account and, in storage, its transactions. No other
// account's balance references them, so nothing else needs adjusting.
func (s *AccountService) Remove(ctx context.Context, userID, id string) error {
	ctx, span := accountTracer.Start(ctx, "AccountService.Remove")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", id))

	if err := requireUser(userID); err != nil {
		return err
	}

	err := s.store.RunAtomic(ctx, func(q port.Queries) error {
		if _, err := NewOwnership(q).Account(ctx, userID, id); err != nil {
			return err
		}
		return q.DeleteAccount(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("account removed", zap.String("account_id", id))
	return nil
}
