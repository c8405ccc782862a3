package service

import (
	"context"
	"fmt"
	"slices"
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

var ledgerTracer = otel.Tracer("service/ledger")

// Clock returns the current time. Tests replace it to pin "this month".
type Clock func() time.Time

// Ledger creates, updates and deletes transactions. Each write and the
// matching balance adjustment run in one atomic unit, so an account's
// balance always equals the signed sum of its transactions.
type Ledger struct {
	store   port.Store
	metrics *observability.Metrics
	now     Clock
	logger  *zap.Logger
}

// NewLedger creates a new ledger. A nil clock means time.Now.
func NewLedger(store port.Store, metrics *observability.Metrics, now Clock, logger *zap.Logger) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, metrics: metrics, now: now, logger: logger}
}

// ============================================================
// Create — POST /v1/transactions
// ============================================================

func (s *Ledger) CreateTransaction(ctx context.Context, userID string, req *domain.CreateTransactionRequest) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "Ledger.CreateTransaction")
	defer span.End()

	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := validate.Struct(req,
		validate.Positive("value", req.Value),
		validate.Money("value", req.Value),
		validate.Date("date", req.Date),
	); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("account.id", req.AccountID))

	date := s.now().UTC()
	if req.Date != nil {
		date, _ = validate.ParseDate(*req.Date)
	}

	tx := &domain.Transaction{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Value:      req.Value,
		Type:       req.Type,
		Date:       date,
		AccountID:  req.AccountID,
		CategoryID: req.CategoryID,
		CreatedAt:  s.now().UTC(),
	}

	var created *domain.Transaction
	err := s.store.RunAtomic(ctx, func(q port.Queries) error {
		var err error
		created, err = insertTransaction(ctx, q, userID, tx)
		return err
	})
	s.record(observability.OpCreate, 1, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("transaction created",
		zap.String("transaction_id", created.ID),
		zap.String("account_id", created.AccountID),
		zap.String("type", string(created.Type)),
		zap.String("value", created.Value.String()),
	)
	return created, nil
}

// insertTransaction asserts ownership of the account (and category), inserts
// the row and applies its signed effect. It must run inside RunAtomic.
func insertTransaction(ctx context.Context, q port.Queries, userID string, tx *domain.Transaction) (*domain.Transaction, error) {
	own := NewOwnership(q)
	if _, err := own.Account(ctx, userID, tx.AccountID); err != nil {
		return nil, err
	}
	if tx.CategoryID != nil {
		if _, err := own.Category(ctx, userID, *tx.CategoryID); err != nil {
			return nil, err
		}
	}

	if err := q.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	if err := q.ApplyBalanceDelta(ctx, tx.AccountID, tx.SignedEffect()); err != nil {
		return nil, err
	}

	created, err := q.GetTransaction(ctx, tx.ID)
	if err != nil {
		return nil, fmt.Errorf("reload transaction: %w", err)
	}
	if created == nil {
		return nil, fmt.Errorf("reload transaction %s: not visible after insert", tx.ID)
	}
	return created, nil
}

// ============================================================
// Update — PATCH /v1/transactions/{id}
// ============================================================

func (s *Ledger) UpdateTransaction(ctx context.Context, userID, id string, req *domain.UpdateTransactionRequest) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "Ledger.UpdateTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := validate.Struct(req,
		validate.OptionalPositive("value", req.Value),
		validate.OptionalMoney("value", req.Value),
		validate.Date("date", req.Date),
		validate.NonEmpty("categoryId", req.CategoryID),
	); err != nil {
		return nil, err
	}

	patch, err := buildPatch(req)
	if err != nil {
		return nil, err
	}

	var (
		updated  *domain.Transaction
		adjusted int
	)
	err = s.store.RunAtomic(ctx, func(q port.Queries) error {
		own := NewOwnership(q)

		current, err := own.Transaction(ctx, userID, id)
		if err != nil {
			return err
		}
		if patch.CategoryID.Set && patch.CategoryID.Value != nil {
			if _, err := own.Category(ctx, userID, *patch.CategoryID.Value); err != nil {
				return err
			}
		}

		next := patch.Apply(*current)
		if err := q.UpdateTransaction(ctx, &next); err != nil {
			return err
		}

		// Reverse the old effect and apply the new one as a single net delta.
		delta := next.SignedEffect().Sub(current.SignedEffect())
		if !delta.IsZero() {
			if err := q.ApplyBalanceDelta(ctx, current.AccountID, delta); err != nil {
				return err
			}
			adjusted = 1
		}

		updated, err = q.GetTransaction(ctx, id)
		if err != nil {
			return fmt.Errorf("reload transaction: %w", err)
		}
		return nil
	})
	s.record(observability.OpUpdate, adjusted, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("transaction updated",
		zap.String("transaction_id", id),
		zap.String("account_id", updated.AccountID),
		zap.Bool("balance_adjusted", adjusted > 0),
	)
	return updated, nil
}

func buildPatch(req *domain.UpdateTransactionRequest) (domain.TransactionPatch, error) {
	patch := domain.TransactionPatch{
		Name:       req.Name,
		Value:      req.Value,
		Type:       req.Type,
		CategoryID: req.CategoryID,
	}
	if req.Date != nil {
		d, _ := validate.ParseDate(*req.Date)
		patch.Date = &d
	}

	if patch.Name == nil && patch.Value == nil && patch.Type == nil && patch.Date == nil && !patch.CategoryID.Set {
		return patch, &domain.ErrInvalidArgument{Message: "Nenhum campo informado para atualização"}
	}
	return patch, nil
}

// ============================================================
// Remove — DELETE /v1/transactions/{id}
// ============================================================

func (s *Ledger) RemoveTransaction(ctx context.Context, userID, id string) error {
	ctx, span := ledgerTracer.Start(ctx, "Ledger.RemoveTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	if err := requireUser(userID); err != nil {
		return err
	}

	var removed *domain.Transaction
	err := s.store.RunAtomic(ctx, func(q port.Queries) error {
		current, err := NewOwnership(q).Transaction(ctx, userID, id)
		if err != nil {
			return err
		}
		if err := q.DeleteTransaction(ctx, id); err != nil {
			return err
		}
		removed = current
		return q.ApplyBalanceDelta(ctx, current.AccountID, current.SignedEffect().Neg())
	})
	s.record(observability.OpDelete, 1, err)
	if err != nil {
		return err
	}

	s.logger.Info("transaction removed",
		zap.String("transaction_id", id),
		zap.String("account_id", removed.AccountID),
	)
	return nil
}

// ============================================================
// Reads
// ============================================================

// GetTransaction returns one of the caller's transactions.
func (s *Ledger) GetTransaction(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "Ledger.GetTransaction")
	defer span.End()

	return NewOwnership(s.store).Transaction(ctx, userID, id)
}

// ListTransactions returns the caller's transactions, newest first. The
// owned account set is computed once; an accountId filter outside it is
// NotFound, and a categoryId filter must be the caller's category.
func (s *Ledger) ListTransactions(ctx context.Context, userID string, accountID, categoryID *string) ([]domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "Ledger.ListTransactions")
	defer span.End()

	return s.listTransactions(ctx, userID, accountID, categoryID, 0)
}

// RecentTransactions returns the caller's n newest transactions.
func (s *Ledger) RecentTransactions(ctx context.Context, userID string, n int) ([]domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "Ledger.RecentTransactions")
	defer span.End()

	return s.listTransactions(ctx, userID, nil, nil, n)
}

func (s *Ledger) listTransactions(ctx context.Context, userID string, accountID, categoryID *string, limit int) ([]domain.Transaction, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	owned, err := s.ownedAccountIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	filter := domain.TransactionFilter{AccountIDs: owned, Limit: limit}
	if accountID != nil {
		if !slices.Contains(owned, *accountID) {
			return nil, &domain.ErrNotFound{Resource: "account", ID: *accountID}
		}
		filter.AccountIDs = []string{*accountID}
	}
	if categoryID != nil {
		if _, err := NewOwnership(s.store).Category(ctx, userID, *categoryID); err != nil {
			return nil, err
		}
		filter.CategoryID = categoryID
	}

	return s.store.ListTransactions(ctx, filter)
}

// Summary totals the balances of every owned account and splits this
// month's transaction values by type. The month is the server's current
// calendar month in UTC and is recomputed on every call.
func (s *Ledger) Summary(ctx context.Context, userID string) (*domain.Summary, error) {
	ctx, span := ledgerTracer.Start(ctx, "Ledger.Summary")
	defer span.End()

	if err := requireUser(userID); err != nil {
		return nil, err
	}

	accounts, err := s.store.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	total := decimal.Zero
	ids := make([]string, 0, len(accounts))
	for _, a := range accounts {
		total = total.Add(a.Balance)
		ids = append(ids, a.ID)
	}

	from, to := domain.MonthBounds(s.now().UTC())
	income, expense, err := s.store.SumTransactionsByType(ctx, ids, from, to)
	if err != nil {
		return nil, fmt.Errorf("sum transactions: %w", err)
	}

	return &domain.Summary{
		TotalBalance: total,
		MonthIncome:  income,
		MonthExpense: expense,
		Period: domain.SummaryPeriod{
			From: from.Format(time.DateOnly),
			To:   to.AddDate(0, 0, -1).Format(time.DateOnly),
		},
	}, nil
}

func (s *Ledger) ownedAccountIDs(ctx context.Context, userID string) ([]string, error) {
	accounts, err := s.store.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	ids := make([]string, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}
	return ids, nil
}

func (s *Ledger) record(op string, adjustments int, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordLedgerOp(op, err)
	if err == nil && adjustments > 0 {
		s.metrics.AddBalanceAdjustments(adjustments)
	}
}
