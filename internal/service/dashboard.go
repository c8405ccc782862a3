package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/planeja-api-go/internal/domain"
	"github.com/boddenberg/planeja-api-go/internal/port"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

var dashboardTracer = otel.Tracer("service/dashboard")

// RecentTransactionsLimit is how many transactions the dashboard shows.
const RecentTransactionsLimit = 5

// DashboardService composes the summary, the account list and the latest
// transactions. It holds no state of its own.
type DashboardService struct {
	ledger *Ledger
	store  port.Store
	now    Clock
}

// NewDashboardService creates a new dashboard aggregator.
func NewDashboardService(ledger *Ledger, store port.Store) *DashboardService {
	return &DashboardService{ledger: ledger, store: store, now: ledger.now}
}

// Dashboard fetches its three parts concurrently; the first failure cancels
// the others.
func (s *DashboardService) Dashboard(ctx context.Context, userID string) (*domain.Dashboard, error) {
	ctx, span := dashboardTracer.Start(ctx, "DashboardService.Dashboard")
	defer span.End()

	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var (
		summary  *domain.Summary
		accounts []domain.Account
		recent   []domain.Transaction
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = s.ledger.Summary(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		if accounts, err = s.store.ListAccountsByUser(gctx, userID); err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		recent, err = s.ledger.RecentTransactions(gctx, userID, RecentTransactionsLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &domain.Dashboard{
		Summary:            *summary,
		Accounts:           accounts,
		RecentTransactions: recent,
		GeneratedAt:        s.now().UTC(),
	}, nil
}
