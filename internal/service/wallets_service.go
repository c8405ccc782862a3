package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/planeja-api-go/internal/domain"
	"github.com/boddenberg/planeja-api-go/internal/port"
	"github.com/boddenberg/planeja-api-go/internal/validate"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var walletTracer = otel.Tracer("service/wallets")

// WalletService manages wallets. Deleting a wallet cascades to its accounts
// and their transactions in storage.
type WalletService struct {
	store  port.Store
	now    Clock
	logger *zap.Logger
}

// NewWalletService creates a new wallet service. A nil clock means time.Now.
func NewWalletService(store port.Store, now Clock, logger *zap.Logger) *WalletService {
	if now == nil {
		now = time.Now
	}
	return &WalletService{store: store, now: now, logger: logger}
}

func (s *WalletService) Create(ctx context.Context, userID string, req *domain.CreateWalletRequest) (*domain.Wallet, error) {
	ctx, span := walletTracer.Start(ctx, "WalletService.Create")
	defer span.End()

	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	w := &domain.Wallet{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Color:     domain.DefaultWalletColor,
		Icon:      req.Icon,
		UserID:    userID,
		CreatedAt: s.now().UTC(),
		Accounts:  []domain.Account{},
	}
	if req.Color != nil {
		w.Color = *req.Color
	}

	if err := s.store.CreateWallet(ctx, w); err != nil {
		return nil, err
	}

	s.logger.Info("wallet created", zap.String("wallet_id", w.ID), zap.String("user_id", userID))
	return w, nil
}

// List returns the caller's wallets, newest first, each with its accounts.
func (s *WalletService) List(ctx context.Context, userID string) ([]domain.Wallet, error) {
	ctx, span := walletTracer.Start(ctx, "WalletService.List")
	defer span.End()

	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return s.store.ListWallets(ctx, userID)
}

func (s *WalletService) Get(ctx context.Context, userID, id string) (*domain.Wallet, error) {
	ctx, span := walletTracer.Start(ctx, "WalletService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("wallet.id", id))

	w, err := NewOwnership(s.store).Wallet(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if w.Accounts, err = s.store.ListAccountsByWallet(ctx, id); err != nil {
		return nil, fmt.Errorf("list wallet accounts: %w", err)
	}
	return w, nil
}

func (s *WalletService) Update(ctx context.Context, userID, id string, req *domain.UpdateWalletRequest) (*domain.Wallet, error) {
	ctx, span := walletTracer.Start(ctx, "WalletService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("wallet.id", id))

	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	var updated *domain.Wallet
	err := s.store.RunAtomic(ctx, func(q port.Queries) error {
		w, err := NewOwnership(q).Wallet(ctx, userID, id)
		if err != nil {
			return err
		}
		if req.Name != nil {
			w.Name = *req.Name
		}
		if req.Color != nil {
			w.Color = *req.Color
		}
		if req.Icon != nil {
			w.Icon = req.Icon
		}
		if err := q.UpdateWallet(ctx, w); err != nil {
			return err
		}
		if w.Accounts, err = q.ListAccountsByWallet(ctx, id); err != nil {
			return err
		}
		updated = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet updated", zap.String("wallet_id", id))
	return updated, nil
}

func (s *WalletService) Remove(ctx context.Context, userID, id string) error {
	ctx, span := walletTracer.Start(ctx, "WalletService.Remove")
	defer span.End()
	span.SetAttributes(attribute.String("wallet.id", id))

	if err := requireUser(userID); err != nil {
		return err
	}

	err := s.store.RunAtomic(ctx, func(q port.Queries) error {
		if _, err := NewOwnership(q).Wallet(ctx, userID, id); err != nil {
			return err
		}
		return q.DeleteWallet(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("wallet removed", zap.String("wallet_id", id))
	return nil
}
