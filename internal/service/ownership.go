// Package service provides the business logic layer (use cases): the
// ownership-chain validator, the category hierarchy, the balance ledger and
// the summary/dashboard aggregators, plus identity and wallet/account CRUD.
//
// Every operation receives the caller's userID explicitly; an empty userID
// fails closed with ErrUnauthorized.
package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/planeja-api-go/internal/domain"
	"github.com/boddenberg/planeja-api-go/internal/port"
)

// requireUser fails closed when no identity was supplied.
func requireUser(userID string) error {
	if userID == "" {
		return &domain.ErrUnauthorized{Message: "Não autenticado"}
	}
	return nil
}

// ============================================================
// Ownership-chain validator
// ============================================================

// Ownership resolves an entity together with its owning user and asserts the
// owner is the caller. An absent entity and someone else's entity produce the
// same ErrNotFound, so callers cannot probe for other users' ids.
//
// It reads through whatever Queries it was built with: the store for plain
// reads, or the handle inside RunAtomic so the check and the write see the
// same snapshot.
type Ownership struct {
	q port.Queries
}

// NewOwnership creates a validator reading through q.
func NewOwnership(q port.Queries) Ownership {
	return Ownership{q: q}
}

// Wallet asserts userID owns the wallet.
func (o Ownership) Wallet(ctx context.Context, userID, id string) (*domain.Wallet, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	w, err := o.q.GetWallet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	if w == nil || w.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "wallet", ID: id}
	}
	return w, nil
}

// Account asserts userID owns the account through its wallet.
func (o Ownership) Account(ctx context.Context, userID, id string) (*domain.Account, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	a, err := o.q.GetAccount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if a == nil || a.OwnerID != userID {
		return nil, &domain.ErrNotFound{Resource: "account", ID: id}
	}
	return a, nil
}

// Category asserts userID owns the category.
func (o Ownership) Category(ctx context.Context, userID, id string) (*domain.Category, error) {
	return o.category(ctx, userID, id, "category")
}

// ParentCategory is Category reported as "parent category" on failure.
func (o Ownership) ParentCategory(ctx context.Context, userID, id string) (*domain.Category, error) {
	return o.category(ctx, userID, id, "parent category")
}

func (o Ownership) category(ctx context.Context, userID, id, resource string) (*domain.Category, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	c, err := o.q.GetCategory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	if c == nil || c.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: resource, ID: id}
	}
	return c, nil
}

// Transaction asserts userID owns the transaction through account and wallet.
func (o Ownership) Transaction(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	t, err := o.q.GetTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if t == nil || t.OwnerID != userID {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	return t, nil
}
