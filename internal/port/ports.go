// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/planeja-api-go/internal/domain"

	"github.com/shopspring/decimal"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// UserQueries handles identity data operations.
// Lookups return (nil, nil) when the row does not exist.
type UserQueries interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error

	StoreRefreshToken(ctx context.Context, t *domain.RefreshToken) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	// RevokeRefreshToken reports whether a stored token was removed.
	RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

// WalletQueries handles wallet data operations.
type WalletQueries interface {
	CreateWallet(ctx context.Context, w *domain.Wallet) error
	GetWallet(ctx context.Context, id string) (*domain.Wallet, error)
	ListWallets(ctx context.Context, userID string) ([]domain.Wallet, error)
	UpdateWallet(ctx context.Context, w *domain.Wallet) error
	DeleteWallet(ctx context.Context, id string) error
}

// AccountQueries handles account data operations.
// GetAccount fills Account.OwnerID from the owning wallet.
type AccountQueries interface {
	CreateAccount(ctx context.Context, a *domain.Account) error
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	ListAccountsByWallet(ctx context.Context, walletID string) ([]domain.Account, error)
	ListAccountsByUser(ctx context.Context, userID string) ([]domain.Account, error)
	RenameAccount(ctx context.Context, id, name string) error
	DeleteAccount(ctx context.Context, id string) error

	// ApplyBalanceDelta adds delta to the account's cached balance.
	// Only the ledger calls it, and only inside RunAtomic.
	ApplyBalanceDelta(ctx context.Context, accountID string, delta decimal.Decimal) error
}

// CategoryQueries handles category data operations.
type CategoryQueries interface {
	CreateCategory(ctx context.Context, c *domain.Category) error
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	FindCategoryByName(ctx context.Context, userID, name string) (*domain.Category, error)
	ListCategories(ctx context.Context, userID string) ([]domain.Category, error)
	UpdateCategory(ctx context.Context, c *domain.Category) error
	DeleteCategory(ctx context.Context, id string) error
	CountCategoryTransactions(ctx context.Context, id string) (int, error)
}

// TransactionQueries handles transaction data operations.
// GetTransaction fills Transaction.OwnerID through account -> wallet.
type TransactionQueries interface {
	CreateTransaction(ctx context.Context, t *domain.Transaction) error
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error)
	UpdateTransaction(ctx context.Context, t *domain.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	SumTransactionsByType(ctx context.Context, accountIDs []string, from, to time.Time) (income, expense decimal.Decimal, err error)
}

// Queries is the full set of per-entity operations. It is implemented both
// by the store itself and by the handle passed into an atomic unit.
type Queries interface {
	UserQueries
	WalletQueries
	AccountQueries
	CategoryQueries
	TransactionQueries
}

// Store is the persistence collaborator.
type Store interface {
	Queries

	// RunAtomic executes fn inside one serializable storage transaction.
	// If fn returns an error (or panics) nothing it issued is committed.
	RunAtomic(ctx context.Context, fn func(q Queries) error) error

	Ping(ctx context.Context) error
}
