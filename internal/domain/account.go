package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Accounts
// ============================================================

// Account is a balance-bearing ledger inside a wallet.
// Balance is a cached field: it always equals the signed sum of the
// account's transactions and is only changed by the ledger.
type Account struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	WalletID  string          `json:"walletId"`
	OwnerID   string          `json:"-"`
	CreatedAt time.Time       `json:"createdAt"`
}

// AccountRef is the denormalized account summary embedded in transactions.
type AccountRef struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Wallet *WalletRef `json:"wallet,omitempty"`
}

// WalletRef is the denormalized wallet summary embedded in account refs.
type WalletRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CreateAccountRequest is the body for POST /v1/wallets/{walletId}/accounts.
// A non-zero Balance becomes an opening transaction.
type CreateAccountRequest struct {
	Name    string           `json:"name" validate:"required,min=1,max=100"`
	Balance *decimal.Decimal `json:"balance"`
}

// UpdateAccountRequest is the body for PATCH /v1/accounts/{id}.
type UpdateAccountRequest struct {
	Name *string `json:"name" validate:"omitempty,min=1,max=100"`
}
