package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Transactions
// ============================================================

// TransactionType carries the sign of a transaction.
type TransactionType string

const (
	TransactionIncome  TransactionType = "INCOME"
	TransactionExpense TransactionType = "EXPENSE"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionIncome || t == TransactionExpense
}

// SignedEffect is the balance delta a transaction contributes:
// +value for INCOME, -value for EXPENSE.
func SignedEffect(t TransactionType, value decimal.Decimal) decimal.Decimal {
	if t == TransactionIncome {
		return value
	}
	return value.Neg()
}

// Transaction is a signed monetary event on exactly one account.
// Value is always a positive magnitude; Type carries the sign.
type Transaction struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Value      decimal.Decimal `json:"value"`
	Type       TransactionType `json:"type"`
	Date       time.Time       `json:"date"`
	AccountID  string          `json:"accountId"`
	CategoryID *string         `json:"categoryId"`
	OwnerID    string          `json:"-"`
	CreatedAt  time.Time       `json:"createdAt"`
	Category   *CategoryRef    `json:"category"`
	Account    *AccountRef     `json:"account,omitempty"`
}

// SignedEffect returns the balance delta of this transaction.
func (t *Transaction) SignedEffect() decimal.Decimal {
	return SignedEffect(t.Type, t.Value)
}

// TransactionFilter restricts a transaction listing.
// AccountIDs is always the caller's owned set (or a single owned account).
type TransactionFilter struct {
	AccountIDs []string
	CategoryID *string
	Limit      int
}

// CreateTransactionRequest is the body for POST /v1/transactions.
type CreateTransactionRequest struct {
	Name       string          `json:"name" validate:"required,min=1,max=255"`
	Value      decimal.Decimal `json:"value"`
	Type       TransactionType `json:"type" validate:"required,oneof=INCOME EXPENSE"`
	Date       *string         `json:"date"`
	AccountID  string          `json:"accountId" validate:"required,min=1"`
	CategoryID *string         `json:"categoryId" validate:"omitempty,min=1"`
}

// UpdateTransactionRequest is the body for PATCH /v1/transactions/{id}.
// Absent fields keep their value; "categoryId": null clears the category.
type UpdateTransactionRequest struct {
	Name       *string          `json:"name" validate:"omitempty,min=1,max=255"`
	Value      *decimal.Decimal `json:"value"`
	Type       *TransactionType `json:"type" validate:"omitempty,oneof=INCOME EXPENSE"`
	Date       *string          `json:"date"`
	CategoryID NullableString   `json:"categoryId"`
}

// TransactionPatch is a validated update: pointer fields are nil when untouched.
type TransactionPatch struct {
	Name       *string
	Value      *decimal.Decimal
	Type       *TransactionType
	Date       *time.Time
	CategoryID NullableString
}

// Apply returns a copy of t with the patch applied.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Value != nil {
		t.Value = *p.Value
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.CategoryID.Set {
		t.CategoryID = p.CategoryID.Value
		t.Category = nil
	}
	return t
}
