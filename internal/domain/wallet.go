package domain

import "time"

// DefaultWalletColor is used when a wallet is created without a color.
const DefaultWalletColor = "#6366F1"

// Wallet groups accounts belonging to one user.
type Wallet struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Icon      *string   `json:"icon"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	Accounts  []Account `json:"accounts"`
}

// CreateWalletRequest is the body for POST /v1/wallets.
type CreateWalletRequest struct {
	Name  string  `json:"name" validate:"required,min=1,max=100"`
	Color *string `json:"color" validate:"omitempty,hexcolor,len=7"`
	Icon  *string `json:"icon" validate:"omitempty,max=50"`
}

// UpdateWalletRequest is the body for PATCH /v1/wallets/{id}.
type UpdateWalletRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=100"`
	Color *string `json:"color" validate:"omitempty,hexcolor,len=7"`
	Icon  *string `json:"icon" validate:"omitempty,max=50"`
}
