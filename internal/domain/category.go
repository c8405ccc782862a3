package domain

import "time"

// Category is a user-defined tag for transactions, optionally nested under a parent.
type Category struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Color            *string       `json:"color"`
	ParentID         *string       `json:"parentId"`
	UserID           string        `json:"-"`
	CreatedAt        time.Time     `json:"createdAt"`
	Parent           *CategoryRef  `json:"parent"`
	Children         []CategoryRef `json:"children"`
	TransactionCount int           `json:"transactionCount"`
}

// CategoryRef is the denormalized category summary.
type CategoryRef struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Color *string `json:"color"`
}

// CreateCategoryRequest is the body for POST /v1/categories.
type CreateCategoryRequest struct {
	Name     string  `json:"name" validate:"required,min=1,max=100"`
	Color    *string `json:"color" validate:"omitempty,hexcolor,len=7"`
	ParentID *string `json:"parentId" validate:"omitempty,min=1"`
}

// UpdateCategoryRequest is the body for PATCH /v1/categories/{id}.
type UpdateCategoryRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Color    *string `json:"color" validate:"omitempty,hexcolor,len=7"`
	ParentID *string `json:"parentId" validate:"omitempty,min=1"`
}
