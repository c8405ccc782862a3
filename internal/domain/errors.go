package domain

import (
	"errors"
	"fmt"
)

// Error types for consistent error handling across the API.

// ErrNotFound indicates a resource was not found or is not owned by the caller.
// Both cases produce the same error so ownership never leaks.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// Message returns the user-facing message for the resource.
func (e *ErrNotFound) Message() string {
	switch e.Resource {
	case "user":
		return "Usuário não encontrado"
	case "wallet":
		return "Carteira não encontrada"
	case "account":
		return "Conta não encontrada"
	case "category":
		return "Categoria não encontrada"
	case "parent category":
		return "Categoria pai não encontrada"
	case "transaction":
		return "Transação não encontrada"
	default:
		return "Recurso não encontrado"
	}
}

// ErrConflict indicates a resource already exists (e.g. duplicate email or category name).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrCategoryInUse indicates a category cannot be removed while transactions reference it.
type ErrCategoryInUse struct {
	CategoryID   string
	Transactions int
}

func (e *ErrCategoryInUse) Error() string {
	return fmt.Sprintf("Esta categoria possui %d transação(ões) associada(s). Remova ou reclassifique as transações antes de excluir.", e.Transactions)
}

// ErrInvalidArgument indicates a structurally nonsensical request (e.g. self-parenting).
type ErrInvalidArgument struct {
	Message string
}

func (e *ErrInvalidArgument) Error() string {
	return e.Message
}

// FieldErrors maps a dot-joined field path ("root" when empty) to its messages.
type FieldErrors map[string][]string

// Add appends a message for the given field path.
func (f FieldErrors) Add(field, message string) {
	if field == "" {
		field = "root"
	}
	f[field] = append(f[field], message)
}

// ErrValidation indicates the input failed shape or constraint validation.
type ErrValidation struct {
	Fields FieldErrors
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

// ErrUnauthorized indicates missing or invalid credentials.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrCircuitOpen indicates the circuit breaker in front of the store is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// IsDomainError reports whether err is one of the expected business errors
// (as opposed to an infrastructure failure).
func IsDomainError(err error) bool {
	var (
		notFound   *ErrNotFound
		conflict   *ErrConflict
		inUse      *ErrCategoryInUse
		invalid    *ErrInvalidArgument
		validation *ErrValidation
		unauth     *ErrUnauthorized
	)
	return errors.As(err, &notFound) ||
		errors.As(err, &conflict) ||
		errors.As(err, &inUse) ||
		errors.As(err, &invalid) ||
		errors.As(err, &validation) ||
		errors.As(err, &unauth)
}
