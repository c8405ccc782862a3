package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/boddenberg/planeja-api-go/internal/domain"
)

// ============================================================
// Users & refresh tokens
// ============================================================

func (q *queries) CreateUser(ctx context.Context, u *domain.User) error {
	ctx, span := tracer.Start(ctx, "SQLite.CreateUser")
	defer span.End()

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, formatTime(u.CreatedAt),
	)
	if isUniqueViolation(err) {
		return &domain.ErrConflict{Message: "Este e-mail já está em uso"}
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (q *queries) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "SQLite.GetUserByID")
	defer span.End()

	row := q.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (q *queries) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "SQLite.GetUserByEmail")
	defer span.End()

	row := q.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// DeleteUser removes the user; wallets, accounts, transactions, categories
// and refresh tokens go with it through ON DELETE CASCADE.
func (q *queries) DeleteUser(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "SQLite.DeleteUser")
	defer span.End()

	if _, err := q.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u         domain.User
		createdAt string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (q *queries) StoreRefreshToken(ctx context.Context, t *domain.RefreshToken) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, expires_at) VALUES (?, ?, ?)`,
		t.TokenHash, t.UserID, formatTime(t.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (q *queries) GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	var (
		t         domain.RefreshToken
		expiresAt string
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT token_hash, user_id, expires_at FROM refresh_tokens WHERE token_hash = ?`, tokenHash,
	).Scan(&t.TokenHash, &t.UserID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	if t.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (q *queries) RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return n == 1, nil
}

func (q *queries) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}
