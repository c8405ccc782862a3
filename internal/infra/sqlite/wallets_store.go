package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/boddenberg/planeja-api-go/internal/domain"
)

// ============================================================
// Wallets
// ============================================================

func (q *queries) CreateWallet(ctx context.Context, w *domain.Wallet) error {
	ctx, span := tracer.Start(ctx, "SQLite.CreateWallet")
	defer span.End()

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO wallets (id, name, color, icon, user_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.Color, nullString(w.Icon), w.UserID, formatTime(w.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

func (q *queries) GetWallet(ctx context.Context, id string) (*domain.Wallet, error) {
	ctx, span := tracer.Start(ctx, "SQLite.GetWallet")
	defer span.End()

	row := q.db.QueryRowContext(ctx,
		`SELECT id, name, color, icon, user_id, created_at FROM wallets WHERE id = ?`, id)

	w, err := scanWallet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

// ListWallets returns the user's wallets, newest first, each with its accounts.
func (q *queries) ListWallets(ctx context.Context, userID string) ([]domain.Wallet, error) {
	ctx, span := tracer.Start(ctx, "SQLite.ListWallets")
	defer span.End()

	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, color, icon, user_id, created_at FROM wallets
		 WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query wallets: %w", err)
	}
	defer rows.Close()

	wallets := make([]domain.Wallet, 0)
	index := make(map[string]int)
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		w.Accounts = make([]domain.Account, 0)
		index[w.ID] = len(wallets)
		wallets = append(wallets, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}

	accounts, err := q.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		if i, ok := index[a.WalletID]; ok {
			wallets[i].Accounts = append(wallets[i].Accounts, a)
		}
	}
	return wallets, nil
}

func (q *queries) UpdateWallet(ctx context.Context, w *domain.Wallet) error {
	ctx, span := tracer.Start(ctx, "SQLite.UpdateWallet")
	defer span.End()

	_, err := q.db.ExecContext(ctx,
		`UPDATE wallets SET name = ?, color = ?, icon = ? WHERE id = ?`,
		w.Name, w.Color, nullString(w.Icon), w.ID,
	)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	return nil
}

func (q *queries) DeleteWallet(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "SQLite.DeleteWallet")
	defer span.End()

	if _, err := q.db.ExecContext(ctx, `DELETE FROM wallets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete wallet: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWallet(s scanner) (*domain.Wallet, error) {
	var (
		w         domain.Wallet
		icon      sql.NullString
		createdAt string
	)
	if err := s.Scan(&w.ID, &w.Name, &w.Color, &icon, &w.UserID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	w.Icon = stringPtr(icon)

	var err error
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &w, nil
}
