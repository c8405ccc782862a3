package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/boddenberg/planeja-api-go/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ============================================================
// Accounts
// ============================================================

const accountColumns = `a.id, a.name, a.balance, a.wallet_id, a.created_at, w.user_id`

func (q *queries) CreateAccount(ctx context.Context, a *domain.Account) error {
	ctx, span := tracer.Start(ctx, "SQLite.CreateAccount")
	defer span.End()

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name, balance, wallet_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Balance.String(), a.WalletID, formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (q *queries) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "SQLite.GetAccount")
	defer span.End()

	row := q.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts a JOIN wallets w ON w.id = a.wallet_id WHERE a.id = ?`, id)

	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (q *queries) ListAccountsByWallet(ctx context.Context, walletID string) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "SQLite.ListAccountsByWallet")
	defer span.End()

	return q.listAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts a JOIN wallets w ON w.id = a.wallet_id
		 WHERE a.wallet_id = ? ORDER BY a.created_at DESC, a.rowid DESC`, walletID)
}

func (q *queries) ListAccountsByUser(ctx context.Context, userID string) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "SQLite.ListAccountsByUser")
	defer span.End()

	return q.listAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts a JOIN wallets w ON w.id = a.wallet_id
		 WHERE w.user_id = ? ORDER BY a.created_at DESC, a.rowid DESC`, userID)
}

func (q *queries) listAccounts(ctx context.Context, query string, args ...any) ([]domain.Account, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

func (q *queries) RenameAccount(ctx context.Context, id, name string) error {
	ctx, span := tracer.Start(ctx, "SQLite.RenameAccount")
	defer span.End()

	if _, err := q.db.ExecContext(ctx, `UPDATE accounts SET name = ? WHERE id = ?`, name, id); err != nil {
		return fmt.Errorf("rename account: %w", err)
	}
	return nil
}

// DeleteAccount removes the account and, by cascade, its transactions.
func (q *queries) DeleteAccount(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "SQLite.DeleteAccount")
	defer span.End()

	if _, err := q.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// ApplyBalanceDelta reads the current balance, adds delta with decimal
// arithmetic and writes it back. Inside RunAtomic the read and the write
// happen under the same write lock.
func (q *queries) ApplyBalanceDelta(ctx context.Context, accountID string, delta decimal.Decimal) error {
	ctx, span := tracer.Start(ctx, "SQLite.ApplyBalanceDelta")
	defer span.End()

	var raw string
	err := q.db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = ?`, accountID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.ErrNotFound{Resource: "account", ID: accountID}
	}
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}

	current, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("parse balance %q: %w", raw, err)
	}
	next := current.Add(delta)

	if _, err := q.db.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, next.String(), accountID); err != nil {
		return fmt.Errorf("write balance: %w", err)
	}

	q.logger.Debug("sqlite: balance adjusted",
		zap.String("account_id", accountID),
		zap.String("old_balance", current.String()),
		zap.String("delta", delta.String()),
		zap.String("new_balance", next.String()),
	)
	return nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var (
		a         domain.Account
		balance   string
		createdAt string
	)
	if err := s.Scan(&a.ID, &a.Name, &balance, &a.WalletID, &createdAt, &a.OwnerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	var err error
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &a, nil
}
