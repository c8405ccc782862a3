package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/planeja-api-go/internal/domain"

	"github.com/shopspring/decimal"
)

// ============================================================
// Transactions
// ============================================================

// transactionSelect resolves the ownership chain (account -> wallet -> user)
// and the denormalized category and account summaries in one pass.
const transactionSelect = `SELECT t.id, t.name, t.value, t.type, t.date, t.account_id, t.category_id, t.created_at,
	w.user_id, a.name, w.id, w.name, w.color,
	c.id, c.name, c.color
	FROM transactions t
	JOIN accounts a ON a.id = t.account_id
	JOIN wallets w ON w.id = a.wallet_id
	LEFT JOIN categories c ON c.id = t.category_id`

func (q *queries) CreateTransaction(ctx context.Context, t *domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "SQLite.CreateTransaction")
	defer span.End()

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO transactions (id, name, value, type, date, account_id, category_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Value.String(), string(t.Type), formatTime(t.Date), t.AccountID,
		nullString(t.CategoryID), formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (q *queries) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "SQLite.GetTransaction")
	defer span.End()

	t, err := scanTransaction(q.db.QueryRowContext(ctx, transactionSelect+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// ListTransactions returns transactions on the given accounts, newest date
// first, insertion order breaking ties. An empty account set matches nothing.
func (q *queries) ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "SQLite.ListTransactions")
	defer span.End()

	txs := make([]domain.Transaction, 0)
	if len(f.AccountIDs) == 0 {
		return txs, nil
	}

	var (
		sb   strings.Builder
		args = make([]any, 0, len(f.AccountIDs)+2)
	)
	sb.WriteString(transactionSelect)
	sb.WriteString(` WHERE t.account_id IN (` + placeholders(len(f.AccountIDs)) + `)`)
	for _, id := range f.AccountIDs {
		args = append(args, id)
	}
	if f.CategoryID != nil {
		sb.WriteString(` AND t.category_id = ?`)
		args = append(args, *f.CategoryID)
	}
	sb.WriteString(` ORDER BY t.date DESC, t.rowid DESC`)
	if f.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func (q *queries) UpdateTransaction(ctx context.Context, t *domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "SQLite.UpdateTransaction")
	defer span.End()

	_, err := q.db.ExecContext(ctx,
		`UPDATE transactions SET name = ?, value = ?, type = ?, date = ?, category_id = ? WHERE id = ?`,
		t.Name, t.Value.String(), string(t.Type), formatTime(t.Date), nullString(t.CategoryID), t.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

func (q *queries) DeleteTransaction(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "SQLite.DeleteTransaction")
	defer span.End()

	if _, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

// SumTransactionsByType totals transaction values on the given accounts dated
// in [from, to). Values are summed as decimals, never as floats.
func (q *queries) SumTransactionsByType(ctx context.Context, accountIDs []string, from, to time.Time) (decimal.Decimal, decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "SQLite.SumTransactionsByType")
	defer span.End()

	income, expense := decimal.Zero, decimal.Zero
	if len(accountIDs) == 0 {
		return income, expense, nil
	}

	args := make([]any, 0, len(accountIDs)+2)
	for _, id := range accountIDs {
		args = append(args, id)
	}
	args = append(args, formatTime(from), formatTime(to))

	rows, err := q.db.QueryContext(ctx,
		`SELECT type, value FROM transactions
		 WHERE account_id IN (`+placeholders(len(accountIDs))+`) AND date >= ? AND date < ?`, args...)
	if err != nil {
		return income, expense, fmt.Errorf("query transaction sums: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var typ, raw string
		if err := rows.Scan(&typ, &raw); err != nil {
			return income, expense, fmt.Errorf("scan transaction sum: %w", err)
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return income, expense, fmt.Errorf("parse value %q: %w", raw, err)
		}
		switch domain.TransactionType(typ) {
		case domain.TransactionIncome:
			income = income.Add(v)
		case domain.TransactionExpense:
			expense = expense.Add(v)
		}
	}
	if err := rows.Err(); err != nil {
		return income, expense, fmt.Errorf("iterate transaction sums: %w", err)
	}
	return income, expense, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var (
		t           domain.Transaction
		value, typ  string
		date        string
		createdAt   string
		categoryID  sql.NullString
		accountName string
		wallet      domain.WalletRef
		catRefID    sql.NullString
		catRefName  sql.NullString
		catRefColor sql.NullString
	)
	err := s.Scan(&t.ID, &t.Name, &value, &typ, &date, &t.AccountID, &categoryID, &createdAt,
		&t.OwnerID, &accountName, &wallet.ID, &wallet.Name, &wallet.Color,
		&catRefID, &catRefName, &catRefColor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	if t.Value, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("parse value %q: %w", value, err)
	}
	t.Type = domain.TransactionType(typ)
	if t.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	t.CategoryID = stringPtr(categoryID)
	if catRefID.Valid {
		t.Category = &domain.CategoryRef{ID: catRefID.String, Name: catRefName.String, Color: stringPtr(catRefColor)}
	}
	t.Account = &domain.AccountRef{ID: t.AccountID, Name: accountName, Wallet: &wallet}
	return &t, nil
}
