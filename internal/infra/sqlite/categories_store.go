package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/boddenberg/planeja-api-go/internal/domain"
)

// ============================================================
// Categories
// ============================================================

const categoryConflictMessage = "Já existe uma categoria com este nome"

const categorySelect = `SELECT c.id, c.name, c.color, c.parent_id, c.user_id, c.created_at,
	p.id, p.name, p.color,
	(SELECT COUNT(*) FROM transactions t WHERE t.category_id = c.id)
	FROM categories c LEFT JOIN categories p ON p.id = c.parent_id`

func (q *queries) CreateCategory(ctx context.Context, c *domain.Category) error {
	ctx, span := tracer.Start(ctx, "SQLite.CreateCategory")
	defer span.End()

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, color, parent_id, user_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, nullString(c.Color), nullString(c.ParentID), c.UserID, formatTime(c.CreatedAt),
	)
	if isUniqueViolation(err) {
		return &domain.ErrConflict{Message: categoryConflictMessage}
	}
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// GetCategory returns the category with its parent, children and
// transaction count, or (nil, nil) when it does not exist.
func (q *queries) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	ctx, span := tracer.Start(ctx, "SQLite.GetCategory")
	defer span.End()

	c, err := scanCategory(q.db.QueryRowContext(ctx, categorySelect+` WHERE c.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	children, err := q.childCategories(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Children = children
	return c, nil
}

func (q *queries) FindCategoryByName(ctx context.Context, userID, name string) (*domain.Category, error) {
	ctx, span := tracer.Start(ctx, "SQLite.FindCategoryByName")
	defer span.End()

	c, err := scanCategory(q.db.QueryRowContext(ctx,
		categorySelect+` WHERE c.user_id = ? AND c.name = ?`, userID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// ListCategories returns all of the user's categories, top-level first and
// then by name, with the children projection filled in.
func (q *queries) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	ctx, span := tracer.Start(ctx, "SQLite.ListCategories")
	defer span.End()

	rows, err := q.db.QueryContext(ctx,
		categorySelect+` WHERE c.user_id = ? ORDER BY c.parent_id IS NOT NULL, c.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}

	index := make(map[string]int, len(categories))
	for i, c := range categories {
		index[c.ID] = i
	}
	for _, c := range categories {
		if c.ParentID == nil {
			continue
		}
		if i, ok := index[*c.ParentID]; ok {
			categories[i].Children = append(categories[i].Children, domain.CategoryRef{ID: c.ID, Name: c.Name, Color: c.Color})
		}
	}
	return categories, nil
}

func (q *queries) UpdateCategory(ctx context.Context, c *domain.Category) error {
	ctx, span := tracer.Start(ctx, "SQLite.UpdateCategory")
	defer span.End()

	_, err := q.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, color = ?, parent_id = ? WHERE id = ?`,
		c.Name, nullString(c.Color), nullString(c.ParentID), c.ID,
	)
	if isUniqueViolation(err) {
		return &domain.ErrConflict{Message: categoryConflictMessage}
	}
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return nil
}

// DeleteCategory removes the category. Children are detached (parent_id set
// to NULL) by the schema.
func (q *queries) DeleteCategory(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "SQLite.DeleteCategory")
	defer span.End()

	if _, err := q.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

func (q *queries) CountCategoryTransactions(ctx context.Context, id string) (int, error) {
	ctx, span := tracer.Start(ctx, "SQLite.CountCategoryTransactions")
	defer span.End()

	var n int
	if err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE category_id = ?`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("count category transactions: %w", err)
	}
	return n, nil
}

func (q *queries) childCategories(ctx context.Context, parentID string) ([]domain.CategoryRef, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, color FROM categories WHERE parent_id = ? ORDER BY name`, parentID)
	if err != nil {
		return nil, fmt.Errorf("query child categories: %w", err)
	}
	defer rows.Close()

	children := make([]domain.CategoryRef, 0)
	for rows.Next() {
		var (
			ref   domain.CategoryRef
			color sql.NullString
		)
		if err := rows.Scan(&ref.ID, &ref.Name, &color); err != nil {
			return nil, fmt.Errorf("scan child category: %w", err)
		}
		ref.Color = stringPtr(color)
		children = append(children, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate child categories: %w", err)
	}
	return children, nil
}

func scanCategory(s scanner) (*domain.Category, error) {
	var (
		c           domain.Category
		color       sql.NullString
		parentID    sql.NullString
		createdAt   string
		parentRefID sql.NullString
		parentName  sql.NullString
		parentColor sql.NullString
	)
	err := s.Scan(&c.ID, &c.Name, &color, &parentID, &c.UserID, &createdAt,
		&parentRefID, &parentName, &parentColor, &c.TransactionCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan category: %w", err)
	}

	c.Color = stringPtr(color)
	c.ParentID = stringPtr(parentID)
	if parentRefID.Valid {
		c.Parent = &domain.CategoryRef{ID: parentRefID.String, Name: parentName.String, Color: stringPtr(parentColor)}
	}
	c.Children = make([]domain.CategoryRef, 0)

	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}
