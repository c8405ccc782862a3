package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/planeja-api-go/internal/domain"
	"github.com/boddenberg/planeja-api-go/internal/port"
	"github.com/boddenberg/planeja-api-go/internal/validate"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var categoryTracer = otel.Tracer("service/categories")

const duplicateCategoryMessage = "Já existe uma categoria com este nome"

// CategoryService manages the user's category hierarchy.
//
// Nesting is meant to be one level deep, but a child may still be chosen as
// a parent: deeper chains are accepted as they always were.
type CategoryService struct {
	store  port.Store
	now    Clock
	logger *zap.Logger
}

// NewCategoryService creates a new category service. A nil clock means time.Now.
func NewCategoryService(store port.Store, now Clock, logger *zap.Logger) *CategoryService {
	if now == nil {
		now = time.Now
	}
	return &CategoryService{store: store, now: now, logger: logger}
}

func (s *CategoryService) List(ctx context.Context, userID string) ([]domain.Category, error) {
	ctx, span := categoryTracer.Start(ctx, "CategoryService.List")
	defer span.End()

	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return s.store.ListCategories(ctx, userID)
}

func (s *CategoryService) Get(ctx context.Context, userID, id string) (*domain.Category, error) {
	ctx, span := categoryTracer.Start(ctx, "CategoryService.Get")
	defer span.End()

	return NewOwnership(s.store).Category(ctx, userID, id)
}

// ============================================================
// Create — POST /v1/categories
// ============================================================

func (s *CategoryService) Create(ctx context.Context, userID string, req *domain.CreateCategoryRequest) (*domain.Category, error) {
	ctx, span := categoryTracer.Start(ctx, "CategoryService.Create")
	defer span.End()

	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	c := &domain.Category{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Color:     req.Color,
		ParentID:  req.ParentID,
		UserID:    userID,
		CreatedAt: s.now().UTC(),
	}

	var created *domain.Category
	err := s.store.RunAtomic(ctx, func(q port.Queries) error {
		if err := ensureNameFree(ctx, q, userID, c.Name, ""); err != nil {
			return err
		}
		if c.ParentID != nil {
			if _, err := NewOwnership(q).ParentCategory(ctx, userID, *c.ParentID); err != nil {
				return err
			}
		}
		if err := q.CreateCategory(ctx, c); err != nil {
			return err
		}

		var err error
		created, err = q.GetCategory(ctx, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("category created",
		zap.String("category_id", created.ID),
		zap.String("user_id", userID),
	)
	return created, nil
}

// ============================================================
// Update — PATCH /v1/categories/{id}
// ============================================================

func (s *CategoryService) Update(ctx context.Context, userID, id string, req *domain.UpdateCategoryRequest) (*domain.Category, error) {
	ctx, span := categoryTracer.Start(ctx, "CategoryService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("category.id", id))

	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	var updated *domain.Category
	err := s.store.RunAtomic(ctx, func(q port.Queries) error {
		own := NewOwnership(q)

		current, err := own.Category(ctx, userID, id)
		if err != nil {
			return err
		}
		// Ownership first: a foreign category is NotFound whatever the patch says.
		if req.ParentID != nil && *req.ParentID == id {
			return &domain.ErrInvalidArgument{Message: "Uma categoria não pode ser pai de si mesma"}
		}
		if req.Name != nil && *req.Name != current.Name {
			if err := ensureNameFree(ctx, q, userID, *req.Name, id); err != nil {
				return err
			}
			current.Name = *req.Name
		}
		if req.Color != nil {
			current.Color = req.Color
		}
		if req.ParentID != nil {
			if _, err := own.ParentCategory(ctx, userID, *req.ParentID); err != nil {
				return err
			}
			current.ParentID = req.ParentID
		}

		if err := q.UpdateCategory(ctx, current); err != nil {
			return err
		}
		updated, err = q.GetCategory(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("category updated", zap.String("category_id", id))
	return updated, nil
}

// ============================================================
// Remove — DELETE /v1/categories/{id}
// ============================================================

// Remove deletes the category unless transactions still reference it. The
// count and the delete share one atomic unit, so a transaction tagged
// concurrently cannot slip in between.
func (s *CategoryService) Remove(ctx context.Context, userID, id string) error {
	ctx, span := categoryTracer.Start(ctx, "CategoryService.Remove")
	defer span.End()
	span.SetAttributes(attribute.String("category.id", id))

	if err := requireUser(userID); err != nil {
		return err
	}

	err := s.store.RunAtomic(ctx, func(q port.Queries) error {
		if _, err := NewOwnership(q).Category(ctx, userID, id); err != nil {
			return err
		}

		n, err := q.CountCategoryTransactions(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return &domain.ErrCategoryInUse{CategoryID: id, Transactions: n}
		}
		return q.DeleteCategory(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("category removed", zap.String("category_id", id))
	return nil
}

// ensureNameFree fails with ErrConflict when another category of the user
// (other than exceptID) already uses name.
func ensureNameFree(ctx context.Context, q port.Queries, userID, name, exceptID string) error {
	existing, err := q.FindCategoryByName(ctx, userID, name)
	if err != nil {
		return fmt.Errorf("find category by name: %w", err)
	}
	if existing != nil && existing.ID != exceptID {
		return &domain.ErrConflict{Message: duplicateCategoryMessage}
	}
	return nil
}
