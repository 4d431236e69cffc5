package menu

import (
	"context"
	"errors"
	"fmt"
	"strings"

	dbpkg "github.com/angelmondragon/mesa-backend/pkg/db"
	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
	"github.com/angelmondragon/mesa-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const nameConstraint = "ux_menu_items_name"

// Service exposes catalog reads for everyone and writes for admins.
type Service interface {
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*pagination.Page[MenuItemDTO], error)
	Get(ctx context.Context, id uuid.UUID) (*MenuItemDTO, error)
	Create(ctx context.Context, input CreateInput) (*MenuItemDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*MenuItemDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("menu repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*pagination.Page[MenuItemDTO], error) {
	if filters.Category != nil && !filters.Category.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid category %q", *filters.Category)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filters, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list menu items")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(m models.MenuItem) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})

	items := make([]MenuItemDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, FromModel(row))
	}
	return &pagination.Page[MenuItemDTO]{Items: items, NextCursor: next}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*MenuItemDTO, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromModel(*item)
	return &dto, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*MenuItemDTO, error) {
	item := &models.MenuItem{
		Name:        strings.TrimSpace(input.Name),
		Description: trimmedOrNil(input.Description),
		Category:    input.Category,
		Price:       input.Price,
		ImageURL:    trimmedOrNil(input.ImageURL),
		IsAvailable: input.IsAvailable,
		IsFeatured:  input.IsFeatured,
		DietaryTags: normalizeTags(input.DietaryTags),
		SortOrder:   input.SortOrder,
	}
	if err := validateItem(item); err != nil {
		return nil, err
	}

	created, err := s.repo.Create(ctx, item)
	if err != nil {
		return nil, mapWriteError(err, item.Name)
	}
	dto := FromModel(*created)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*MenuItemDTO, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	applyUpdate(item, input)
	if err := validateItem(item); err != nil {
		return nil, err
	}

	saved, err := s.repo.Save(ctx, item)
	if err != nil {
		return nil, mapWriteError(err, item.Name)
	}
	dto := FromModel(*saved)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		if dbpkg.IsForeignKeyViolation(err) {
			return pkgerrors.New(pkgerrors.CodeConflict, "menu item is referenced by orders; mark it unavailable instead")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete menu item")
	}
	if !deleted {
		return notFound(id)
	}
	return nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.MenuItem, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load menu item")
	}
	return item, nil
}

func notFound(id uuid.UUID) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "menu item %s not found", id)
}

func mapWriteError(err error, name string) error {
	if dbpkg.IsUniqueViolation(err, nameConstraint) || dbpkg.IsUniqueViolation(err, "") {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "a menu item named %q already exists", name)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save menu item")
}

func validateItem(item *models.MenuItem) error {
	if item.Name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !item.Category.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid category %q", item.Category)
	}
	if item.Price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	return nil
}

func applyUpdate(item *models.MenuItem, input UpdateInput) {
	if input.Name != nil {
		item.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		item.Description = trimmedOrNil(input.Description)
	}
	if input.Category != nil {
		item.Category = *input.Category
	}
	if input.Price != nil {
		item.Price = *input.Price
	}
	if input.ImageURL != nil {
		item.ImageURL = trimmedOrNil(input.ImageURL)
	}
	if input.IsAvailable != nil {
		item.IsAvailable = *input.IsAvailable
	}
	if input.IsFeatured != nil {
		item.IsFeatured = *input.IsFeatured
	}
	if input.DietaryTags != nil {
		item.DietaryTags = normalizeTags(*input.DietaryTags)
	}
	if input.SortOrder != nil {
		item.SortOrder = *input.SortOrder
	}
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// normalizeTags lower-cases, trims and de-duplicates while keeping order.
func normalizeTags(tags []string) pq.StringArray {
	out := make(pq.StringArray, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
