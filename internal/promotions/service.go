package promotions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/mesa-backend/pkg/db"
	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
	"github.com/angelmondragon/mesa-backend/pkg/pagination"
	"github.com/angelmondragon/mesa-backend/pkg/pricing"
)

const codeConstraint = "ux_promotions_code"

// Service manages promotions and feeds the pricing engine.
type Service interface {
	List(ctx context.Context, params pagination.Params) (*pagination.Page[PromotionDTO], error)
	ListPublic(ctx context.Context) ([]PublicPromotionDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*PromotionDTO, error)
	Create(ctx context.Context, input CreateInput) (*PromotionDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*PromotionDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// ActiveAutoApply lists live auto-apply promotions in creation order,
	// the candidate set for cart refreshes.
	ActiveAutoApply(ctx context.Context) ([]pricing.Promotion, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("promotion repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*pagination.Page[PromotionDTO], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list promotions")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(p models.Promotion) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	items := make([]PromotionDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, FromModel(row))
	}
	return &pagination.Page[PromotionDTO]{Items: items, NextCursor: next}, nil
}

func (s *service) ListPublic(ctx context.Context) ([]PublicPromotionDTO, error) {
	live, err := s.live(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PublicPromotionDTO, 0, len(live))
	for _, promo := range live {
		out = append(out, publicFromModel(promo))
	}
	return out, nil
}

func (s *service) ActiveAutoApply(ctx context.Context) ([]pricing.Promotion, error) {
	live, err := s.live(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]pricing.Promotion, 0, len(live))
	for _, promo := range live {
		if promo.AutoApply {
			out = append(out, ToPricing(promo))
		}
	}
	return out, nil
}

func (s *service) live(ctx context.Context) ([]models.Promotion, error) {
	rows, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list active promotions")
	}
	now := s.now().UTC()
	live := rows[:0]
	for _, row := range rows {
		if row.LiveAt(now) {
			live = append(live, row)
		}
	}
	return live, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*PromotionDTO, error) {
	promo, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromModel(*promo)
	return &dto, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*PromotionDTO, error) {
	promo := &models.Promotion{
		Code:               normalizeCode(input.Code),
		Description:        strings.TrimSpace(input.Description),
		DiscountPercentage: input.DiscountPercentage,
		MinimumOrder:       input.MinimumOrder,
		AutoApply:          input.AutoApply,
		IsActive:           input.IsActive,
		StartsAt:           utcPtr(input.StartsAt),
		EndsAt:             utcPtr(input.EndsAt),
	}
	if err := validate(promo); err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, promo)
	if err != nil {
		return nil, mapWriteError(err, promo.Code)
	}
	dto := FromModel(*created)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*PromotionDTO, error) {
	promo, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Code != nil {
		promo.Code = normalizeCode(*input.Code)
	}
	if input.Description != nil {
		promo.Description = strings.TrimSpace(*input.Description)
	}
	if input.DiscountPercentage != nil {
		promo.DiscountPercentage = *input.DiscountPercentage
	}
	if input.MinimumOrder != nil {
		promo.MinimumOrder = *input.MinimumOrder
	}
	if input.AutoApply != nil {
		promo.AutoApply = *input.AutoApply
	}
	if input.IsActive != nil {
		promo.IsActive = *input.IsActive
	}
	if input.ClearWindow {
		promo.StartsAt, promo.EndsAt = nil, nil
	}
	if input.StartsAt != nil {
		promo.StartsAt = utcPtr(input.StartsAt)
	}
	if input.EndsAt != nil {
		promo.EndsAt = utcPtr(input.EndsAt)
	}

	if err := validate(promo); err != nil {
		return nil, err
	}
	saved, err := s.repo.Save(ctx, promo)
	if err != nil {
		return nil, mapWriteError(err, promo.Code)
	}
	dto := FromModel(*saved)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete promotion")
	}
	if !deleted {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "promotion %s not found", id)
	}
	return nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Promotion, error) {
	promo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "promotion %s not found", id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load promotion")
	}
	return promo, nil
}

func validate(promo *models.Promotion) error {
	if promo.Code == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	if err := pricing.ValidatePromotionTerms(promo.DiscountPercentage, promo.MinimumOrder); err != nil {
		return err
	}
	if promo.StartsAt != nil && promo.EndsAt != nil && !promo.EndsAt.After(*promo.StartsAt) {
		return pkgerrors.New(pkgerrors.CodeValidation, "ends_at must be after starts_at")
	}
	return nil
}

func mapWriteError(err error, code string) error {
	if dbpkg.IsUniqueViolation(err, codeConstraint) || dbpkg.IsUniqueViolation(err, "") {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "promotion code %q already exists", code)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save promotion")
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
