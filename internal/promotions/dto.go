package promotions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	"github.com/angelmondragon/mesa-backend/pkg/pricing"
)

// PromotionDTO is the admin view of a promotion.
type PromotionDTO struct {
	ID                 uuid.UUID       `json:"id"`
	Code               string          `json:"code"`
	Description        string          `json:"description"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	MinimumOrder       decimal.Decimal `json:"minimum_order"`
	AutoApply          bool            `json:"auto_apply"`
	IsActive           bool            `json:"is_active"`
	StartsAt           *time.Time      `json:"starts_at,omitempty"`
	EndsAt             *time.Time      `json:"ends_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// PublicPromotionDTO is what guests see on the storefront.
type PublicPromotionDTO struct {
	ID                 uuid.UUID       `json:"id"`
	Code               string          `json:"code"`
	Description        string          `json:"description"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	MinimumOrder       decimal.Decimal `json:"minimum_order"`
	AutoApply          bool            `json:"auto_apply"`
	EndsAt             *time.Time      `json:"ends_at,omitempty"`
}

func FromModel(m models.Promotion) PromotionDTO {
	return PromotionDTO{
		ID:                 m.ID,
		Code:               m.Code,
		Description:        m.Description,
		DiscountPercentage: m.DiscountPercentage,
		MinimumOrder:       m.MinimumOrder,
		AutoApply:          m.AutoApply,
		IsActive:           m.IsActive,
		StartsAt:           m.StartsAt,
		EndsAt:             m.EndsAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func publicFromModel(m models.Promotion) PublicPromotionDTO {
	return PublicPromotionDTO{
		ID:                 m.ID,
		Code:               m.Code,
		Description:        m.Description,
		DiscountPercentage: m.DiscountPercentage,
		MinimumOrder:       m.MinimumOrder,
		AutoApply:          m.AutoApply,
		EndsAt:             m.EndsAt,
	}
}

// ToPricing narrows a stored promotion to the selector's view.
func ToPricing(m models.Promotion) pricing.Promotion {
	return pricing.Promotion{
		ID:                 m.ID,
		Code:               m.Code,
		Description:        m.Description,
		DiscountPercentage: m.DiscountPercentage,
		MinimumOrder:       m.MinimumOrder,
		AutoApply:          m.AutoApply,
	}
}

// CreateInput carries a new promotion.
type CreateInput struct {
	Code               string
	Description        string
	DiscountPercentage decimal.Decimal
	MinimumOrder       decimal.Decimal
	AutoApply          bool
	IsActive           bool
	StartsAt           *time.Time
	EndsAt             *time.Time
}

// UpdateInput is a partial update; nil fields are left alone. ClearWindow
// drops both window bounds.
type UpdateInput struct {
	Code               *string
	Description        *string
	DiscountPercentage *decimal.Decimal
	MinimumOrder       *decimal.Decimal
	AutoApply          *bool
	IsActive           *bool
	StartsAt           *time.Time
	EndsAt             *time.Time
	ClearWindow        bool
}
