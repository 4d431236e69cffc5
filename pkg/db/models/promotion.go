package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Promotion is an order-level percentage discount with a minimum order.
type Promotion struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code               string          `gorm:"column:code;not null;uniqueIndex"`
	Description        string          `gorm:"column:description;not null"`
	DiscountPercentage decimal.Decimal `gorm:"column:discount_percentage;type:numeric(5,2);not null"`
	MinimumOrder       decimal.Decimal `gorm:"column:minimum_order;type:numeric(10,2);not null;default:0"`
	AutoApply          bool            `gorm:"column:auto_apply;not null"`
	IsActive           bool            `gorm:"column:is_active;not null"`
	StartsAt           *time.Time      `gorm:"column:starts_at"`
	EndsAt             *time.Time      `gorm:"column:ends_at"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// LiveAt reports whether the promotion is active and inside its window.
func (p Promotion) LiveAt(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && !now.Before(*p.EndsAt) {
		return false
	}
	return true
}
