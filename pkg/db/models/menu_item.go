package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mesa-backend/pkg/enums"
)

// MenuItem is a priced catalog entry.
type MenuItem struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string             `gorm:"column:name;not null"`
	Description *string            `gorm:"column:description"`
	Category    enums.MenuCategory `gorm:"column:category;type:text;not null"`
	Price       decimal.Decimal    `gorm:"column:price;type:numeric(10,2);not null"`
	ImageURL    *string            `gorm:"column:image_url"`
	IsAvailable bool               `gorm:"column:is_available;not null"`
	IsFeatured  bool               `gorm:"column:is_featured;not null;default:false"`
	DietaryTags pq.StringArray     `gorm:"column:dietary_tags;type:text[]"`
	SortOrder   int                `gorm:"column:sort_order;not null;default:0"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
