package menu

import (
	"time"

	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	"github.com/angelmondragon/mesa-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MenuItemDTO is the API shape of a menu item.
type MenuItemDTO struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	Description *string            `json:"description,omitempty"`
	Category    enums.MenuCategory `json:"category"`
	Price       decimal.Decimal    `json:"price"`
	ImageURL    *string            `json:"image_url,omitempty"`
	IsAvailable bool               `json:"is_available"`
	IsFeatured  bool               `json:"is_featured"`
	DietaryTags []string           `json:"dietary_tags"`
	SortOrder   int                `json:"sort_order"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func FromModel(m models.MenuItem) MenuItemDTO {
	tags := []string(m.DietaryTags)
	if tags == nil {
		tags = []string{}
	}
	return MenuItemDTO{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Category:    m.Category,
		Price:       m.Price,
		ImageURL:    m.ImageURL,
		IsAvailable: m.IsAvailable,
		IsFeatured:  m.IsFeatured,
		DietaryTags: tags,
		SortOrder:   m.SortOrder,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ListFilters are the browse knobs of GET /menu.
type ListFilters struct {
	Category  *enums.MenuCategory
	Available *bool
	Featured  *bool
	Query     string
}

// CreateInput carries a new menu item.
type CreateInput struct {
	Name        string
	Description *string
	Category    enums.MenuCategory
	Price       decimal.Decimal
	ImageURL    *string
	IsAvailable bool
	IsFeatured  bool
	DietaryTags []string
	SortOrder   int
}

// UpdateInput is a partial update; nil fields are left alone.
type UpdateInput struct {
	Name        *string
	Description *string
	Category    *enums.MenuCategory
	Price       *decimal.Decimal
	ImageURL    *string
	IsAvailable *bool
	IsFeatured  *bool
	DietaryTags *[]string
	SortOrder   *int
}
