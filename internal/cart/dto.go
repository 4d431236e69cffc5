package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mesa-backend/pkg/pricing"
)

// LineDTO is a cart line with its computed total.
type LineDTO struct {
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	LineTotal  decimal.Decimal `json:"line_total"`
}

// CartDTO is the API view of a cart.
type CartDTO struct {
	ID               uuid.UUID          `json:"id"`
	UserID           *uuid.UUID         `json:"user_id,omitempty"`
	Items            []LineDTO          `json:"items"`
	Subtotal         decimal.Decimal    `json:"subtotal"`
	AppliedPromotion *pricing.Promotion `json:"applied_promotion"`
	Discount         decimal.Decimal    `json:"discount"`
	Total            decimal.Decimal    `json:"total"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func FromCart(c *Cart) CartDTO {
	items := make([]LineDTO, 0, len(c.Items))
	for _, line := range c.Items {
		items = append(items, LineDTO{
			MenuItemID: line.MenuItemID,
			Name:       line.Name,
			UnitPrice:  line.UnitPrice,
			Quantity:   line.Quantity,
			LineTotal:  line.LineTotal(),
		})
	}
	return CartDTO{
		ID:               c.ID,
		UserID:           c.UserID,
		Items:            items,
		Subtotal:         c.Totals.Subtotal,
		AppliedPromotion: c.Totals.AppliedPromotion,
		Discount:         c.Totals.Discount,
		Total:            c.Totals.Total,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// Owner is the caller acting on a cart; UserID is nil for guests.
type Owner struct {
	UserID *uuid.UUID
}

// CheckoutInput carries what a cart lacks to become an order.
type CheckoutInput struct {
	GuestName  string
	GuestEmail string
	GuestPhone *string
	Notes      *string
}
