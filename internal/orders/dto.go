package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	"github.com/angelmondragon/mesa-backend/pkg/enums"
	"github.com/angelmondragon/mesa-backend/pkg/pricing"
)

// GuestContact identifies a customer ordering without an account.
type GuestContact struct {
	Name  string
	Email string
	Phone *string
}

// ItemInput is one submitted line: the catalog reference and the client's
// view of quantity and unit price.
type ItemInput struct {
	MenuItemID uuid.UUID
	Quantity   int
	Price      decimal.Decimal
}

// CreateOrderInput is an order submission with client-computed totals.
type CreateOrderInput struct {
	UserID      *uuid.UUID
	Guest       *GuestContact
	Items       []ItemInput
	PromotionID *uuid.UUID
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
	Notes       *string
}

func (in CreateOrderInput) lineItems() []pricing.LineItem {
	items := make([]pricing.LineItem, 0, len(in.Items))
	for _, item := range in.Items {
		items = append(items, pricing.LineItem{
			MenuItemID: item.MenuItemID,
			Quantity:   item.Quantity,
			UnitPrice:  item.Price,
		})
	}
	return items
}

// ListFilters narrows order listings.
type ListFilters struct {
	UserID *uuid.UUID
	Status *enums.OrderStatus
}

// OrderItemDTO is a placed line.
type OrderItemDTO struct {
	ID         uuid.UUID       `json:"id"`
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	LineTotal  decimal.Decimal `json:"line_total"`
}

// OrderDTO is the API view of an order.
type OrderDTO struct {
	ID           uuid.UUID         `json:"id"`
	UserID       *uuid.UUID        `json:"user_id,omitempty"`
	GuestName    *string           `json:"guest_name,omitempty"`
	GuestEmail   *string           `json:"guest_email,omitempty"`
	GuestPhone   *string           `json:"guest_phone,omitempty"`
	PromotionID  *uuid.UUID        `json:"promotion_id,omitempty"`
	Status       enums.OrderStatus `json:"status"`
	Subtotal     decimal.Decimal   `json:"subtotal"`
	Discount     decimal.Decimal   `json:"discount"`
	Total        decimal.Decimal   `json:"total"`
	Notes        *string           `json:"notes,omitempty"`
	CancelReason *string           `json:"cancel_reason,omitempty"`
	ConfirmedAt  *time.Time        `json:"confirmed_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	CancelledAt  *time.Time        `json:"cancelled_at,omitempty"`
	Items        []OrderItemDTO    `json:"items"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func FromModel(m models.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(m.Items))
	for _, item := range m.Items {
		items = append(items, OrderItemDTO{
			ID:         item.ID,
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			LineTotal:  item.LineTotal,
		})
	}
	return OrderDTO{
		ID:           m.ID,
		UserID:       m.UserID,
		GuestName:    m.GuestName,
		GuestEmail:   m.GuestEmail,
		GuestPhone:   m.GuestPhone,
		PromotionID:  m.PromotionID,
		Status:       m.Status,
		Subtotal:     m.Subtotal,
		Discount:     m.Discount,
		Total:        m.Total,
		Notes:        m.Notes,
		CancelReason: m.CancelReason,
		ConfirmedAt:  m.ConfirmedAt,
		CompletedAt:  m.CompletedAt,
		CancelledAt:  m.CancelledAt,
		Items:        items,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
