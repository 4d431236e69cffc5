package payloads

import (
	"time"

	"github.com/angelmondragon/mesa-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderCreatedEvent is emitted once an order passes integrity validation and is stored.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	UserID      *uuid.UUID        `json:"user_id,omitempty"`
	PromotionID *uuid.UUID        `json:"promotion_id,omitempty"`
	Status      enums.OrderStatus `json:"status"`
	ItemCount   int               `json:"item_count"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
	Discount    decimal.Decimal   `json:"discount"`
	Total       decimal.Decimal   `json:"total"`
}

// OrderStatusChangedEvent covers every transition including cancellation and expiry.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
	Reason  string            `json:"reason,omitempty"`
}

// BookingCreatedEvent is emitted when a reservation is accepted and a table assigned.
type BookingCreatedEvent struct {
	BookingID   uuid.UUID           `json:"booking_id"`
	UserID      *uuid.UUID          `json:"user_id,omitempty"`
	TableID     *uuid.UUID          `json:"table_id,omitempty"`
	PartySize   int                 `json:"party_size"`
	ReservedFor time.Time           `json:"reserved_for"`
	Status      enums.BookingStatus `json:"status"`
}

// BookingStatusChangedEvent covers confirmations, seating, cancellations and no-shows.
type BookingStatusChangedEvent struct {
	BookingID uuid.UUID           `json:"booking_id"`
	From      enums.BookingStatus `json:"from"`
	To        enums.BookingStatus `json:"to"`
}
