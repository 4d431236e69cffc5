package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mesa-backend/pkg/enums"
)

// Order is the persisted snapshot of a cart at submission time.
type Order struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       *uuid.UUID        `gorm:"column:user_id;type:uuid"`
	GuestName    *string           `gorm:"column:guest_name"`
	GuestEmail   *string           `gorm:"column:guest_email"`
	GuestPhone   *string           `gorm:"column:guest_phone"`
	PromotionID  *uuid.UUID        `gorm:"column:promotion_id;type:uuid"`
	Status       enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Subtotal     decimal.Decimal   `gorm:"column:subtotal;type:numeric(10,2);not null"`
	Discount     decimal.Decimal   `gorm:"column:discount;type:numeric(10,2);not null;default:0"`
	Total        decimal.Decimal   `gorm:"column:total;type:numeric(10,2);not null"`
	Notes        *string           `gorm:"column:notes"`
	CancelReason *string           `gorm:"column:cancel_reason"`
	ConfirmedAt  *time.Time        `gorm:"column:confirmed_at"`
	CompletedAt  *time.Time        `gorm:"column:completed_at"`
	CancelledAt  *time.Time        `gorm:"column:cancelled_at"`
	Items        []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem is an immutable line on a placed order.
type OrderItem struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	MenuItemID uuid.UUID       `gorm:"column:menu_item_id;type:uuid;not null"`
	Name       string          `gorm:"column:name;not null"`
	Quantity   int             `gorm:"column:quantity;not null"`
	UnitPrice  decimal.Decimal `gorm:"column:unit_price;type:numeric(10,2);not null"`
	LineTotal  decimal.Decimal `gorm:"column:line_total;type:numeric(10,2);not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}
