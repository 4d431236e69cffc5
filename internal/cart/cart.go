// Package cart holds pre-order carts. A cart lives in Redis until it is
// cleared, checked out, or its owner logs out; every mutation recomputes the
// derived totals from scratch.
package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mesa-backend/pkg/pricing"
)

// Line is one menu item in a cart with the price it was added at.
type Line struct {
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
}

// LineTotal is UnitPrice * Quantity.
func (l Line) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the stored cart value. Totals is derived; never set it directly.
type Cart struct {
	ID         uuid.UUID           `json:"id"`
	UserID     *uuid.UUID          `json:"user_id,omitempty"`
	Items      []Line              `json:"items"`
	Promotions []pricing.Promotion `json:"promotions"`
	Totals     pricing.Totals      `json:"totals"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
	// CheckoutStartedAt is set while an order is being placed from the cart.
	CheckoutStartedAt *time.Time `json:"checkout_started_at,omitempty"`
}

// checkoutClaimTTL bounds how long a checkout claim blocks the cart if the
// process placing the order dies before clearing it.
const checkoutClaimTTL = time.Minute

// CheckingOut reports whether a live checkout claim holds the cart at now.
func (c *Cart) CheckingOut(now time.Time) bool {
	return c.CheckoutStartedAt != nil && now.Sub(*c.CheckoutStartedAt) < checkoutClaimTTL
}

// New returns an empty cart with zeroed totals.
func New(userID *uuid.UUID, now time.Time) *Cart {
	c := &Cart{
		ID:        uuid.New(),
		UserID:    userID,
		Items:     []Line{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.recompute()
	return c
}

// AddItem increments the quantity of an existing line by qty, or appends the
// line with quantity qty. Name and price follow the latest catalog values.
func (c *Cart) AddItem(line Line, qty int) {
	if qty < 1 {
		qty = 1
	}
	if idx := c.indexOf(line.MenuItemID); idx >= 0 {
		c.Items[idx].Quantity += qty
		c.Items[idx].Name = line.Name
		c.Items[idx].UnitPrice = line.UnitPrice
	} else {
		line.Quantity = qty
		c.Items = append(c.Items, line)
	}
	c.recompute()
}

// RemoveItem drops the line for menuItemID. It reports whether a line existed.
func (c *Cart) RemoveItem(menuItemID uuid.UUID) bool {
	idx := c.indexOf(menuItemID)
	if idx < 0 {
		return false
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	c.recompute()
	return true
}

// SetQuantity overwrites a line's quantity; below 1 removes the line.
func (c *Cart) SetQuantity(menuItemID uuid.UUID, qty int) bool {
	idx := c.indexOf(menuItemID)
	if idx < 0 {
		return false
	}
	if qty < 1 {
		return c.RemoveItem(menuItemID)
	}
	c.Items[idx].Quantity = qty
	c.recompute()
	return true
}

// RefreshPromotions swaps the candidate promotions and reselects without
// touching the items.
func (c *Cart) RefreshPromotions(promotions []pricing.Promotion) {
	c.Promotions = append([]pricing.Promotion(nil), promotions...)
	c.recompute()
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = []Line{}
	c.recompute()
}

// LineItems projects the cart onto the pricing engine's input.
func (c *Cart) LineItems() []pricing.LineItem {
	out := make([]pricing.LineItem, 0, len(c.Items))
	for _, line := range c.Items {
		out = append(out, pricing.LineItem{
			MenuItemID: line.MenuItemID,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
		})
	}
	return out
}

func (c *Cart) recompute() {
	c.Totals = pricing.CalculateTotals(c.LineItems(), c.Promotions)
}

func (c *Cart) indexOf(menuItemID uuid.UUID) int {
	for i, line := range c.Items {
		if line.MenuItemID == menuItemID {
			return i
		}
	}
	return -1
}
