// Package pricing derives cart and order money fields from line items and
// the promotions on offer. Every function here is pure.
package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ToleranceCents is the largest drift, in cents, accepted between a
// client-submitted amount and the server-derived one.
const ToleranceCents = 1

// Tolerance is ToleranceCents expressed in currency units (0.01).
func Tolerance() decimal.Decimal {
	return decimal.New(ToleranceCents, -2)
}

var hundred = decimal.NewFromInt(100)

// LineItem is a (menu item, quantity, unit price) triple inside a cart or order.
type LineItem struct {
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// Total is UnitPrice * Quantity.
func (l LineItem) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Promotion is the subset of a stored promotion the selector needs.
type Promotion struct {
	ID                 uuid.UUID       `json:"id"`
	Code               string          `json:"code,omitempty"`
	Description        string          `json:"description"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	MinimumOrder       decimal.Decimal `json:"minimum_order"`
	AutoApply          bool            `json:"auto_apply"`
}

// Qualifies reports whether subtotal reaches the promotion's minimum order.
func (p Promotion) Qualifies(subtotal decimal.Decimal) bool {
	return subtotal.GreaterThanOrEqual(p.MinimumOrder)
}

// DiscountFor returns subtotal * percentage / 100 without rounding.
func (p Promotion) DiscountFor(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(p.DiscountPercentage).Div(hundred)
}

// Totals is the derived money state of a cart.
type Totals struct {
	Subtotal         decimal.Decimal `json:"subtotal"`
	AppliedPromotion *Promotion      `json:"applied_promotion"`
	Discount         decimal.Decimal `json:"discount"`
	Total            decimal.Decimal `json:"total"`
}

// Subtotal sums UnitPrice * Quantity over items.
func Subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Total())
	}
	return sum
}

// SelectBestPromotion keeps the promotions whose minimum order subtotal
// meets and returns the one with the highest discount percentage. When
// several share the maximum, the earliest in promotions wins. Returns nil
// when nothing qualifies.
func SelectBestPromotion(subtotal decimal.Decimal, promotions []Promotion) *Promotion {
	var best *Promotion
	for i := range promotions {
		candidate := promotions[i]
		if !candidate.Qualifies(subtotal) {
			continue
		}
		if best == nil || candidate.DiscountPercentage.GreaterThan(best.DiscountPercentage) {
			picked := candidate
			best = &picked
		}
	}
	return best
}

// CalculateTotals recomputes every derived field from scratch.
func CalculateTotals(items []LineItem, promotions []Promotion) Totals {
	subtotal := Subtotal(items)
	applied := SelectBestPromotion(subtotal, promotions)

	discount := decimal.Zero
	if applied != nil {
		discount = applied.DiscountFor(subtotal)
	}

	return Totals{
		Subtotal:         subtotal,
		AppliedPromotion: applied,
		Discount:         discount,
		Total:            subtotal.Sub(discount),
	}
}

// WithinTolerance reports whether |submitted - expected| <= Tolerance().
func WithinTolerance(submitted, expected decimal.Decimal) bool {
	return submitted.Sub(expected).Abs().LessThanOrEqual(Tolerance())
}
