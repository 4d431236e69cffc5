package pricing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
)

// LineItemViolation explains why a line item cannot be priced.
type LineItemViolation struct {
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Reason     string          `json:"reason"`
}

// ValidateLineItems rejects non-positive quantities and negative prices.
func ValidateLineItems(items []LineItem) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	var violations []LineItemViolation
	for _, item := range items {
		switch {
		case item.Quantity < 1:
			violations = append(violations, LineItemViolation{
				MenuItemID: item.MenuItemID,
				Quantity:   item.Quantity,
				UnitPrice:  item.UnitPrice,
				Reason:     "quantity must be at least 1",
			})
		case item.UnitPrice.IsNegative():
			violations = append(violations, LineItemViolation{
				MenuItemID: item.MenuItemID,
				Quantity:   item.Quantity,
				UnitPrice:  item.UnitPrice,
				Reason:     "price must not be negative",
			})
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid quantity or price on %d item(s)", len(violations))).
		WithDetails(map[string]any{"violations": violations})
}

// ValidatePromotionTerms checks the bounds a stored promotion must respect.
func ValidatePromotionTerms(percentage, minimumOrder decimal.Decimal) error {
	if percentage.IsNegative() || percentage.GreaterThan(hundred) {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount percentage must be between 0 and 100").
			WithDetails(map[string]any{"field": "discount_percentage"})
	}
	if minimumOrder.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "minimum order must not be negative").
			WithDetails(map[string]any{"field": "minimum_order"})
	}
	return nil
}
