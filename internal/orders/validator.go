package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
	"github.com/angelmondragon/mesa-backend/pkg/pricing"
)

// Rejection reasons, also used as metric labels.
const (
	ReasonInvalidItems      = "invalid_items"
	ReasonMenuItemNotFound  = "menu_item_not_found"
	ReasonPromotionNotFound = "promotion_not_found"
	ReasonMinimumOrder      = "minimum_order_not_met"
	ReasonDiscountMismatch  = "discount_mismatch"
	ReasonSubtotalMismatch  = "subtotal_mismatch"
	ReasonTotalMismatch     = "total_mismatch"
)

// CatalogLookup resolves menu items by id. Missing ids are absent from the map.
type CatalogLookup interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MenuItem, error)
}

// PromotionLookup returns gorm.ErrRecordNotFound for unknown ids.
type PromotionLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Promotion, error)
}

// Validator runs the integrity checks of an order submission against the
// catalog and the promotion store.
type Validator struct {
	catalog    CatalogLookup
	promotions PromotionLookup
}

func NewValidator(catalog CatalogLookup, promotions PromotionLookup) (*Validator, error) {
	if catalog == nil {
		return nil, errors.New("catalog lookup required")
	}
	if promotions == nil {
		return nil, errors.New("promotion lookup required")
	}
	return &Validator{catalog: catalog, promotions: promotions}, nil
}

// ValidatedOrder is a submission that passed every check, with catalog rows
// resolved for the line snapshots.
type ValidatedOrder struct {
	Input     CreateOrderInput
	MenuItems map[uuid.UUID]models.MenuItem
	Promotion *models.Promotion
}

// Validate applies, in order: item existence, promotion existence, minimum
// order, discount, subtotal and total checks. The first failure wins.
func (v *Validator) Validate(ctx context.Context, input CreateOrderInput) (*ValidatedOrder, error) {
	items := input.lineItems()
	if err := pricing.ValidateLineItems(items); err != nil {
		return nil, withReason(err, ReasonInvalidItems)
	}

	ids := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		ids = append(ids, item.MenuItemID)
	}
	menuItems, err := v.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load menu items")
	}
	for _, item := range input.Items {
		if _, ok := menuItems[item.MenuItemID]; !ok {
			return nil, rejection(pkgerrors.CodeNotFound, ReasonMenuItemNotFound,
				"menu item "+item.MenuItemID.String()+" not found",
				map[string]any{"menu_item_id": item.MenuItemID})
		}
	}

	var promo *models.Promotion
	if input.PromotionID != nil {
		promo, err = v.promotions.FindByID(ctx, *input.PromotionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, rejection(pkgerrors.CodeNotFound, ReasonPromotionNotFound,
					"promotion "+input.PromotionID.String()+" not found",
					map[string]any{"promotion_id": *input.PromotionID})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load promotion")
		}

		if input.Subtotal.LessThan(promo.MinimumOrder) {
			return nil, rejection(pkgerrors.CodeValidation, ReasonMinimumOrder,
				"order subtotal "+input.Subtotal.StringFixed(2)+" is below the promotion minimum of "+promo.MinimumOrder.StringFixed(2),
				map[string]any{"minimum_order": promo.MinimumOrder, "subtotal": input.Subtotal})
		}

		expectedDiscount := pricing.Promotion{DiscountPercentage: promo.DiscountPercentage}.DiscountFor(input.Subtotal)
		if !pricing.WithinTolerance(input.Discount, expectedDiscount) {
			return nil, mismatch(ReasonDiscountMismatch, "discount", expectedDiscount, input.Discount)
		}
	}

	expectedSubtotal := pricing.Subtotal(items)
	if !pricing.WithinTolerance(input.Subtotal, expectedSubtotal) {
		return nil, mismatch(ReasonSubtotalMismatch, "subtotal", expectedSubtotal, input.Subtotal)
	}

	expectedTotal := input.Subtotal.Sub(input.Discount)
	if !pricing.WithinTolerance(input.Total, expectedTotal) {
		return nil, mismatch(ReasonTotalMismatch, "total", expectedTotal, input.Total)
	}

	return &ValidatedOrder{Input: input, MenuItems: menuItems, Promotion: promo}, nil
}

func mismatch(reason, field string, expected, submitted decimal.Decimal) error {
	return rejection(pkgerrors.CodeValidation, reason,
		field+" calculation mismatch: expected "+expected.StringFixed(2)+", got "+submitted.StringFixed(2),
		map[string]any{"field": field, "expected": expected, "submitted": submitted})
}

func rejection(code pkgerrors.Code, reason, message string, details map[string]any) error {
	details["reason"] = reason
	return pkgerrors.New(code, message).WithDetails(details)
}

func withReason(err error, reason string) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return err
	}
	details, _ := typed.Details().(map[string]any)
	if details == nil {
		details = map[string]any{}
	}
	details["reason"] = reason
	return typed.WithDetails(details)
}

// RejectionReason extracts the reason label attached by Validate, or "".
func RejectionReason(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return ""
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return ""
	}
	reason, _ := details["reason"].(string)
	return reason
}
