package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mesa-backend/internal/orders"
	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
	"github.com/angelmondragon/mesa-backend/pkg/pricing"
)

// MenuLookup resolves a catalog item; unknown ids yield gorm.ErrRecordNotFound.
type MenuLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.MenuItem, error)
}

// PromotionSource lists the promotions a cart may auto-apply.
type PromotionSource interface {
	ActiveAutoApply(ctx context.Context) ([]pricing.Promotion, error)
}

// OrderPlacer submits a checked-out cart as an order.
type OrderPlacer interface {
	Create(ctx context.Context, input orders.CreateOrderInput) (*orders.OrderDTO, error)
}

// Service is the cart lifecycle behind /api/v1/carts.
type Service interface {
	Create(ctx context.Context, owner Owner) (*CartDTO, error)
	Get(ctx context.Context, owner Owner, cartID uuid.UUID) (*CartDTO, error)
	Delete(ctx context.Context, owner Owner, cartID uuid.UUID) error
	AddItem(ctx context.Context, owner Owner, cartID, menuItemID uuid.UUID, qty int) (*CartDTO, error)
	SetQuantity(ctx context.Context, owner Owner, cartID, menuItemID uuid.UUID, qty int) (*CartDTO, error)
	RemoveItem(ctx context.Context, owner Owner, cartID, menuItemID uuid.UUID) (*CartDTO, error)
	RefreshPromotions(ctx context.Context, owner Owner, cartID uuid.UUID) (*CartDTO, error)
	Checkout(ctx context.Context, owner Owner, cartID uuid.UUID, input CheckoutInput) (*orders.OrderDTO, error)

	// Discard drops the caller's carts among ids, ignoring unknown ones.
	Discard(ctx context.Context, owner Owner, cartIDs []uuid.UUID) error
}

type service struct {
	store      Store
	menu       MenuLookup
	promotions PromotionSource
	orders     OrderPlacer
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(store Store, menu MenuLookup, promotions PromotionSource, placer OrderPlacer, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if menu == nil {
		return nil, fmt.Errorf("menu lookup required")
	}
	if promotions == nil {
		return nil, fmt.Errorf("promotion source required")
	}
	if placer == nil {
		return nil, fmt.Errorf("order placer required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{store: store, menu: menu, promotions: promotions, orders: placer, logg: logg, now: time.Now}, nil
}

func (s *service) Create(ctx context.Context, owner Owner) (*CartDTO, error) {
	promos, err := s.activePromotions(ctx)
	if err != nil {
		return nil, err
	}
	c := New(owner.UserID, s.now().UTC())
	c.RefreshPromotions(promos)
	if err := s.store.Create(ctx, c); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	dto := FromCart(c)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, owner Owner, cartID uuid.UUID) (*CartDTO, error) {
	return s.mutate(ctx, owner, cartID, nil)
}

func (s *service) RefreshPromotions(ctx context.Context, owner Owner, cartID uuid.UUID) (*CartDTO, error) {
	return s.mutate(ctx, owner, cartID, nil)
}

func (s *service) Delete(ctx context.Context, owner Owner, cartID uuid.UUID) error {
	c, err := s.load(ctx, owner, cartID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, c.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart")
	}
	return nil
}

func (s *service) AddItem(ctx context.Context, owner Owner, cartID, menuItemID uuid.UUID, qty int) (*CartDTO, error) {
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	item, err := s.menu.FindByID(ctx, menuItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "menu item %s not found", menuItemID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load menu item")
	}
	if !item.IsAvailable {
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "%s is currently unavailable", item.Name).
			WithDetails(map[string]any{"menu_item_id": item.ID})
	}

	line := Line{MenuItemID: item.ID, Name: item.Name, UnitPrice: item.Price}
	return s.mutate(ctx, owner, cartID, func(c *Cart) error {
		c.AddItem(line, qty)
		return nil
	})
}

func (s *service) SetQuantity(ctx context.Context, owner Owner, cartID, menuItemID uuid.UUID, qty int) (*CartDTO, error) {
	return s.mutate(ctx, owner, cartID, func(c *Cart) error {
		if !c.SetQuantity(menuItemID, qty) {
			return lineNotFound(menuItemID)
		}
		return nil
	})
}

func (s *service) RemoveItem(ctx context.Context, owner Owner, cartID, menuItemID uuid.UUID) (*CartDTO, error) {
	return s.mutate(ctx, owner, cartID, func(c *Cart) error {
		if !c.RemoveItem(menuItemID) {
			return lineNotFound(menuItemID)
		}
		return nil
	})
}

// Checkout submits the cart's own totals through order validation and drops
// the cart once the order exists. The cart is claimed for the duration, so a
// second checkout or a mutation arriving meanwhile gets CONFLICT.
func (s *service) Checkout(ctx context.Context, owner Owner, cartID uuid.UUID, input CheckoutInput) (*orders.OrderDTO, error) {
	dto, err := s.mutate(ctx, owner, cartID, func(c *Cart) error {
		if len(c.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}
		startedAt := s.now().UTC()
		c.CheckoutStartedAt = &startedAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	req := orders.CreateOrderInput{
		UserID:   owner.UserID,
		Subtotal: dto.Subtotal,
		Discount: dto.Discount,
		Total:    dto.Total,
		Notes:    input.Notes,
	}
	if owner.UserID == nil {
		req.Guest = &orders.GuestContact{Name: input.GuestName, Email: input.GuestEmail, Phone: input.GuestPhone}
	}
	if dto.AppliedPromotion != nil {
		id := dto.AppliedPromotion.ID
		req.PromotionID = &id
	}
	for _, line := range dto.Items {
		req.Items = append(req.Items, orders.ItemInput{
			MenuItemID: line.MenuItemID,
			Quantity:   line.Quantity,
			Price:      line.UnitPrice,
		})
	}

	order, err := s.orders.Create(ctx, req)
	if err != nil {
		s.releaseCheckout(ctx, cartID)
		return nil, err
	}
	if err := s.store.Delete(ctx, cartID); err != nil {
		ctx = s.logg.WithField(ctx, "cart_id", cartID.String())
		s.logg.Error(ctx, "failed to delete checked out cart", err)
	}
	return order, nil
}

// releaseCheckout clears the claim after a failed checkout so the caller can
// fix the cart and retry.
func (s *service) releaseCheckout(ctx context.Context, cartID uuid.UUID) {
	_, err := s.store.Update(context.WithoutCancel(ctx), cartID, func(c *Cart) error {
		c.CheckoutStartedAt = nil
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		ctx = s.logg.WithField(ctx, "cart_id", cartID.String())
		s.logg.Error(ctx, "failed to release cart checkout claim", err)
	}
}

func (s *service) Discard(ctx context.Context, owner Owner, cartIDs []uuid.UUID) error {
	for _, id := range cartIDs {
		c, err := s.load(ctx, owner, id)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				continue
			}
			return err
		}
		if err := s.store.Delete(ctx, c.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart")
		}
	}
	return nil
}

// mutate refreshes the candidate promotions, applies fn, and persists. A nil
// fn is a plain refresh and is allowed while a checkout holds the cart.
func (s *service) mutate(ctx context.Context, owner Owner, cartID uuid.UUID, fn func(*Cart) error) (*CartDTO, error) {
	promos, err := s.activePromotions(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.store.Update(ctx, cartID, func(c *Cart) error {
		if !owner.canAccess(c) {
			return ErrNotFound
		}
		if fn != nil {
			if c.CheckingOut(s.now().UTC()) {
				return pkgerrors.New(pkgerrors.CodeConflict, "cart checkout is in progress").
					WithDetails(map[string]any{"cart_id": c.ID})
			}
			if err := fn(c); err != nil {
				return err
			}
		}
		c.RefreshPromotions(promos)
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, cartID)
	}
	dto := FromCart(c)
	return &dto, nil
}

func (s *service) load(ctx context.Context, owner Owner, cartID uuid.UUID) (*Cart, error) {
	c, err := s.store.Load(ctx, cartID)
	if err != nil {
		return nil, mapStoreError(err, cartID)
	}
	if !owner.canAccess(c) {
		return nil, mapStoreError(ErrNotFound, cartID)
	}
	return c, nil
}

func (s *service) activePromotions(ctx context.Context) ([]pricing.Promotion, error) {
	promos, err := s.promotions.ActiveAutoApply(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load promotions")
	}
	return promos, nil
}

// canAccess lets anyone holding the id use a guest cart; account carts are
// private to their user.
func (o Owner) canAccess(c *Cart) bool {
	if c.UserID == nil {
		return true
	}
	return o.UserID != nil && *o.UserID == *c.UserID
}

func mapStoreError(err error, cartID uuid.UUID) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "cart %s not found", cartID)
	case errors.Is(err, ErrBusy):
		return pkgerrors.New(pkgerrors.CodeConflict, "cart is being updated; retry")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cart store unavailable")
	}
}

func lineNotFound(menuItemID uuid.UUID) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "menu item %s is not in the cart", menuItemID)
}
