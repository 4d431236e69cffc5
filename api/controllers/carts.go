package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/mesa-backend/api/responses"
	"github.com/angelmondragon/mesa-backend/api/validators"
	"github.com/angelmondragon/mesa-backend/internal/cart"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
)

type cartAddItemRequest struct {
	MenuItemID uuid.UUID `json:"menu_item_id" validate:"required"`
	Quantity   int       `json:"quantity" validate:"required,min=1,max=99"`
}

type cartSetQuantityRequest struct {
	Quantity int `json:"quantity" validate:"min=0,max=99"`
}

type cartCheckoutRequest struct {
	GuestName  string  `json:"guest_name" validate:"max=120"`
	GuestEmail string  `json:"guest_email" validate:"omitempty,email"`
	GuestPhone *string `json:"guest_phone,omitempty" validate:"omitempty,max=32"`
	Notes      *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// cartOwner identifies the caller; anonymous callers act on guest carts.
func cartOwner(r *http.Request) (cart.Owner, error) {
	userID, err := optionalCaller(r)
	if err != nil {
		return cart.Owner{}, err
	}
	return cart.Owner{UserID: userID}, nil
}

// cartAction resolves the owner and cart id then runs fn, writing its cart.
func cartAction(svc cart.Service, logg *logger.Logger, fn func(r *http.Request, owner cart.Owner, cartID uuid.UUID) (*cart.CartDTO, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("cart"))
			return
		}
		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cartID, err := urlUUID(r, "cartId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := fn(r, owner, cartID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func CartCreate(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("cart"))
			return
		}
		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		created, err := svc.Create(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("X-Cart-Id", created.ID.String())
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

func CartGet(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return cartAction(svc, logg, func(r *http.Request, owner cart.Owner, cartID uuid.UUID) (*cart.CartDTO, error) {
		return svc.Get(r.Context(), owner, cartID)
	})
}

func CartDelete(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("cart"))
			return
		}
		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cartID, err := urlUUID(r, "cartId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), owner, cartID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CartAddItem adds quantity of a menu item; an existing line is incremented.
func CartAddItem(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return cartAction(svc, logg, func(r *http.Request, owner cart.Owner, cartID uuid.UUID) (*cart.CartDTO, error) {
		var body cartAddItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.AddItem(r.Context(), owner, cartID, body.MenuItemID, body.Quantity)
	})
}

// CartSetQuantity overwrites a line quantity; zero removes the line.
func CartSetQuantity(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return cartAction(svc, logg, func(r *http.Request, owner cart.Owner, cartID uuid.UUID) (*cart.CartDTO, error) {
		itemID, err := urlUUID(r, "menuItemId")
		if err != nil {
			return nil, err
		}
		var body cartSetQuantityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.SetQuantity(r.Context(), owner, cartID, itemID, body.Quantity)
	})
}

func CartRemoveItem(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return cartAction(svc, logg, func(r *http.Request, owner cart.Owner, cartID uuid.UUID) (*cart.CartDTO, error) {
		itemID, err := urlUUID(r, "menuItemId")
		if err != nil {
			return nil, err
		}
		return svc.RemoveItem(r.Context(), owner, cartID, itemID)
	})
}

func CartRefreshPromotions(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return cartAction(svc, logg, func(r *http.Request, owner cart.Owner, cartID uuid.UUID) (*cart.CartDTO, error) {
		return svc.RefreshPromotions(r.Context(), owner, cartID)
	})
}

// CartCheckout places an order from the cart. The cart is gone afterwards.
func CartCheckout(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("cart"))
			return
		}
		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cartID, err := urlUUID(r, "cartId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body cartCheckoutRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.Checkout(r.Context(), owner, cartID, cart.CheckoutInput{
			GuestName:  validators.SanitizeString(body.GuestName, 120),
			GuestEmail: body.GuestEmail,
			GuestPhone: body.GuestPhone,
			Notes:      body.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}
