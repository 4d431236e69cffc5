package controllers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mesa-backend/api/responses"
	"github.com/angelmondragon/mesa-backend/api/validators"
	"github.com/angelmondragon/mesa-backend/internal/promotions"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
)

type promotionCreateRequest struct {
	Code               string          `json:"code" validate:"required,max=40"`
	Description        string          `json:"description" validate:"max=500"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage" validate:"gte=0,lte=100"`
	MinimumOrder       decimal.Decimal `json:"minimum_order" validate:"gte=0"`
	AutoApply          bool            `json:"auto_apply"`
	IsActive           *bool           `json:"is_active,omitempty"`
	StartsAt           *time.Time      `json:"starts_at,omitempty"`
	EndsAt             *time.Time      `json:"ends_at,omitempty"`
}

type promotionUpdateRequest struct {
	Code               *string          `json:"code,omitempty" validate:"omitempty,min=1,max=40"`
	Description        *string          `json:"description,omitempty" validate:"omitempty,max=500"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	MinimumOrder       *decimal.Decimal `json:"minimum_order,omitempty" validate:"omitempty,gte=0"`
	AutoApply          *bool            `json:"auto_apply,omitempty"`
	IsActive           *bool            `json:"is_active,omitempty"`
	StartsAt           *time.Time       `json:"starts_at,omitempty"`
	EndsAt             *time.Time       `json:"ends_at,omitempty"`
	ClearWindow        bool             `json:"clear_window"`
}

// PromotionsPublic lists the promotions a guest can currently use.
func PromotionsPublic(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("promotions"))
			return
		}
		list, err := svc.ListPublic(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func AdminPromotionsList(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("promotions"))
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func AdminPromotionGet(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("promotions"))
			return
		}
		id, err := urlUUID(r, "promotionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		promo, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, promo)
	}
}

func AdminPromotionCreate(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("promotions"))
			return
		}

		var body promotionCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		active := true
		if body.IsActive != nil {
			active = *body.IsActive
		}
		promo, err := svc.Create(r.Context(), promotions.CreateInput{
			Code:               body.Code,
			Description:        validators.SanitizeString(body.Description, 500),
			DiscountPercentage: body.DiscountPercentage,
			MinimumOrder:       body.MinimumOrder,
			AutoApply:          body.AutoApply,
			IsActive:           active,
			StartsAt:           body.StartsAt,
			EndsAt:             body.EndsAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, promo)
	}
}

func AdminPromotionUpdate(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("promotions"))
			return
		}
		id, err := urlUUID(r, "promotionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body promotionUpdateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		promo, err := svc.Update(r.Context(), id, promotions.UpdateInput{
			Code:               body.Code,
			Description:        body.Description,
			DiscountPercentage: body.DiscountPercentage,
			MinimumOrder:       body.MinimumOrder,
			AutoApply:          body.AutoApply,
			IsActive:           body.IsActive,
			StartsAt:           body.StartsAt,
			EndsAt:             body.EndsAt,
			ClearWindow:        body.ClearWindow,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, promo)
	}
}

func AdminPromotionDelete(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("promotions"))
			return
		}
		id, err := urlUUID(r, "promotionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
