package controllers

import (
	"net/http"

	"github.com/angelmondragon/mesa-backend/api/responses"
	"github.com/angelmondragon/mesa-backend/api/validators"
	"github.com/angelmondragon/mesa-backend/internal/restaurant"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
	"github.com/angelmondragon/mesa-backend/pkg/types"
)

type restaurantUpsertRequest struct {
	Name         string             `json:"name" validate:"required,max=120"`
	Description  *string            `json:"description,omitempty" validate:"omitempty,max=2000"`
	Phone        *string            `json:"phone,omitempty" validate:"omitempty,max=32"`
	Email        *string            `json:"email,omitempty" validate:"omitempty,email"`
	Address      *string            `json:"address,omitempty" validate:"omitempty,max=300"`
	Timezone     string             `json:"timezone" validate:"required"`
	OpeningHours types.OpeningHours `json:"opening_hours"`
}

func RestaurantGet(svc restaurant.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("restaurant"))
			return
		}
		profile, err := svc.Get(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

// AdminRestaurantUpsert replaces the restaurant profile, creating it on first use.
func AdminRestaurantUpsert(svc restaurant.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("restaurant"))
			return
		}

		var body restaurantUpsertRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		profile, err := svc.Upsert(r.Context(), restaurant.UpsertInput{
			Name:         body.Name,
			Description:  body.Description,
			Phone:        body.Phone,
			Email:        body.Email,
			Address:      body.Address,
			Timezone:     body.Timezone,
			OpeningHours: body.OpeningHours,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}
