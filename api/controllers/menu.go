package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mesa-backend/api/responses"
	"github.com/angelmondragon/mesa-backend/api/validators"
	"github.com/angelmondragon/mesa-backend/internal/menu"
	"github.com/angelmondragon/mesa-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
)

type menuItemCreateRequest struct {
	Name        string             `json:"name" validate:"required,max=120"`
	Description *string            `json:"description,omitempty" validate:"omitempty,max=1000"`
	Category    enums.MenuCategory `json:"category" validate:"required"`
	Price       *decimal.Decimal   `json:"price" validate:"required,gte=0"`
	ImageURL    *string            `json:"image_url,omitempty" validate:"omitempty,url"`
	IsAvailable *bool              `json:"is_available,omitempty"`
	IsFeatured  bool               `json:"is_featured"`
	DietaryTags []string           `json:"dietary_tags" validate:"max=12,dive,max=32"`
	SortOrder   int                `json:"sort_order"`
}

type menuItemUpdateRequest struct {
	Name        *string             `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description *string             `json:"description,omitempty" validate:"omitempty,max=1000"`
	Category    *enums.MenuCategory `json:"category,omitempty"`
	Price       *decimal.Decimal    `json:"price,omitempty" validate:"omitempty,gte=0"`
	ImageURL    *string             `json:"image_url,omitempty" validate:"omitempty,url"`
	IsAvailable *bool               `json:"is_available,omitempty"`
	IsFeatured  *bool               `json:"is_featured,omitempty"`
	DietaryTags *[]string           `json:"dietary_tags,omitempty" validate:"omitempty,max=12,dive,max=32"`
	SortOrder   *int                `json:"sort_order,omitempty"`
}

// MenuList serves the public menu with its browse filters.
func MenuList(svc menu.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("menu"))
			return
		}

		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var filters menu.ListFilters
		if raw := strings.TrimSpace(r.URL.Query().Get("category")); raw != "" {
			category, err := enums.ParseMenuCategory(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category"))
				return
			}
			filters.Category = &category
		}
		if filters.Available, err = validators.ParseQueryBool(r, "available"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filters.Featured, err = validators.ParseQueryBool(r, "featured"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters.Query = validators.SanitizeString(r.URL.Query().Get("q"), 100)

		page, err := svc.List(r.Context(), filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func MenuGet(svc menu.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("menu"))
			return
		}
		id, err := urlUUID(r, "menuItemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func AdminMenuCreate(svc menu.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("menu"))
			return
		}

		var body menuItemCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		available := true
		if body.IsAvailable != nil {
			available = *body.IsAvailable
		}
		item, err := svc.Create(r.Context(), menu.CreateInput{
			Name:        body.Name,
			Description: body.Description,
			Category:    body.Category,
			Price:       *body.Price,
			ImageURL:    body.ImageURL,
			IsAvailable: available,
			IsFeatured:  body.IsFeatured,
			DietaryTags: body.DietaryTags,
			SortOrder:   body.SortOrder,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

func AdminMenuUpdate(svc menu.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("menu"))
			return
		}
		id, err := urlUUID(r, "menuItemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body menuItemUpdateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Update(r.Context(), id, menu.UpdateInput{
			Name:        body.Name,
			Description: body.Description,
			Category:    body.Category,
			Price:       body.Price,
			ImageURL:    body.ImageURL,
			IsAvailable: body.IsAvailable,
			IsFeatured:  body.IsFeatured,
			DietaryTags: body.DietaryTags,
			SortOrder:   body.SortOrder,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func AdminMenuDelete(svc menu.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("menu"))
			return
		}
		id, err := urlUUID(r, "menuItemId")
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
