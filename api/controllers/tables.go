package controllers

import (
	"net/http"

	"github.com/angelmondragon/mesa-backend/api/responses"
	"github.com/angelmondragon/mesa-backend/api/validators"
	"github.com/angelmondragon/mesa-backend/internal/bookings"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
)

type tableCreateRequest struct {
	Label    string `json:"label" validate:"required,max=40"`
	Capacity int    `json:"capacity" validate:"required,min=1,max=50"`
	IsActive *bool  `json:"is_active,omitempty"`
}

type tableUpdateRequest struct {
	Label    *string `json:"label,omitempty" validate:"omitempty,min=1,max=40"`
	Capacity *int    `json:"capacity,omitempty" validate:"omitempty,min=1,max=50"`
	IsActive *bool   `json:"is_active,omitempty"`
}

func AdminTablesList(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("bookings"))
			return
		}
		activeOnly, err := validators.ParseQueryBool(r, "active")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tables, err := svc.ListTables(r.Context(), activeOnly != nil && *activeOnly)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tables)
	}
}

func AdminTableCreate(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("bookings"))
			return
		}
		var body tableCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		table, err := svc.CreateTable(r.Context(), bookings.CreateTableInput{
			Label:    body.Label,
			Capacity: body.Capacity,
			IsActive: body.IsActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, table)
	}
}

func AdminTableUpdate(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("bookings"))
			return
		}
		id, err := urlUUID(r, "tableId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body tableUpdateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		table, err := svc.UpdateTable(r.Context(), id, bookings.UpdateTableInput{
			Label:    body.Label,
			Capacity: body.Capacity,
			IsActive: body.IsActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, table)
	}
}

// AdminTableDelete removes a table that no upcoming booking holds.
func AdminTableDelete(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("bookings"))
			return
		}
		id, err := urlUUID(r, "tableId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteTable(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
