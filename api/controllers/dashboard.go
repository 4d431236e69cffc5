package controllers

import (
	"net/http"

	"github.com/angelmondragon/mesa-backend/api/responses"
	"github.com/angelmondragon/mesa-backend/internal/dashboard"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
)

// AdminDashboard returns the summary for the venue's current day.
func AdminDashboard(svc dashboard.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("dashboard"))
			return
		}
		summary, err := svc.Today(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
