package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/mesa-backend/api/responses"
	"github.com/angelmondragon/mesa-backend/pkg/config"
	"github.com/angelmondragon/mesa-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
	"github.com/angelmondragon/mesa-backend/pkg/redis"
)

const readinessTimeout = 2 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Mesa-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when the database and Redis answer a ping.
func HealthReady(cfg *config.Config, logg *logger.Logger, database db.Pinger, cache redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Mesa-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{"database": "ok", "redis": "ok"}
		ready := true
		if database == nil {
			checks["database"] = "unconfigured"
			ready = false
		} else if err := database.Ping(ctx); err != nil {
			checks["database"] = "unreachable"
			ready = false
		}
		if cache == nil {
			checks["redis"] = "unconfigured"
			ready = false
		} else if err := cache.Ping(ctx); err != nil {
			checks["redis"] = "unreachable"
			ready = false
		}

		if !ready {
			err := pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(checks)
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		checks["status"] = "ready"
		responses.WriteSuccess(w, checks)
	}
}
