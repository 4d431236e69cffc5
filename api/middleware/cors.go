package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/mesa-backend/pkg/config"
)

// CORS returns middleware that applies the configured origin policy.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Mesa-Token", "X-Cart-Id", "Idempotency-Key", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Mesa-Token", "X-Request-Id", "Idempotency-Replayed"},
		AllowCredentials: true,
		MaxAge:           cfg.MaxAgeSeconds,
	}).Handler
}
