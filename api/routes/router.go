package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/mesa-backend/api/controllers"
	"github.com/angelmondragon/mesa-backend/api/middleware"
	"github.com/angelmondragon/mesa-backend/internal/auth"
	"github.com/angelmondragon/mesa-backend/internal/bookings"
	"github.com/angelmondragon/mesa-backend/internal/cart"
	"github.com/angelmondragon/mesa-backend/internal/dashboard"
	"github.com/angelmondragon/mesa-backend/internal/menu"
	"github.com/angelmondragon/mesa-backend/internal/orders"
	"github.com/angelmondragon/mesa-backend/internal/promotions"
	"github.com/angelmondragon/mesa-backend/internal/restaurant"
	"github.com/angelmondragon/mesa-backend/internal/users"
	"github.com/angelmondragon/mesa-backend/pkg/auth/session"
	"github.com/angelmondragon/mesa-backend/pkg/config"
	"github.com/angelmondragon/mesa-backend/pkg/db"
	"github.com/angelmondragon/mesa-backend/pkg/enums"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
	"github.com/angelmondragon/mesa-backend/pkg/metrics"
	"github.com/angelmondragon/mesa-backend/pkg/redis"
)

// Cache is the Redis surface the HTTP layer needs: health, idempotency
// replay and auth rate limiting.
type Cache interface {
	redis.IdempotencyStore
	Ping(ctx context.Context) error
	middleware.WindowLimiter
}

// Dependencies carries everything NewRouter wires into handlers.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Cache    Cache
	Sessions session.AccessSessionChecker

	// Gatherer backs GET /metrics; HTTPMetrics records per-route latency.
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics

	Auth       auth.Service
	Users      users.Service
	Menu       menu.Service
	Promotions promotions.Service
	Carts      cart.Service
	Orders     orders.Service
	Bookings   bookings.Service
	Restaurant restaurant.Service
	Dashboard  dashboard.Service
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)
	if deps.HTTPMetrics != nil {
		r.Use(middleware.Metrics(deps.HTTPMetrics))
	}
	if cfg.App.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.App.RequestTimeout))
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	requireAuth := middleware.Auth(cfg.JWT, deps.Sessions, logg)
	optionalAuth := middleware.OptionalAuth(cfg.JWT, deps.Sessions, logg)
	idempotent := middleware.Idempotency(deps.Cache, cfg.Eventing.IdempotencyTTL, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Cache))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(loginPolicy, deps.Cache, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.With(middleware.AuthRateLimit(registerPolicy, deps.Cache, logg), idempotent).Post("/register", controllers.AuthRegister(deps.Auth, logg))
			r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
			r.With(requireAuth).Post("/logout", controllers.AuthLogout(deps.Auth, logg))
		})

		r.Get("/menu", controllers.MenuList(deps.Menu, logg))
		r.Get("/menu/{menuItemId}", controllers.MenuGet(deps.Menu, logg))
		r.Get("/promotions", controllers.PromotionsPublic(deps.Promotions, logg))
		r.Get("/restaurant", controllers.RestaurantGet(deps.Restaurant, logg))
		r.Get("/bookings/availability", controllers.BookingAvailability(deps.Bookings, logg))

		// guest-capable surfaces
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth, idempotent)
			r.Route("/carts", func(r chi.Router) {
				r.Post("/", controllers.CartCreate(deps.Carts, logg))
				r.Route("/{cartId}", func(r chi.Router) {
					r.Get("/", controllers.CartGet(deps.Carts, logg))
					r.Delete("/", controllers.CartDelete(deps.Carts, logg))
					r.Post("/items", controllers.CartAddItem(deps.Carts, logg))
					r.Patch("/items/{menuItemId}", controllers.CartSetQuantity(deps.Carts, logg))
					r.Delete("/items/{menuItemId}", controllers.CartRemoveItem(deps.Carts, logg))
					r.Post("/promotions/refresh", controllers.CartRefreshPromotions(deps.Carts, logg))
					r.Post("/checkout", controllers.CartCheckout(deps.Carts, logg))
				})
			})
			r.Post("/orders", controllers.OrderCreate(deps.Orders, logg))
			r.Post("/bookings", controllers.BookingCreate(deps.Bookings, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth, idempotent)
			r.Get("/me", controllers.Me(deps.Users, logg))
			r.Patch("/me", controllers.MeUpdate(deps.Users, logg))

			r.Get("/orders", controllers.OrdersMine(deps.Orders, logg))
			r.Get("/orders/{orderId}", controllers.OrderMineGet(deps.Orders, logg))
			r.Post("/orders/{orderId}/cancel", controllers.OrderCancel(deps.Orders, logg))

			r.Get("/bookings", controllers.BookingsMine(deps.Bookings, logg))
			r.Get("/bookings/{bookingId}", controllers.BookingMineGet(deps.Bookings, logg))
			r.Post("/bookings/{bookingId}/cancel", controllers.BookingCancel(deps.Bookings, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, deps.Cache, logg)).Post("/auth/login", controllers.AdminAuthLogin(deps.Auth, logg))

		r.Group(func(r chi.Router) {
			r.Use(requireAuth, middleware.RequireAnyRole(logg, enums.UserRoleAdmin, enums.UserRoleStaff), idempotent)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.AdminOrdersList(deps.Orders, logg))
				r.Get("/{orderId}", controllers.AdminOrderGet(deps.Orders, logg))
				r.Patch("/{orderId}/status", controllers.AdminOrderStatus(deps.Orders, logg))
			})
			r.Route("/bookings", func(r chi.Router) {
				r.Get("/", controllers.AdminBookingsList(deps.Bookings, logg))
				r.Get("/{bookingId}", controllers.AdminBookingGet(deps.Bookings, logg))
				r.Patch("/{bookingId}/status", controllers.AdminBookingStatus(deps.Bookings, logg))
				r.Put("/{bookingId}/table", controllers.AdminBookingAssignTable(deps.Bookings, logg))
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))

				r.Get("/dashboard", controllers.AdminDashboard(deps.Dashboard, logg))
				r.Put("/restaurant", controllers.AdminRestaurantUpsert(deps.Restaurant, logg))

				r.Route("/menu", func(r chi.Router) {
					r.Get("/", controllers.MenuList(deps.Menu, logg))
					r.Post("/", controllers.AdminMenuCreate(deps.Menu, logg))
					r.Get("/{menuItemId}", controllers.MenuGet(deps.Menu, logg))
					r.Patch("/{menuItemId}", controllers.AdminMenuUpdate(deps.Menu, logg))
					r.Delete("/{menuItemId}", controllers.AdminMenuDelete(deps.Menu, logg))
				})
				r.Route("/promotions", func(r chi.Router) {
					r.Get("/", controllers.AdminPromotionsList(deps.Promotions, logg))
					r.Post("/", controllers.AdminPromotionCreate(deps.Promotions, logg))
					r.Get("/{promotionId}", controllers.AdminPromotionGet(deps.Promotions, logg))
					r.Patch("/{promotionId}", controllers.AdminPromotionUpdate(deps.Promotions, logg))
					r.Delete("/{promotionId}", controllers.AdminPromotionDelete(deps.Promotions, logg))
				})
				r.Route("/tables", func(r chi.Router) {
					r.Get("/", controllers.AdminTablesList(deps.Bookings, logg))
					r.Post("/", controllers.AdminTableCreate(deps.Bookings, logg))
					r.Patch("/{tableId}", controllers.AdminTableUpdate(deps.Bookings, logg))
					r.Delete("/{tableId}", controllers.AdminTableDelete(deps.Bookings, logg))
				})
				r.Route("/users", func(r chi.Router) {
					r.Get("/", controllers.AdminUsersList(deps.Users, logg))
					r.Get("/{userId}", controllers.AdminUserGet(deps.Users, logg))
					r.Patch("/{userId}", controllers.AdminUserUpdate(deps.Users, logg))
					r.Delete("/{userId}", controllers.AdminUserDelete(deps.Users, logg))
				})
			})
		})
	})

	return r
}
