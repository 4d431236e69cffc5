package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/mesa-backend/api/routes"
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
	"github.com/angelmondragon/mesa-backend/pkg/instance"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
	"github.com/angelmondragon/mesa-backend/pkg/metrics"
	"github.com/angelmondragon/mesa-backend/pkg/migrate"
	"github.com/angelmondragon/mesa-backend/pkg/outbox"
	"github.com/angelmondragon/mesa-backend/pkg/redis"
)

func fatal(logg *logger.Logger, msg string, err error) {
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(logg, "failed to load config", err)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		fatal(logg, "failed to bootstrap database", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		fatal(logg, "failed to run dev migrations", err)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		fatal(logg, "failed to bootstrap redis", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		fatal(logg, "failed to create session manager", err)
	}

	gdb := dbClient.DB()
	outboxService := outbox.NewService(outbox.NewRepository(gdb), logg)
	userRepo := users.NewRepository(gdb)
	menuRepo := menu.NewRepository(gdb)
	promoRepo := promotions.NewRepository(gdb)

	userService, err := users.NewService(userRepo)
	if err != nil {
		fatal(logg, "failed to create user service", err)
	}
	menuService, err := menu.NewService(menuRepo)
	if err != nil {
		fatal(logg, "failed to create menu service", err)
	}
	promoService, err := promotions.NewService(promoRepo)
	if err != nil {
		fatal(logg, "failed to create promotion service", err)
	}
	restaurantService, err := restaurant.NewService(restaurant.NewRepository(gdb))
	if err != nil {
		fatal(logg, "failed to create restaurant service", err)
	}

	validator, err := orders.NewValidator(menuRepo, promoRepo)
	if err != nil {
		fatal(logg, "failed to create order validator", err)
	}
	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(gdb),
		Tx:        dbClient,
		Outbox:    outboxService,
		Validator: validator,
		Users:     userRepo,
		Metrics:   metrics.NewOrderMetrics(prometheus.DefaultRegisterer),
		Logger:    logg,
	})
	if err != nil {
		fatal(logg, "failed to create order service", err)
	}

	cartStore, err := cart.NewRedisStore(redisClient, cfg.Cart.TTL)
	if err != nil {
		fatal(logg, "failed to create cart store", err)
	}
	cartService, err := cart.NewService(cartStore, menuRepo, promoService, orderService, logg)
	if err != nil {
		fatal(logg, "failed to create cart service", err)
	}

	bookingService, err := bookings.NewService(bookings.ServiceParams{
		Repo:     bookings.NewRepository(gdb),
		Tx:       dbClient,
		Outbox:   outboxService,
		Schedule: restaurantService,
		Users:    userRepo,
		Config:   cfg.Booking,
		Logger:   logg,
	})
	if err != nil {
		fatal(logg, "failed to create booking service", err)
	}

	dashboardService, err := dashboard.NewService(dashboard.NewRepository(gdb), restaurantService, bookingService)
	if err != nil {
		fatal(logg, "failed to create dashboard service", err)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		Carts:          cartService,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		fatal(logg, "failed to create auth service", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	handler := routes.NewRouter(routes.Dependencies{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		Cache:       redisClient,
		Sessions:    sessionManager,
		Gatherer:    prometheus.DefaultGatherer,
		HTTPMetrics: metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		Auth:        authService,
		Users:       userService,
		Menu:        menuService,
		Promotions:  promoService,
		Carts:       cartService,
		Orders:      orderService,
		Bookings:    bookingService,
		Restaurant:  restaurantService,
		Dashboard:   dashboardService,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.App.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "api server shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}
