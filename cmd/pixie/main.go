// Package main is the entry point for the pixie server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/guitaripod/pixie/internal/config"
	"github.com/guitaripod/pixie/internal/database"
	"github.com/guitaripod/pixie/internal/http/handlers"
	"github.com/guitaripod/pixie/internal/http/mw"
	"github.com/guitaripod/pixie/internal/logging"
	"github.com/guitaripod/pixie/internal/repository"
	"github.com/guitaripod/pixie/internal/service"
	"github.com/guitaripod/pixie/internal/shutdown"
	"github.com/guitaripod/pixie/internal/version"
	"github.com/guitaripod/pixie/internal/worker"
)

func main() {
	// Initialize logger with TTY detection, source paths, and format control
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting pixie",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	if applied, err := database.GetAppliedMigrations(db); err != nil {
		logger.Warn("failed to read schema version", "error", err)
	} else if len(applied) > 0 {
		logger.Info("database schema ready",
			"schema_version", applied[len(applied)-1].Timestamp,
			"migrations_applied", len(applied),
		)
	}

	repos := repository.NewRepositories(db)

	services, err := service.NewServices(cfg, repos, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Maintenance worker: expired images, stale locks, dead device flows
	var maintenance *worker.Worker
	if cfg.CleanupEnabled {
		maintenance = worker.New(services.Cleanup, worker.Config{
			Interval: cfg.CleanupInterval,
		}, logger)
		maintenance.Start(ctx)
		logger.Info("maintenance worker started",
			"interval", cfg.CleanupInterval.String(),
			"image_ttl", cfg.ImageTTL.String(),
		)
	}

	// Scale-to-zero idle shutdown, disabled unless IDLE_TIMEOUT is set
	idleMonitor := shutdown.NewIdleMonitor(cfg.IdleTimeout, []string{"/v1/health"}, logger)
	idleMonitor.Start()

	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(idleMonitor.Middleware)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// Generation and edit calls wait on the upstream image provider, so
	// they get an extended deadline. Blob serving is a plain read and
	// keeps the default.
	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default:          30 * time.Second,
		Extended:         5 * time.Minute,
		ExtendedPatterns: []string{"/images/generations", "/images/edits"},
		SkipPatterns:     []string{"/r2/"},
	}))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Edit requests carry base64-encoded source images
	router.Use(middleware.RequestSize(50 * 1024 * 1024))

	// Per-IP fallback limit for unauthenticated traffic
	router.Use(httprate.LimitByIP(100, time.Minute))

	// Global concurrency throttle
	router.Use(middleware.Throttle(100))

	router.Use(mw.APIVersion())

	humaConfig := huma.DefaultConfig("Pixie API", "1.0.0")
	humaConfig.Info.Description = "Multi-tenant image generation gateway with credit-based billing."
	humaConfig.Servers = []*huma.Server{
		{URL: cfg.BaseURL, Description: "API Server"},
	}
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearerAuth": {
			Type:        "http",
			Scheme:      "bearer",
			Description: "API key authentication. Include your API key in the Authorization header as `Bearer pixie_your_key`.",
		},
	}

	// Main API with OpenAPI docs
	api := humachi.New(router, humaConfig)

	// Config for protected routes (docs are served by the main API)
	protectedConfig := huma.DefaultConfig("Pixie API", "1.0.0")
	protectedConfig.Info.Description = humaConfig.Info.Description
	protectedConfig.Servers = humaConfig.Servers
	protectedConfig.DocsPath = ""
	protectedConfig.OpenAPIPath = ""
	protectedConfig.SchemasPath = ""

	imageHandler := handlers.NewImageHandler(services.Image)
	authHandler := handlers.NewAuthHandler(services.Auth)
	creditsHandler := handlers.NewCreditsHandler(services.Credit, services.Purchase, cfg)
	webhookHandler := handlers.NewWebhookHandler(services.Purchase)
	usageHandler := handlers.NewUsageHandler(services.Usage)
	userHandler := handlers.NewUserHandler(services.User)
	blobHandler := handlers.NewBlobHandler(services.Storage)

	// Health checks: the unversioned probe plus the documented endpoint
	router.Get("/", handlers.Health)
	huma.Get(api, "/v1/health", handlers.HealthCheck)

	// Public gallery, pack listing and cost estimate
	huma.Get(api, "/v1/images", imageHandler.ListGallery)
	huma.Get(api, "/v1/images/user/{userID}", imageHandler.ListUserImages)
	huma.Get(api, "/v1/images/{id}", imageHandler.GetImage)
	huma.Get(api, "/v1/credits/packs", creditsHandler.ListPacks)
	huma.Post(api, "/v1/credits/estimate", creditsHandler.Estimate)
	router.Get("/v1/credits/purchase/success", handlers.PurchaseSuccess)
	router.Get("/v1/credits/purchase/cancel", handlers.PurchaseCancel)

	// Stored image bytes (binary response, raw handler)
	router.Get("/r2/{userID}/{imageID}", blobHandler.Serve)

	// OAuth browser flow. Apple posts the callback form, the others
	// redirect with query parameters.
	router.Get("/v1/auth/{provider}", authHandler.Authorize)
	router.Get("/v1/auth/{provider}/callback", authHandler.Callback)
	router.Post("/v1/auth/{provider}/callback", authHandler.Callback)

	// Native app token exchange and device flow
	huma.Post(api, "/v1/auth/google/token", authHandler.GoogleToken)
	huma.Post(api, "/v1/auth/apple/token", authHandler.AppleToken)
	huma.Post(api, "/v1/auth/device/code", authHandler.DeviceStart)
	huma.Get(api, "/v1/auth/device/{deviceCode}/status", authHandler.DeviceStatus)
	// Raw handler; poll errors carry the envelope messages the CLI
	// matches on
	router.Post("/v1/auth/device/token", authHandler.DeviceToken)

	// Payment webhooks (signature verified by handler, not user auth)
	if cfg.StripeEnabled() {
		router.Post("/v1/stripe/webhook", webhookHandler.Stripe)
		logger.Info("stripe webhook endpoint enabled")
	}
	if cfg.NOWPaymentsAPIKey != "" {
		router.Post("/v1/credits/webhook/crypto", webhookHandler.Crypto)
		logger.Info("crypto webhook endpoint enabled")
	}

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(mw.Auth(repos.User))

		protectedAPI := humachi.New(r, protectedConfig)

		huma.Post(protectedAPI, "/v1/images/generations", imageHandler.Generate)
		huma.Post(protectedAPI, "/v1/images/edits", imageHandler.Edit)

		huma.Get(protectedAPI, "/v1/credits/balance", creditsHandler.GetBalance)
		huma.Get(protectedAPI, "/v1/credits/transactions", creditsHandler.ListTransactions)
		huma.Post(protectedAPI, "/v1/credits/purchase", creditsHandler.Purchase)
		huma.Post(protectedAPI, "/v1/credits/purchase/stripe", creditsHandler.PurchaseStripe)
		huma.Post(protectedAPI, "/v1/credits/purchase/crypto", creditsHandler.PurchaseCrypto)
		huma.Post(protectedAPI, "/v1/credits/purchase/revenuecat/validate", creditsHandler.ValidateRevenueCat)
		huma.Get(protectedAPI, "/v1/credits/purchase/{id}/status", creditsHandler.PurchaseStatus)

		huma.Get(protectedAPI, "/v1/usage/users/{userID}", usageHandler.GetUserUsage)
		huma.Get(protectedAPI, "/v1/usage/users/{userID}/details", usageHandler.GetUserUsageDetails)

		huma.Get(protectedAPI, "/v1/me", userHandler.Me)
		huma.Put(protectedAPI, "/v1/me/provider-keys", userHandler.SetProviderKeys)
	})

	// Admin routes (disabled entirely in self-hosted mode)
	if cfg.AdminEnabled {
		router.Group(func(r chi.Router) {
			r.Use(mw.Auth(repos.User))
			r.Use(mw.RequireAdmin())

			adminAPI := humachi.New(r, protectedConfig)
			adminHandler := handlers.NewAdminHandler(services.Admin)

			huma.Post(adminAPI, "/v1/admin/credits/adjust", adminHandler.AdjustCredits)
			huma.Get(adminAPI, "/v1/admin/credits/stats", adminHandler.Stats)
			huma.Get(adminAPI, "/v1/usage/system", usageHandler.GetSystemUsage)
		})
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 6 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-sigChan:
		case <-idleMonitor.Idle():
		}

		logger.Info("shutting down server")

		cancel()
		idleMonitor.Stop()
		if maintenance != nil {
			maintenance.Stop()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	mode := "official"
	if cfg.IsSelfHosted() {
		mode = "self-hosted"
	}
	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL, "mode", mode)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
