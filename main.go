package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/keyroute/keyroute-server/src/config"
	"github.com/keyroute/keyroute-server/src/database"
	"github.com/keyroute/keyroute-server/src/handlers"
	"github.com/keyroute/keyroute-server/src/logging"
	"github.com/keyroute/keyroute-server/src/middleware"
	"github.com/keyroute/keyroute-server/src/services"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize structured logging
	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	log.Info().
		Int("port", cfg.Port).
		Str("log_level", cfg.LogLevel).
		Msg("starting server")

	// Initialize database
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.New(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	log.Info().Msg("database connected")

	// Initialize JWT secret in middleware
	if err := middleware.SetJWTSecret(cfg.JWTSecret); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize JWT secret")
	}

	// Initialize secret encryption (optional — empty key disables)
	encryptor, err := services.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize encryption")
	}
	if encryptor != nil {
		log.Info().Msg("upstream secret encryption enabled (AES-256-GCM)")
	} else {
		log.Info().Msg("upstream secret encryption disabled (ENCRYPTION_KEY not set)")
	}

	// Initialize services
	keyService := services.NewKeyService(db.GetPool())
	fleetService := services.NewFleetService(db.GetPool(), encryptor)
	dispatchService := services.NewDispatchService(db.GetPool(), keyService, fleetService)
	adminService := services.NewAdminService(db.GetPool())
	cleanupService := services.NewCleanupService(db.GetPool(), cfg.EnableAutoCleanup, cfg.AccessRecordTTL)

	// Auto-seed admin user on first run (if ADMIN_USERNAME and ADMIN_PASSWORD are set)
	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		hasAdmins, err := adminService.HasAdmins(context.Background())
		if err != nil {
			log.Error().Err(err).Msg("failed to check for existing admin users")
		} else if !hasAdmins {
			if _, err := adminService.CreateAdminUser(context.Background(), cfg.AdminUsername, cfg.AdminPassword); err != nil {
				log.Error().Err(err).Msg("failed to create initial admin user")
			} else {
				log.Info().Str("username", cfg.AdminUsername).Msg("initial admin user created")
			}
		}
	}

	// Initialize analytics
	analyticsService, err := services.NewAnalyticsService(services.AnalyticsConfig{
		PostHogAPIKey: cfg.PostHogAPIKey,
		PostHogHost:   cfg.PostHogHost,
		Enabled:       cfg.PostHogEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize analytics service")
	}
	defer analyticsService.Close()

	if cfg.PostHogEnabled {
		log.Info().Str("host", cfg.PostHogHost).Msg("PostHog analytics enabled")
	} else {
		log.Info().Msg("PostHog analytics disabled")
	}

	// Start background services
	cleanupService.Start(context.Background())

	// Create Gin router
	router := gin.New()

	// Add middleware
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(gin.Recovery())

	// CORS for the dashboard front end
	corsConfig := cors.Config{
		AllowOriginFunc: func(origin string) bool {
			if origin == "http://localhost" || origin == "http://localhost:3000" || origin == "http://localhost:5173" {
				return true
			}
			return origin == cfg.ExternalHost
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Setup routes
	setupRoutes(router, db, keyService, fleetService, dispatchService, adminService, analyticsService, cfg)

	// Create HTTP server with timeouts to protect against slow clients
	srv := &http.Server{
		Addr:              ":" + formatPort(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Stop cleanup service
	cleanupService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server shut down successfully")
}

func setupRoutes(
	router *gin.Engine,
	db *database.Database,
	keyService *services.KeyService,
	fleetService *services.FleetService,
	dispatchService *services.DispatchService,
	adminService *services.AdminService,
	analyticsService *services.AnalyticsService,
	cfg *config.Config,
) {
	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db)
	adminHandler := handlers.NewAdminHandler(adminService)
	dynamicKeyHandler := handlers.NewDynamicKeyHandler(keyService, analyticsService)
	fleetHandler := handlers.NewFleetHandler(fleetService)
	prefixHandler := handlers.NewPrefixHandler()
	dispatchHandler := handlers.NewDispatchHandler(dispatchService, analyticsService)
	eventsHandler := handlers.NewEventsHandler(cfg.AllowedOrigins)

	// Wire up the live event stream
	dispatchHandler.SetBroadcaster(eventsHandler)

	// Health check endpoints
	router.GET("/health", healthHandler.HandleHealth)
	router.GET("/ready", healthHandler.HandleReady)
	router.GET("/info", healthHandler.HandleInfo)

	// Public dispatch endpoint
	router.GET("/access/:path",
		middleware.NewDispatchRateLimitMiddleware(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.DispatchRequestsPerMinute,
			Burst:             cfg.DispatchBurst,
		}),
		dispatchHandler.HandleAccess)

	// Admin authentication endpoints
	router.POST("/admin/login", middleware.LoginRateLimitMiddleware(), adminHandler.HandleAdminLogin)
	router.POST("/admin/logout", middleware.AdminAuthMiddleware(), adminHandler.HandleAdminLogout)
	router.GET("/admin/status", middleware.AdminAuthMiddleware(), adminHandler.HandleAdminStatus)

	// Dashboard API (all require authentication)
	api := router.Group("/api")
	api.Use(middleware.AdminAuthMiddleware())
	{
		api.GET("/dynamic-keys", dynamicKeyHandler.HandleList)
		api.POST("/dynamic-keys", dynamicKeyHandler.HandleCreate)
		api.GET("/dynamic-keys/:id", dynamicKeyHandler.HandleGet)
		api.PUT("/dynamic-keys/:id", dynamicKeyHandler.HandleUpdate)
		api.DELETE("/dynamic-keys/:id", dynamicKeyHandler.HandleDelete)
		api.PUT("/dynamic-keys/:id/members", dynamicKeyHandler.HandleSetMembers)

		api.GET("/servers", fleetHandler.HandleListServers)
		api.POST("/servers", fleetHandler.HandleCreateServer)
		api.PUT("/servers/:id", fleetHandler.HandleUpdateServer)
		api.DELETE("/servers/:id", fleetHandler.HandleDeleteServer)
		api.GET("/servers/:id/keys", fleetHandler.HandleListServerKeys)
		api.POST("/servers/:id/keys", fleetHandler.HandleCreateServerKey)
		api.PUT("/keys/:id", fleetHandler.HandleUpdateKey)
		api.DELETE("/keys/:id", fleetHandler.HandleDeleteKey)

		api.GET("/prefixes", prefixHandler.HandleList)
		api.GET("/access-records", dispatchHandler.HandleListAccessRecords)
		api.GET("/events/stream", eventsHandler.HandleStream)
	}
}

func formatPort(port int) string {
	return fmt.Sprintf("%d", port)
}
