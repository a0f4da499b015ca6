package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/mbenek/sitegate/internal/auth"
	"github.com/mbenek/sitegate/internal/background"
	"github.com/mbenek/sitegate/internal/cache"
	"github.com/mbenek/sitegate/internal/config"
	"github.com/mbenek/sitegate/internal/database"
	"github.com/mbenek/sitegate/internal/geo"
	"github.com/mbenek/sitegate/internal/handlers"
	middlewareCustom "github.com/mbenek/sitegate/internal/middleware"
	"github.com/mbenek/sitegate/internal/models"
	"github.com/mbenek/sitegate/internal/repositories"
	"github.com/mbenek/sitegate/internal/routes"
	"github.com/mbenek/sitegate/internal/services"
	pkgauth "github.com/mbenek/sitegate/pkg/auth"
	pkglogger "github.com/mbenek/sitegate/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	passwordRepo := repositories.NewPasswordRepository(db)
	adminCredRepo := repositories.NewAdminCredentialRepository(db)

	ledger := &ledgerAdapter{repo: attemptRepo}

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Token codec with per-scope signing secrets
	codec := auth.NewCodec(
		cfg.Auth.AdminSecret,
		cfg.Auth.SiteSecret,
		cfg.Auth.ClientAppSecret,
		ledger,
		logger,
	)

	// Optional Redis-backed verification cache
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		codec.SetCache(cache.NewVerifyCache(redisClient, cfg.Redis.CacheTTL, logger))
		logger.Info("verification cache enabled", slog.String("addr", cfg.Redis.Addr))
	}

	// Rate limiting service
	rateLimitConfig := services.RateLimitConfig{
		MaxConsecutiveFailures: cfg.Auth.MaxConsecutiveFailures,
		LookbackWindow:         cfg.Auth.LookbackWindow,
		LookbackAttempts:       cfg.Auth.LookbackAttempts,
		BaseLockout:            cfg.Auth.BaseLockout,
		MaxLockout:             cfg.Auth.MaxLockout,
	}
	rateLimitService := services.NewRateLimitService(attemptRepo, rateLimitConfig, logger)

	// Timing delay for auth security
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	// Geolocation resolver, best-effort
	geoResolver := geo.NewResolver(cfg.Geo.BaseURL, cfg.Geo.Timeout, logger)

	// Initialize services
	credentialService := services.NewCredentialService(passwordRepo, adminCredRepo, logger, auditLogger)
	sessionService := services.NewSessionService(
		ledger,
		credentialService,
		rateLimitService,
		codec,
		geoResolver,
		timingDelay,
		services.SessionConfig{BaseUnit: cfg.Auth.BaseTokenUnit},
		logger,
		auditLogger,
	)

	// Bootstrap the admin credential if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminCredential(ctx, adminCredRepo, logger); err != nil {
		logger.Error("failed to ensure admin credential", slog.Any("error", err))
	}
	cancel()

	cookieConfig := auth.CookieConfig{
		Secure:   cfg.Server.Env == "production",
		SameSite: "strict",
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(sessionService, codec, cookieConfig, logger)
	adminHandler := handlers.NewAdminHandler(credentialService, sessionService, geoResolver, logger)
	clientAppHandler := handlers.NewClientAppHandler(sessionService, logger)
	healthHandler := handlers.NewHealthHandler(db, logger)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(credentialService, logger, cfg.Auth.CleanupInterval)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(
		router,
		authHandler,
		adminHandler,
		clientAppHandler,
		healthHandler,
		codec,
		middlewareCustom.GateConfig{LoginPath: cfg.Server.LoginPath, Cookies: cookieConfig},
		cfg.Auth.ClientAppAPIKey,
	)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped")
}

// ledgerAdapter bridges the concrete repository to the service-layer
// ledger interface, narrowing the returned handle to the one-shot
// attachment surface.
type ledgerAdapter struct {
	repo *repositories.LoginAttemptRepository
}

func (a *ledgerAdapter) Save(ctx context.Context, attempt *models.LoginAttempt) (services.AttemptHandle, error) {
	return a.repo.Save(ctx, attempt)
}

func (a *ledgerAdapter) GetByID(ctx context.Context, id string) (*models.LoginAttempt, error) {
	return a.repo.GetByID(ctx, id)
}

func (a *ledgerAdapter) Invoke(ctx context.Context, id string) error {
	return a.repo.Invoke(ctx, id)
}

func (a *ledgerAdapter) RecentByScope(ctx context.Context, ip string, siteCode models.SiteCode, since time.Time, limit int) ([]*models.LoginAttempt, error) {
	return a.repo.RecentByScope(ctx, ip, siteCode, since, limit)
}

func (a *ledgerAdapter) List(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error) {
	return a.repo.List(ctx, limit, offset)
}

// ensureAdminCredential seeds the singleton admin credential from
// ADMIN_PASSWORD on first boot. A no-op when the row already exists or
// the variable is unset.
func ensureAdminCredential(ctx context.Context, repo *repositories.AdminCredentialRepository, logger *slog.Logger) error {
	plaintext := os.Getenv("ADMIN_PASSWORD")
	if plaintext == "" {
		return nil
	}

	hash, err := pkgauth.HashPassword(plaintext)
	if err != nil {
		return err
	}

	if err := repo.Ensure(ctx, hash); err != nil {
		return err
	}

	logger.Info("admin credential ensured")
	return nil
}
