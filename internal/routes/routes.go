package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/mbenek/sitegate/internal/auth"
	"github.com/mbenek/sitegate/internal/handlers"
	"github.com/mbenek/sitegate/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
	clientAppHandler *handlers.ClientAppHandler,
	healthHandler *handlers.HealthHandler,
	codec *auth.Codec,
	gateConfig middleware.GateConfig,
	clientAppAPIKey string,
) {
	throttle := middleware.DefaultLoginThrottle()

	router.Get("/health", healthHandler.Check)

	// Browser auth - no session required
	router.With(middleware.ThrottleByIP(throttle)).Post("/auth/login", authHandler.Login)
	router.Post("/auth/logout", authHandler.Logout)
	router.Get("/auth/session", authHandler.Session)

	// Admin panel - cookie session under the admin scope
	router.Group(func(r chi.Router) {
		r.Use(middleware.AdminGate(codec, gateConfig))

		r.Get("/admin/passwords", adminHandler.ListPasswords)
		r.Post("/admin/passwords", adminHandler.GeneratePassword)
		r.Delete("/admin/passwords/{id}", adminHandler.DeletePassword)
		r.Post("/admin/passwords/cleanup", adminHandler.CleanupPasswords)
		r.Put("/admin/credential", adminHandler.ChangeCredential)
		r.Get("/admin/login-attempts", adminHandler.ListAttempts)
	})

	// Mobile client - API key on every route, bearer token past login
	router.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyGate(clientAppAPIKey))

		r.With(middleware.ThrottleByIP(throttle)).Post("/api/client-app/login", clientAppHandler.Login)
		r.Post("/api/client-app/refresh-token", clientAppHandler.RefreshToken)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ClientAppAuth(codec))

			r.Post("/api/client-app/logout", clientAppHandler.Logout)
			r.Get("/api/client-app/profile", clientAppHandler.Profile)
		})
	})
}
