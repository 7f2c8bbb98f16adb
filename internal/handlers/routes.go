package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/gdg-garage/streak-ledger/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var bearerAuth = []map[string][]string{{"bearerAuth": {}}}

func APIConfig() huma.Config {
	config := huma.DefaultConfig("Streak Ledger API", "1.0.0")
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearerAuth": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}
	return config
}

// RegisterOperations installs the auth middleware and all ledger operations on api.
func RegisterOperations(api huma.API, authHandler *auth.AuthHandler, streakHandler *StreakHandler, badgeHandler *BadgeHandler) {
	api.UseMiddleware(authHandler.Middleware(api))

	secured := func(o *huma.Operation) {
		o.Security = bearerAuth
	}

	huma.Get(api, "/streak", streakHandler.HandleGetStreak, secured)
	huma.Post(api, "/streak", streakHandler.HandleRecordStreak, secured)
	huma.Get(api, "/badges", badgeHandler.HandleListBadges, secured)
	huma.Post(api, "/badge", badgeHandler.HandleGrantBadge, secured)
}

func RegisterRoutes(r *chi.Mux, metrics *Metrics, limiter *RateLimiter, authHandler *auth.AuthHandler, streakHandler *StreakHandler, badgeHandler *BadgeHandler) {
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if metrics != nil {
		r.Use(metrics.Middleware)
	}

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}
		api := humachi.New(r, APIConfig())
		RegisterOperations(api, authHandler, streakHandler, badgeHandler)
	})
}
