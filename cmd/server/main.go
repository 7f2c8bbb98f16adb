package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdg-garage/streak-ledger/internal/auth"
	"github.com/gdg-garage/streak-ledger/internal/config"
	"github.com/gdg-garage/streak-ledger/internal/database"
	"github.com/gdg-garage/streak-ledger/internal/handlers"
	"github.com/gdg-garage/streak-ledger/internal/ledger"
	"github.com/gdg-garage/streak-ledger/internal/notifier"
	"github.com/go-chi/chi/v5"
	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Load Configuration
	configFile := os.Getenv("CONFIG_FILE")
	v, err := config.New(configFile)
	if err != nil {
		log.Fatalf("Unable to read config file %s: %v", configFile, err)
	}
	cfg, err := config.Decode(v)
	if err != nil {
		log.Fatalf("Unable to decode config: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	// Connect to Database
	db := database.Connect(cfg)

	registry := prometheus.NewRegistry()
	metrics := handlers.NewMetrics(registry)
	streakLedger := ledger.New(db, ledger.WithMetrics(ledger.NewMetrics(registry)))

	var badgeNotifier notifier.Notifier
	if cfg.DiscordBotToken != "" {
		discordNotifier, err := notifier.NewDiscordNotifierFromToken(cfg.DiscordBotToken, cfg.DiscordNotificationsChannelID)
		if err != nil {
			log.Printf("Discord notifier not initialized: %v", err)
		} else {
			badgeNotifier = discordNotifier
		}
	}

	limiter := handlers.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, metrics)
	config.Watch(v, func(next *config.Config) {
		limiter.SetLimits(next.RateLimitRPS, next.RateLimitBurst)
	})

	authHandler := auth.NewAuthHandler(cfg)
	streakHandler := handlers.NewStreakHandler(streakLedger)
	badgeHandler := handlers.NewBadgeHandler(streakLedger, badgeNotifier)

	// Initialize Router
	r := chi.NewRouter()
	handlers.RegisterRoutes(r, metrics, limiter, authHandler, streakHandler, badgeHandler)

	var handler http.Handler = r
	if cfg.EnableCORS {
		handler = gorillaHandlers.CORS(
			gorillaHandlers.AllowedOrigins(cfg.CORSOrigins),
			gorillaHandlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
			gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		)(r)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Got signal %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
}
