package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/config"
	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/handler"
	appMiddleware "github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/middleware"
	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/repository"
	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/service"
	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	stripe "github.com/stripe/stripe-go/v82"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	ctx := context.Background()

	// Initialize database
	db, err := repository.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Database error: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := repository.RunMigrations(ctx, db); err != nil {
		log.Fatalf("❌ Migration error: %v", err)
	}
	log.Println("✅ Database connected & migrated")

	// Stripe API key for customer lookups (webhook verification uses the
	// webhook secret, not this key)
	if cfg.StripeSecretKey != "" {
		stripe.Key = cfg.StripeSecretKey
	} else {
		log.Println("⚠️  STRIPE_SECRET_KEY not set (customer email lookups will fail)")
	}

	userRepo := repository.NewUserRepository(db)
	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.AdminEmail, cfg.AdminPassword, userRepo)

	// Seed admin user on first startup
	if err := authSvc.SeedAdmin(ctx); err != nil {
		log.Fatalf("❌ Admin seed error: %v", err)
	}

	// Payment reconciliation
	subRepo := repository.NewSubscriptionRepository(db)
	leadRepo := repository.NewLeadRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	reconciler := service.NewReconciler(
		subRepo, leadRepo, txRepo, userRepo,
		service.NewStripeCustomerResolver(),
		service.NewLogNotifier(),
	)
	subSvc := service.NewSubscriptionService(subRepo)

	if cfg.OpenAIAPIKey == "" {
		log.Println("⚠️  OPENAI_API_KEY not set (realtime voice endpoints disabled)")
	}

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authSvc)
	healthHandler := handler.NewHealthHandler(db)
	userHandler := handler.NewUserHandler(authSvc)
	webhookHandler := handler.NewWebhookHandler(reconciler, cfg.StripeWebhookSecret)
	tiersHandler := handler.NewTiersHandler()
	paymentHandler := handler.NewPaymentHandler(subSvc)
	realtimeHandler := handler.NewRealtimeHandler(cfg.OpenAIAPIKey, cfg.RealtimeModel, cfg.RealtimeVoice)
	adminHandler := handler.NewAdminHandler(db, txRepo)
	voiceHandler := ws.NewVoiceHandler(authSvc, cfg.OpenAIAPIKey, cfg.RealtimeModel, cfg.RealtimeVoice)

	// Build router
	r := chi.NewRouter()

	// Global middleware
	r.Use(appMiddleware.Recovery)
	r.Use(appMiddleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Global rate limiter (20 req/sec per IP, burst of 40)
	globalRL := appMiddleware.NewRateLimiter(20, 40)
	r.Use(globalRL.Middleware())

	// Health check and public routes (no auth)
	r.Get("/health", healthHandler.Check)
	r.Get("/api/tiers", tiersHandler.List)
	r.Post("/api/payment/webhook", webhookHandler.HandleStripe) // Signature-authenticated

	// Auth routes
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.StrictRateLimiter())
		r.Post("/api/auth/login", authHandler.Login)
	})

	// Protected API routes
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.Auth(authSvc))

		// Auth
		r.Post("/api/auth/logout", authHandler.Logout)
		r.Get("/api/auth/me", authHandler.Me)

		// Payment / sponsorship
		r.Get("/api/payment/subscription", paymentHandler.GetSubscription)
		r.Get("/api/sponsors/{id}/impact", paymentHandler.GetImpact)

		// Realtime voice
		r.Post("/api/realtime/token", realtimeHandler.MintToken)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.AdminOnly)
			r.Get("/api/admin/stats", adminHandler.GetStats)
			r.Get("/api/admin/transactions", adminHandler.ListTransactions)
			r.Get("/api/users", userHandler.List)
			r.Post("/api/users", userHandler.Create)
			r.Delete("/api/users/{id}", userHandler.Delete)
		})
	})

	// WebSocket voice bridge (auth via query param)
	r.HandleFunc("/realtime/voice", voiceHandler.Handle)

	// Start server
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// WriteTimeout must be 0 for WebSocket connections (they are long-lived)
		IdleTimeout: 120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("🛑 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("🚀 Wealth Hub Backend listening at http://%s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("❌ Server error: %v", err)
	}
}
