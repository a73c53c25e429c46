package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"ms-raffle/internal/app"
	"ms-raffle/internal/approval"
	"ms-raffle/internal/auth"
	"ms-raffle/internal/config"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/payment"
	"ms-raffle/internal/settings"
	qr "ms-raffle/internal/tickets/qr_generator"
	"ms-raffle/internal/tickets/ticket_api"
)

func adminMiddleware(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) func(http.Handler) http.Handler {
	if cfg.Disabled {
		log.Warn("AUTH", "AUTH_DISABLED is set, operator routes are open")
		return auth.Disabled()
	}
	if cfg.OIDCIssuer == "" {
		log.Fatal("CONFIG", "OIDC_ISSUER not set")
	}
	verifier, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}
	log.Info("AUTH", fmt.Sprintf("Operator routes protected by %s", cfg.OIDCIssuer))
	return auth.Middleware(verifier, log)
}

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger("raffle-api")
	defer log.Close()
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	log.Info("APP", "Starting raffle API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := app.Start(ctx, cfg, log)
	if err != nil {
		log.Fatal("APP", err.Error())
	}
	defer infra.Close()

	gateway, err := infra.Gateway()
	if err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	ticketService := infra.TicketService()
	settingsStore := settings.NewStore(infra.DB, log)

	approvals, err := approval.NewService(ticketService, cfg.Auth.ApprovalSecret, cfg.Auth.ApprovalTTL, log)
	if err != nil {
		log.Fatal("APP", err.Error())
	}

	handler := &ticket_api.Handler{
		TicketService: ticketService,
		Checkout:      payment.NewCheckoutService(settingsStore, ticketService, gateway, log),
		Settings:      settingsStore,
		Approvals:     approvals,
		Changes:       infra.Changes,
		QRGenerator:   qr.NewQRGenerator(cfg.Payment.PublicBaseURL),
		Logger:        log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	handler.RegisterRoutes(r, adminMiddleware(ctx, cfg.Auth, log))
	log.Info("ROUTER", fmt.Sprintf("Routes registered, payments via %s", gateway.Name()))

	server := &http.Server{
		Addr:         cfg.Server.APIPort,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Raffle API running on %s", cfg.Server.APIPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
		os.Exit(1)
	}
	log.Info("HTTP", "✅ Raffle API shutdown complete")
}
