package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"ms-raffle/internal/app"
	"ms-raffle/internal/config"
	"ms-raffle/internal/logger"
	handlers "ms-raffle/internal/payment/handler"
	"ms-raffle/internal/payment/reconciler"
	"ms-raffle/internal/settings"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger("payment-webhook")
	defer log.Close()
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	log.Info("APP", "Starting payment webhook receiver")

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

	rec := reconciler.New(gateway, settings.NewStore(infra.DB, log), infra.TicketService(), infra.Alarm(), log)

	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	handlers.NewNotificationHandler(rec, log).RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.WebhookPort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Payment webhook (%s) running on %s", gateway.Name(), cfg.Server.WebhookPort))
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
	log.Info("HTTP", "✅ Payment webhook shutdown complete")
}

