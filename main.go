package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"ms-storefront/internal/app"
	"ms-storefront/internal/config"
	"ms-storefront/internal/logger"
)

func main() {
	cfg := config.Load()
	log := logger.NewLogger(cfg.Log.Service, logger.ParseLevel(cfg.Log.Level))
	defer log.Close()

	log.Info("APP", "Starting storefront service initialization")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Connect(ctx, cfg, log)
	if err != nil {
		log.Fatal("APP", fmt.Sprintf("Failed to initialize: %v", err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("APP", fmt.Sprintf("Shutdown cleanup: %v", err))
		}
	}()

	if err := a.Migrate(); err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("Failed to apply migrations: %v", err))
	}

	verifier, err := app.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to set up token verification: %v", err))
	}
	log.Info("AUTH", fmt.Sprintf("Bearer tokens verified in %s mode", cfg.Auth.Mode))

	a.StartWorkers(ctx)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      a.Router(verifier),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Storefront service running on %s", cfg.Server.Port))
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
	} else {
		log.Info("HTTP", "Storefront service shutdown complete")
	}
}
