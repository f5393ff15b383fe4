// Command expiry-worker runs the order background jobs without the HTTP
// surface: reservation timers, the expiry sweeper and the payment results
// consumer.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"ms-storefront/internal/app"
	"ms-storefront/internal/config"
	"ms-storefront/internal/logger"
)

func main() {
	cfg := config.Load()
	log := logger.NewLogger(cfg.Log.Service+"-worker", logger.ParseLevel(cfg.Log.Level))
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Connect(ctx, cfg, log)
	if err != nil {
		log.Fatal("APP", fmt.Sprintf("Failed to initialize: %v", err))
	}
	defer a.Close()

	a.StartWorkers(ctx)
	log.Info("APP", "Expiry worker started, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("APP", "Expiry worker stopping")
}
