package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/medqa-sponsor-engine/internal/api"
	"github.com/medqa-sponsor-engine/internal/app"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, app.Options{ConfigFile: os.Getenv("MEDQA_CONFIG_FILE")})
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	logger := application.Logger
	cfg := application.Config.GetConfig()
	logger.WithField("port", cfg.Server.Port).Info("Starting MedQA sponsor engine HTTP server")

	server := api.NewServer(application.Config, application.Services, logger)
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		return
	}

	logger.Info("Server stopped")
}
