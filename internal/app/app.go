// Package app wires configuration, logging, external clients and services for
// the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/medqa-sponsor-engine/internal/config"
	"github.com/medqa-sponsor-engine/internal/logging"
	"github.com/medqa-sponsor-engine/internal/service"
)

// Options adjust how the application is assembled.
type Options struct {
	// ConfigFile is an explicit config file; empty searches the default locations.
	ConfigFile string
	// LogOutput overrides logging.output, e.g. "stderr" when stdout carries a protocol.
	LogOutput string
}

// App is a fully wired application.
type App struct {
	Config   *config.Manager
	Logger   *logrus.Logger
	Clients  *service.Clients
	Services *service.Services
}

// New loads .env and configuration, then builds the logger, clients and services.
func New(ctx context.Context, opts Options) (*App, error) {
	// .env is optional; real environment variables always win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	manager, err := config.NewManagerWithFile(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	cfg := manager.GetConfig()
	if opts.LogOutput != "" {
		cfg.Logging.Output = opts.LogOutput
	}
	if err := manager.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	clients, err := service.NewClients(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	services, err := service.NewServices(cfg, clients, logger)
	if err != nil {
		_ = clients.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"environment":  cfg.Environment,
		"answer_model": cfg.LLM.AnswerModel,
	}).Info("Application initialized")

	return &App{
		Config:   manager,
		Logger:   logger,
		Clients:  clients,
		Services: services,
	}, nil
}

// Close releases external resources.
func (a *App) Close() error {
	return a.Clients.Close()
}
