package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/medqa-sponsor-engine/internal/app"
	"github.com/medqa-sponsor-engine/internal/mcp"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// stdout carries the MCP protocol, so logs go to stderr unless a file is configured.
	opts := app.Options{ConfigFile: os.Getenv("MEDQA_CONFIG_FILE")}
	if os.Getenv("MEDQA_LOGGING_OUTPUT") != "file" {
		opts.LogOutput = "stderr"
	}

	application, err := app.New(ctx, opts)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	mcpServer, err := mcp.NewServer(application.Config, application.Services, application.Logger)
	if err != nil {
		application.Logger.WithError(err).Error("Failed to create MCP server")
		return
	}

	if err := mcpServer.Start(ctx); err != nil {
		application.Logger.WithError(err).Error("MCP server stopped with error")
		return
	}

	application.Logger.Info("MCP server stopped")
}
