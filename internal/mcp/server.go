package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/medqa-sponsor-engine/internal/domain"
	"github.com/medqa-sponsor-engine/internal/service"
)

const (
	defaultServerName    = "medqa-sponsor-engine"
	defaultServerVersion = "v0.1.0"
)

// Server exposes the decision engine as MCP tools over stdio
type Server struct {
	config    domain.ConfigManager
	services  *service.Services
	mcpServer *mcp.Server
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance
func NewServer(configManager domain.ConfigManager, services *service.Services, logger *logrus.Logger) (*Server, error) {
	cfg := configManager.GetConfig()

	serverInfo := &mcp.Implementation{
		Name:    cfg.MCP.ServerName,
		Version: cfg.MCP.ServerVersion,
	}
	if serverInfo.Name == "" {
		serverInfo.Name = defaultServerName
	}
	if serverInfo.Version == "" {
		serverInfo.Version = defaultServerVersion
	}

	server := &Server{
		config:    configManager,
		services:  services,
		mcpServer: mcp.NewServer(serverInfo, nil),
		logger:    logger,
	}

	if err := server.registerCapabilities(); err != nil {
		return nil, fmt.Errorf("failed to register capabilities: %w", err)
	}

	return server, nil
}

// Start serves MCP over stdio until ctx is cancelled or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting MedQA MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// registerCapabilities registers all MCP tools
func (s *Server) registerCapabilities() error {
	if s.services == nil {
		return fmt.Errorf("services are required")
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "classify_question",
		Description: "Classify a medical question into the clinical taxonomy with keywords and relevant medications",
	}, s.handleClassifyQuestion)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "match_sponsors",
		Description: "Rank pharmaceutical sponsors for a medical question and decide whether sponsored content should be shown",
	}, s.handleMatchSponsors)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "select_experience",
		Description: "Choose the interactive experience to show while an answer is generated",
	}, s.handleSelectExperience)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "estimate_time",
		Description: "Estimate how long the answer to a medical question takes to generate, in seconds",
	}, s.handleEstimateTime)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "analyze_question",
		Description: "Run the full sponsored-content decision for a medical question without generating the answer",
	}, s.handleAnalyzeQuestion)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_sponsors",
		Description: "List the sponsor catalog: companies with their treatment areas and flagship medications",
	}, s.handleListSponsors)

	s.logger.WithField("tools", 6).Info("Registered MCP tools")
	return nil
}
