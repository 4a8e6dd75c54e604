package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/medqa-sponsor-engine/internal/domain"
	"github.com/medqa-sponsor-engine/internal/middleware"
	"github.com/medqa-sponsor-engine/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	services      *service.Services
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
	upgrader      websocket.Upgrader
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, services *service.Services, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if configManager.IsDevelopment() && cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders(configManager.IsProduction()))
	router.Use(corsMiddleware())
	router.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst, logger))

	server := &Server{
		configManager: configManager,
		services:      services,
		logger:        logger,
		router:        router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}

	server.setupRoutes()

	return server
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: cfg.ReadTimeout,
		// Answers stream for as long as the model takes, so writes are bounded
		// per request rather than per connection.
		IdleTimeout: cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	timeout := s.configManager.GetServerConfig().RequestTimeout

	v1 := s.router.Group("/api/v1")
	{
		bounded := v1.Group("", middleware.RequestTimeout(timeout))
		bounded.POST("/classify", s.handleClassify)
		bounded.POST("/match", s.handleMatch)
		bounded.POST("/contextual", s.handleContextual)
		bounded.POST("/experience", s.handleExperience)
		bounded.POST("/experience/transition", s.handleTransition)
		bounded.POST("/estimate", s.handleEstimate)
		bounded.POST("/analyze", s.handleAnalyze)
		bounded.GET("/catalog", s.handleCatalog)

		// Streaming routes run for as long as the answer takes.
		v1.POST("/ask", s.handleAsk)
		v1.GET("/ask/ws", s.handleAskWebSocket)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"timestamp":       time.Now().UTC(),
		"version":         Version,
		"companies":       len(s.services.Catalog.Companies()),
		"treatment_areas": s.services.Catalog.AreaCount(),
	})
}

type questionRequest struct {
	Question string           `json:"question"`
	History  []domain.Message `json:"history,omitempty"`
}

type matchRequest struct {
	questionRequest
	Classification          *domain.Classification `json:"classification,omitempty"`
	MinScore                *int                   `json:"minScore,omitempty"`
	MaxResults              *int                   `json:"maxResults,omitempty"`
	RequireSubcategoryMatch *bool                  `json:"requireSubcategoryMatch,omitempty"`
	Threshold               *float64               `json:"threshold,omitempty"`
	SemanticAnalysis        *bool                  `json:"semanticAnalysis,omitempty"`
	Debug                   *bool                  `json:"debug,omitempty"`
}

type matchResponse struct {
	*domain.EnhancedMappingResult
	ShowSponsored bool `json:"showSponsored"`
}

type contextualRequest struct {
	questionRequest
	Classification *domain.Classification `json:"classification,omitempty"`
}

type contextualResponse struct {
	*domain.ContextualRelevanceResult
	ContentLength domain.ContentLength  `json:"contentLength"`
	Formats       []service.FormatScore `json:"formats"`
}

type experienceRequest struct {
	questionRequest
	Classification  *domain.Classification            `json:"classification,omitempty"`
	Contextual      *domain.ContextualRelevanceResult `json:"contextual,omitempty"`
	EstimatedWaitMs *int64                            `json:"estimatedWaitMs,omitempty"`
	Device          *domain.DeviceCapabilities        `json:"device,omitempty"`
}

type transitionRequest struct {
	Current domain.ExperienceType      `json:"current"`
	Next    domain.ExperienceType      `json:"next"`
	Device  *domain.DeviceCapabilities `json:"device,omitempty"`
}

type estimateRequest struct {
	Question       string                            `json:"question"`
	Classification *domain.Classification            `json:"classification,omitempty"`
	Contextual     *domain.ContextualRelevanceResult `json:"contextual,omitempty"`
}

// checkClassification rejects a caller-supplied classification that fails
// validation. A nil classification is accepted; the handler classifies instead.
func (s *Server) checkClassification(c *gin.Context, classification *domain.Classification) bool {
	if classification == nil {
		return true
	}
	if err := classification.Validate(); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid classification", err)
		return false
	}
	return true
}

// bindQuestion decodes the body into req and rejects a blank question before any
// downstream call.
func (s *Server) bindQuestion(c *gin.Context, req any, question func() string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrValidation, "Invalid request body", err)
		return false
	}
	if strings.TrimSpace(question()) == "" {
		s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Question is required", domain.ErrEmptyQuestion)
		return false
	}
	return true
}

func (s *Server) handleClassify(c *gin.Context) {
	var req questionRequest
	if !s.bindQuestion(c, &req, func() string { return req.Question }) {
		return
	}
	c.JSON(http.StatusOK, s.services.Classifier.Classify(c.Request.Context(), req.Question, req.History))
}

func (s *Server) handleMatch(c *gin.Context) {
	var req matchRequest
	if !s.bindQuestion(c, &req, func() string { return req.Question }) || !s.checkClassification(c, req.Classification) {
		return
	}
	ctx := c.Request.Context()

	classification := req.Classification
	if classification == nil {
		classification = s.services.Classifier.Classify(ctx, req.Question, req.History)
	}

	opts := s.services.MapOptions
	if req.MinScore != nil {
		opts.MinScore = *req.MinScore
	}
	if req.MaxResults != nil {
		opts.MaxResults = *req.MaxResults
	}
	if req.RequireSubcategoryMatch != nil {
		opts.RequireSubcategoryMatch = *req.RequireSubcategoryMatch
	}

	mapping := s.services.Mapper.MapToCompanies(classification, opts)
	enhanced, err := s.services.Scorer.EnhanceWithConfidence(ctx, mapping, req.Question, service.ConfidenceOptions{
		Threshold:        req.Threshold,
		SemanticAnalysis: req.SemanticAnalysis,
		Debug:            req.Debug,
	})
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrInternalServer, "Confidence scoring failed", err)
		return
	}

	c.JSON(http.StatusOK, matchResponse{
		EnhancedMappingResult: enhanced,
		ShowSponsored:         service.ShouldShowAd(enhanced, nil),
	})
}

func (s *Server) handleContextual(c *gin.Context) {
	var req contextualRequest
	if !s.bindQuestion(c, &req, func() string { return req.Question }) || !s.checkClassification(c, req.Classification) {
		return
	}
	ctx := c.Request.Context()

	classification := req.Classification
	if classification == nil {
		classification = s.services.Classifier.Classify(ctx, req.Question, req.History)
	}

	result, err := s.services.Contextual.AnalyzeContextualRelevance(ctx, req.Question, classification)
	if err != nil {
		s.respondError(c, http.StatusBadGateway, domain.ErrContextualRelevance, "Contextual relevance analysis failed", err)
		return
	}

	c.JSON(http.StatusOK, contextualResponse{
		ContextualRelevanceResult: result,
		ContentLength:             s.services.Adapter.DetermineContentLength(result),
		Formats:                   s.services.Adapter.RankFormats(result, classification.Categories),
	})
}

func (s *Server) handleExperience(c *gin.Context) {
	var req experienceRequest
	if !s.bindQuestion(c, &req, func() string { return req.Question }) || !s.checkClassification(c, req.Classification) {
		return
	}

	selection := s.services.Selector.SelectExperience(c.Request.Context(), service.ExperienceContext{
		Question:        req.Question,
		History:         req.History,
		Classification:  req.Classification,
		Contextual:      req.Contextual,
		EstimatedWaitMs: req.EstimatedWaitMs,
		Device:          req.Device,
		UserAgent:       c.Request.UserAgent(),
	})
	c.JSON(http.StatusOK, selection)
}

func (s *Server) handleTransition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrValidation, "Invalid request body", err)
		return
	}

	config := s.services.Selector.TransitionToExperience(req.Current, req.Next, service.ExperienceContext{
		Device:    req.Device,
		UserAgent: c.Request.UserAgent(),
	})
	c.JSON(http.StatusOK, config)
}

func (s *Server) handleEstimate(c *gin.Context) {
	var req estimateRequest
	if !s.bindQuestion(c, &req, func() string { return req.Question }) || !s.checkClassification(c, req.Classification) {
		return
	}
	c.JSON(http.StatusOK, s.services.Estimator.EstimateTime(req.Question, req.Classification, req.Contextual))
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req service.AskRequest
	if !s.bindQuestion(c, &req, func() string { return req.Question }) {
		return
	}
	req.UserAgent = c.Request.UserAgent()

	analysis, err := s.services.Pipeline.Analyze(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrInternalServer, "Analysis failed", err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (s *Server) handleCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"companies": s.services.Catalog.Companies(),
	})
}

// handleAsk streams the answer as newline-delimited JSON events.
func (s *Server) handleAsk(c *gin.Context) {
	var req service.AskRequest
	if !s.bindQuestion(c, &req, func() string { return req.Question }) {
		return
	}
	req.UserAgent = c.Request.UserAgent()

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	encoder := json.NewEncoder(c.Writer)
	err := s.services.Pipeline.Ask(c.Request.Context(), req, func(ev domain.StreamEvent) error {
		if err := encoder.Encode(ev); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("correlation_id", c.GetString(middleware.CorrelationIDKey)).
			Warn("Answer stream ended with error")
	}
}

// handleAskWebSocket reads one AskRequest from the socket and writes the same
// event sequence as handleAsk, one JSON message per event.
func (s *Server) handleAskWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	requestID := c.GetString(middleware.CorrelationIDKey)

	var req service.AskRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(errorEvent(domain.NewAPIError(domain.ErrValidation, "Invalid request message", err.Error(), requestID)))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		_ = conn.WriteJSON(errorEvent(domain.NewAPIError(domain.ErrInvalidInput, "Question is required", domain.ErrEmptyQuestion.Error(), requestID)))
		return
	}
	req.UserAgent = c.Request.UserAgent()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	// The reader only watches for the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	err = s.services.Pipeline.Ask(ctx, req, func(ev domain.StreamEvent) error {
		return conn.WriteJSON(ev)
	})
	if err != nil {
		s.logger.WithError(err).WithField("correlation_id", requestID).Warn("WebSocket answer stream ended with error")
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

func errorEvent(apiErr *domain.APIError) domain.StreamEvent {
	return domain.StreamEvent{Type: domain.EventError, Data: apiErr}
}

func (s *Server) respondError(c *gin.Context, status int, code, message string, err error) {
	requestID := c.GetString(middleware.CorrelationIDKey)
	s.logger.WithError(err).WithFields(logrus.Fields{
		"code":           code,
		"status":         status,
		"correlation_id": requestID,
	}).Warn(message)
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, err.Error(), requestID))
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-Correlation-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Length, X-Correlation-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
