package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/medqa-sponsor-engine/internal/catalog"
	"github.com/medqa-sponsor-engine/internal/domain"
	"github.com/medqa-sponsor-engine/pkg/external"
)

// Classifier classifies free-text questions. Implementations never fail.
type Classifier interface {
	Classify(ctx context.Context, question string, history []domain.Message) *domain.Classification
}

// ContextualAnalysis produces contextual relevance for a question.
type ContextualAnalysis interface {
	AnalyzeContextualRelevance(ctx context.Context, question string, classification *domain.Classification) (*domain.ContextualRelevanceResult, error)
}

// Clients are the external collaborators the services depend on.
type Clients struct {
	Classification external.StructuredGenerator
	Contextual     external.StructuredGenerator
	Embedder       external.Embedder
	Streamer       external.AnswerStreamer

	closers []func() error
}

// Close releases client resources such as cache connections.
func (c *Clients) Close() error {
	var first error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewClients builds the Gemini-backed clients described by cfg, wrapped with
// circuit breakers and an embedding cache. Without an API key every client
// reports ErrServiceUnavailable, so classification degrades to unknown and
// semantic similarity stays neutral.
func NewClients(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (*Clients, error) {
	if cfg.LLM.APIKey == "" {
		logger.Warn("No LLM API key configured, external services are unavailable")
		unavailable := external.Unavailable{}
		return &Clients{
			Classification: unavailable,
			Contextual:     unavailable,
			Embedder:       unavailable,
			Streamer:       unavailable,
		}, nil
	}

	gemini, err := external.NewGeminiClient(ctx, external.GeminiConfig{
		APIKey:              cfg.LLM.APIKey,
		ClassificationModel: cfg.LLM.ClassificationModel,
		AnswerModel:         cfg.LLM.AnswerModel,
		EmbeddingModel:      cfg.LLM.EmbeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	breaker := external.CircuitBreakerConfigFromLLM(cfg.LLM)
	clients := &Clients{
		Classification: external.NewResilientGenerator("classification", gemini, breaker, logger),
		Contextual:     external.NewResilientGenerator("contextual", gemini.WithStructuredModel(cfg.LLM.ContextualModel), breaker, logger),
		Streamer:       external.NewResilientStreamer("answer", gemini, breaker, logger),
	}

	var store external.EmbeddingStore
	if cfg.Cache.RedisURL != "" {
		redisClient, err := external.NewCacheClient(cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Redis cache disabled")
		} else if err := redisClient.Ping(ctx); err != nil {
			logger.WithError(err).Warn("Redis unreachable, embedding cache is memory-only")
			_ = redisClient.Close()
		} else {
			store = redisClient
			clients.closers = append(clients.closers, redisClient.Close)
		}
	}

	embedder := external.NewResilientEmbedder("embedding", gemini, breaker, logger)
	cache, err := external.NewEmbeddingCache(embedder, cfg.LLM.EmbeddingModel, cfg.Cache.MemoryMaxItems, cfg.Cache.DefaultTTL, store, logger)
	if err != nil {
		_ = clients.Close()
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	clients.Embedder = cache

	return clients, nil
}

// Services holds every analytical component, constructed once per process.
type Services struct {
	Catalog    *catalog.Catalog
	Classifier *QuestionClassifier
	Mapper     *TreatmentAreaMapper
	Scorer     *ConfidenceScorer
	Contextual *ContextualAnalyzer
	Adapter    ContentAdapter
	Estimator  *TimeEstimator
	Selector   *ExperienceSelector
	Pipeline   *Pipeline
	MapOptions MapOptions
}

// NewServices wires the components from configuration and clients.
func NewServices(cfg *domain.Config, clients *Clients, logger *logrus.Logger) (*Services, error) {
	cat, err := catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load sponsor catalog: %w", err)
	}

	classifier := NewQuestionClassifier(clients.Classification, logger)
	contextual := NewContextualAnalyzer(clients.Contextual, logger)
	estimator := NewTimeEstimator(cfg.Estimator.ModelName, logger)

	s := &Services{
		Catalog:    cat,
		Classifier: classifier,
		Mapper:     NewTreatmentAreaMapper(cat, logger),
		Scorer:     NewConfidenceScorer(clients.Embedder, cfg.Confidence, logger),
		Contextual: contextual,
		Estimator:  estimator,
		Selector:   NewExperienceSelector(classifier, contextual, estimator, logger),
		MapOptions: MapOptionsFromConfig(cfg.Mapper),
	}
	s.Pipeline = NewPipeline(s, clients.Streamer, cfg.Progress.Interval, logger)

	logger.WithFields(logrus.Fields{
		"companies":       len(cat.Companies()),
		"treatment_areas": cat.AreaCount(),
		"threshold":       cfg.Confidence.Threshold,
		"semantic":        cfg.Confidence.SemanticAnalysisEnabled,
	}).Info("Services initialized")

	return s, nil
}
