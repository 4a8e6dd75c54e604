package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medqa-sponsor-engine/internal/domain"
	"github.com/medqa-sponsor-engine/pkg/external"
)

// AskRequest is one question submitted to the pipeline.
type AskRequest struct {
	Question  string                     `json:"question"`
	History   []domain.Message           `json:"history,omitempty"`
	UserAgent string                     `json:"-"`
	Device    *domain.DeviceCapabilities `json:"device,omitempty"`
}

// Analysis is the full sponsored-content decision for one question.
type Analysis struct {
	Classification  *domain.Classification            `json:"classification"`
	Mapping         *domain.EnhancedMappingResult     `json:"mapping,omitempty"`
	MappingError    string                            `json:"mappingError,omitempty"`
	Contextual      *domain.ContextualRelevanceResult `json:"contextual,omitempty"`
	ContextualError string                            `json:"contextualError,omitempty"`
	ContentLength   domain.ContentLength              `json:"contentLength"`
	Formats         []FormatScore                     `json:"formats,omitempty"`
	TimeEstimate    *domain.TimeEstimationResult      `json:"timeEstimate"`
	Experience      *domain.ExperienceSelection       `json:"experience"`
	ShowSponsored   bool                              `json:"showSponsored"`
}

// SponsoredContent announces the sponsor chosen for a question.
type SponsoredContent struct {
	Company       domain.CompanyRef `json:"company"`
	TreatmentArea string            `json:"treatmentArea"`
	Confidence    float64           `json:"confidence"`
	Medications   []string          `json:"medications,omitempty"`
}

// AskSummary is the payload of the terminal complete event.
type AskSummary struct {
	SessionID      string                `json:"sessionId"`
	Experience     domain.ExperienceType `json:"experience"`
	AdRecommended  bool                  `json:"adRecommended"`
	Chunks         int                   `json:"chunks"`
	DurationMs     int64                 `json:"durationMs"`
	EstimatedTimeS float64               `json:"estimatedTimeS"`
}

// Pipeline runs the components for a single request.
type Pipeline struct {
	services         *Services
	streamer         external.AnswerStreamer
	progressInterval time.Duration
	logger           *logrus.Logger
}

// NewPipeline creates a new request pipeline
func NewPipeline(services *Services, streamer external.AnswerStreamer, progressInterval time.Duration, logger *logrus.Logger) *Pipeline {
	if streamer == nil {
		streamer = external.Unavailable{}
	}
	return &Pipeline{
		services:         services,
		streamer:         streamer,
		progressInterval: progressInterval,
		logger:           logger,
	}
}

// Analyze classifies req and decides sponsorship, experience and timing without
// streaming an answer.
func (p *Pipeline) Analyze(ctx context.Context, req AskRequest) (*Analysis, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, domain.ErrEmptyQuestion
	}
	classification := p.services.Classifier.Classify(ctx, req.Question, req.History)
	return p.analyze(ctx, req, classification), nil
}

// analyze runs everything downstream of classification. Mapping and contextual
// analysis run in parallel since both depend only on the classification.
func (p *Pipeline) analyze(ctx context.Context, req AskRequest, classification *domain.Classification) *Analysis {
	analysis := &Analysis{Classification: classification}

	var (
		wg            sync.WaitGroup
		mapping       *domain.EnhancedMappingResult
		mappingErr    error
		contextual    *domain.ContextualRelevanceResult
		contextualErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		raw := p.services.Mapper.MapToCompanies(classification, p.services.MapOptions)
		mapping, mappingErr = p.services.Scorer.EnhanceWithConfidence(ctx, raw, req.Question, ConfidenceOptions{})
	}()
	go func() {
		defer wg.Done()
		contextual, contextualErr = p.services.Contextual.AnalyzeContextualRelevance(ctx, req.Question, classification)
	}()
	wg.Wait()

	if mappingErr != nil {
		p.logger.WithError(mappingErr).Error("Confidence scoring failed, no sponsored content")
		analysis.MappingError = mappingErr.Error()
	} else {
		analysis.Mapping = mapping
		analysis.ShowSponsored = ShouldShowAd(mapping, nil)
	}

	if contextualErr != nil {
		analysis.ContextualError = contextualErr.Error()
		analysis.ContentLength = domain.LengthStandard
	} else {
		analysis.Contextual = contextual
		analysis.ContentLength = p.services.Adapter.DetermineContentLength(contextual)
		analysis.Formats = p.services.Adapter.RankFormats(contextual, classification.Categories)
	}

	analysis.TimeEstimate = p.services.Estimator.EstimateTime(req.Question, classification, contextual)
	waitMs := int64(math.Round(analysis.TimeEstimate.InitialEstimate * 1000))

	analysis.Experience = p.services.Selector.SelectExperience(ctx, ExperienceContext{
		Question:        req.Question,
		History:         req.History,
		Classification:  classification,
		Contextual:      contextual,
		ContextualErr:   contextualErr,
		EstimatedWaitMs: &waitMs,
		Device:          req.Device,
		UserAgent:       req.UserAgent,
	})

	return analysis
}

// Ask answers req, emitting events in order: classification, timeEstimate,
// experience, an optional sponsoredContent, interleaved progress and chunk
// events, then complete. emit is never called concurrently. An empty question
// fails with ErrEmptyQuestion before any event or downstream call.
func (p *Pipeline) Ask(ctx context.Context, req AskRequest, emit func(domain.StreamEvent) error) error {
	if strings.TrimSpace(req.Question) == "" {
		return domain.ErrEmptyQuestion
	}
	started := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	classification := p.services.Classifier.Classify(ctx, req.Question, req.History)
	if err := emit(domain.StreamEvent{Type: domain.EventClassification, Data: classification}); err != nil {
		return err
	}

	analysis := p.analyze(ctx, req, classification)
	if err := emit(domain.StreamEvent{Type: domain.EventTimeEstimate, Data: analysis.TimeEstimate}); err != nil {
		return err
	}
	if err := emit(domain.StreamEvent{Type: domain.EventExperience, Data: analysis.Experience}); err != nil {
		return err
	}
	if analysis.ShowSponsored && analysis.Mapping.TopMatch != nil {
		top := analysis.Mapping.TopMatch
		sponsored := SponsoredContent{
			Company:       top.Company,
			TreatmentArea: top.TreatmentArea.ID,
			Confidence:    top.ConfidenceScore,
			Medications:   top.MatchedMedications,
		}
		if err := emit(domain.StreamEvent{Type: domain.EventSponsored, Data: sponsored}); err != nil {
			return err
		}
	}

	tracker := NewProgressTracker(p.progressInterval, p.logger)
	progress, unsubscribe := tracker.Subscribe()
	defer unsubscribe()
	sessionID := tracker.Start(analysis.TimeEstimate.InitialEstimate)
	defer tracker.Stop()

	chunks := make(chan string)
	streamErr := make(chan error, 1)
	go func() {
		defer close(chunks)
		streamErr <- p.streamer.StreamAnswer(ctx, req.Question, req.History, func(text string) error {
			select {
			case chunks <- text:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	chunkCount := 0
	for chunks != nil {
		select {
		case text, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			chunkCount++
			if err := emit(domain.StreamEvent{Type: domain.EventChunk, Data: map[string]string{"text": text}}); err != nil {
				return err
			}
		case ev := <-progress:
			if err := emit(domain.StreamEvent{Type: domain.EventProgress, Data: ev}); err != nil {
				return err
			}
		}
	}

	if err := <-streamErr; err != nil {
		p.logger.WithError(err).Error("Answer stream failed")
		_ = emit(domain.StreamEvent{Type: domain.EventError, Data: map[string]string{"code": domain.ErrExternalAPI, "message": err.Error()}})
		return fmt.Errorf("answer stream failed: %w", err)
	}

	tracker.Complete()
	for ev := range progress {
		if err := emit(domain.StreamEvent{Type: domain.EventProgress, Data: ev}); err != nil {
			return err
		}
		if ev.Done {
			break
		}
	}

	summary := AskSummary{
		SessionID:      sessionID,
		Experience:     analysis.Experience.Selected.Type,
		AdRecommended:  analysis.ShowSponsored,
		Chunks:         chunkCount,
		DurationMs:     time.Since(started).Milliseconds(),
		EstimatedTimeS: analysis.TimeEstimate.InitialEstimate,
	}

	p.logger.WithFields(logrus.Fields{
		"session_id":     sessionID,
		"experience":     summary.Experience,
		"ad_recommended": summary.AdRecommended,
		"chunks":         chunkCount,
		"duration_ms":    summary.DurationMs,
	}).Info("Answer streamed")

	return emit(domain.StreamEvent{Type: domain.EventComplete, Data: summary})
}
