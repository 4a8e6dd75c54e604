package mcp

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/medqa-sponsor-engine/internal/domain"
	"github.com/medqa-sponsor-engine/internal/service"
)

// ClassifyQuestionParams defines parameters for the classify_question tool
type ClassifyQuestionParams struct {
	Question string           `json:"question" jsonschema:"the medical question to classify"`
	History  []domain.Message `json:"history,omitempty" jsonschema:"earlier conversation turns, oldest first"`
}

// MatchSponsorsParams defines parameters for the match_sponsors tool
type MatchSponsorsParams struct {
	Question       string                 `json:"question" jsonschema:"the medical question"`
	Classification *domain.Classification `json:"classification,omitempty" jsonschema:"a classification from classify_question; classified on the fly when absent"`
	MaxResults     int                    `json:"maxResults,omitempty" jsonschema:"maximum number of matches to return"`
	Threshold      *float64               `json:"threshold,omitempty" jsonschema:"confidence threshold in [0,1] overriding the configured one"`
}

// MatchSponsorsResult defines the result structure for the match_sponsors tool
type MatchSponsorsResult struct {
	*domain.EnhancedMappingResult
	ShowSponsored bool `json:"showSponsored"`
}

// SelectExperienceParams defines parameters for the select_experience tool
type SelectExperienceParams struct {
	Question        string                     `json:"question" jsonschema:"the medical question"`
	EstimatedWaitMs *int64                     `json:"estimatedWaitMs,omitempty" jsonschema:"expected answer latency in milliseconds; estimated when absent"`
	Device          *domain.DeviceCapabilities `json:"device,omitempty" jsonschema:"client device capabilities"`
	UserAgent       string                     `json:"userAgent,omitempty" jsonschema:"client User-Agent used to detect mobile devices when device is absent"`
}

// EstimateTimeParams defines parameters for the estimate_time tool
type EstimateTimeParams struct {
	Question       string                 `json:"question" jsonschema:"the medical question"`
	Classification *domain.Classification `json:"classification,omitempty" jsonschema:"a classification from classify_question; classified on the fly when absent"`
}

// AnalyzeQuestionParams defines parameters for the analyze_question tool
type AnalyzeQuestionParams struct {
	Question string                     `json:"question" jsonschema:"the medical question"`
	History  []domain.Message           `json:"history,omitempty" jsonschema:"earlier conversation turns, oldest first"`
	Device   *domain.DeviceCapabilities `json:"device,omitempty" jsonschema:"client device capabilities"`
}

// ListSponsorsParams defines parameters for the list_sponsors tool
type ListSponsorsParams struct {
	Company string `json:"company,omitempty" jsonschema:"restrict the listing to one company id"`
}

// ListSponsorsResult defines the result structure for the list_sponsors tool
type ListSponsorsResult struct {
	Companies []domain.Company `json:"companies"`
}

// handleClassifyQuestion handles the classify_question tool invocation
func (s *Server) handleClassifyQuestion(ctx context.Context, _ *mcp.CallToolRequest, params ClassifyQuestionParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "classify_question").Info("Tool invoked")

	if res := s.requireQuestion(params.Question); res != nil {
		return res, nil, nil
	}

	classification := s.services.Classifier.Classify(ctx, params.Question, params.History)

	text := fmt.Sprintf("Classified as %s / %s (confidence %.2f)",
		classification.PrimaryCategory.ID, classification.Subcategory.ID, classification.PrimaryCategory.Confidence)
	if classification.Failed {
		text = "Classification unavailable, question treated as unknown"
	}
	return textResult(text), classification, nil
}

// handleMatchSponsors handles the match_sponsors tool invocation
func (s *Server) handleMatchSponsors(ctx context.Context, _ *mcp.CallToolRequest, params MatchSponsorsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "match_sponsors").Info("Tool invoked")

	if res := s.requireQuestion(params.Question); res != nil {
		return res, nil, nil
	}
	if params.Threshold != nil && (*params.Threshold < 0 || *params.Threshold > 1) {
		return s.createErrorResult("Invalid threshold", fmt.Errorf("threshold must be within [0,1], got %v", *params.Threshold)), nil, nil
	}

	if res := s.checkClassification(params.Classification); res != nil {
		return res, nil, nil
	}
	classification := params.Classification
	if classification == nil {
		classification = s.services.Classifier.Classify(ctx, params.Question, nil)
	}

	opts := s.services.MapOptions
	if params.MaxResults > 0 {
		opts.MaxResults = params.MaxResults
	}
	mapping := s.services.Mapper.MapToCompanies(classification, opts)
	enhanced, err := s.services.Scorer.EnhanceWithConfidence(ctx, mapping, params.Question, service.ConfidenceOptions{
		Threshold: params.Threshold,
	})
	if err != nil {
		return s.createErrorResult("Confidence scoring failed", err), nil, nil
	}

	result := MatchSponsorsResult{
		EnhancedMappingResult: enhanced,
		ShowSponsored:         service.ShouldShowAd(enhanced, nil),
	}

	text := "No sponsor matched"
	if enhanced.TopMatch != nil {
		text = fmt.Sprintf("Top sponsor %s (%s) with confidence %.2f; sponsored content shown: %t",
			enhanced.TopMatch.Company.Name, enhanced.TopMatch.TreatmentArea.ID, enhanced.TopMatch.ConfidenceScore, result.ShowSponsored)
	}
	return textResult(text), result, nil
}

// handleSelectExperience handles the select_experience tool invocation
func (s *Server) handleSelectExperience(ctx context.Context, _ *mcp.CallToolRequest, params SelectExperienceParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "select_experience").Info("Tool invoked")

	if res := s.requireQuestion(params.Question); res != nil {
		return res, nil, nil
	}

	selection := s.services.Selector.SelectExperience(ctx, service.ExperienceContext{
		Question:        params.Question,
		EstimatedWaitMs: params.EstimatedWaitMs,
		Device:          params.Device,
		UserAgent:       params.UserAgent,
	})

	text := fmt.Sprintf("Selected %s (score %d)", selection.Selected.Type, selection.Selected.Priority)
	if selection.FallbackType != nil {
		text += fmt.Sprintf(", fallback %s", *selection.FallbackType)
	}
	return textResult(text), selection, nil
}

// handleEstimateTime handles the estimate_time tool invocation. Contextual
// analysis refines the estimate when it succeeds.
func (s *Server) handleEstimateTime(ctx context.Context, _ *mcp.CallToolRequest, params EstimateTimeParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "estimate_time").Info("Tool invoked")

	if res := s.requireQuestion(params.Question); res != nil {
		return res, nil, nil
	}

	if res := s.checkClassification(params.Classification); res != nil {
		return res, nil, nil
	}
	classification := params.Classification
	if classification == nil {
		classification = s.services.Classifier.Classify(ctx, params.Question, nil)
	}

	contextual, err := s.services.Contextual.AnalyzeContextualRelevance(ctx, params.Question, classification)
	if err != nil {
		s.logger.WithError(err).Debug("Contextual analysis unavailable, computing estimate")
		contextual = nil
	}

	estimate := s.services.Estimator.EstimateTime(params.Question, classification, contextual)
	text := fmt.Sprintf("Estimated %.0fs (range %.0f-%.0fs)",
		estimate.InitialEstimate, math.Floor(estimate.MinEstimate), math.Ceil(estimate.MaxEstimate))
	return textResult(text), estimate, nil
}

// handleAnalyzeQuestion handles the analyze_question tool invocation
func (s *Server) handleAnalyzeQuestion(ctx context.Context, _ *mcp.CallToolRequest, params AnalyzeQuestionParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "analyze_question").Info("Tool invoked")

	if res := s.requireQuestion(params.Question); res != nil {
		return res, nil, nil
	}

	analysis, err := s.services.Pipeline.Analyze(ctx, service.AskRequest{
		Question: params.Question,
		History:  params.History,
		Device:   params.Device,
	})
	if err != nil {
		return s.createErrorResult("Analysis failed", err), nil, nil
	}

	text := fmt.Sprintf("Experience %s, content length %s, sponsored content shown: %t",
		analysis.Experience.Selected.Type, analysis.ContentLength, analysis.ShowSponsored)
	return textResult(text), analysis, nil
}

// handleListSponsors handles the list_sponsors tool invocation
func (s *Server) handleListSponsors(_ context.Context, _ *mcp.CallToolRequest, params ListSponsorsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "list_sponsors").Info("Tool invoked")

	companies := s.services.Catalog.Companies()
	if id := strings.TrimSpace(params.Company); id != "" {
		company, ok := s.services.Catalog.Company(id)
		if !ok {
			return s.createErrorResult("Unknown company", fmt.Errorf("%s: no company %q in catalog", domain.ErrInvalidInput, id)), nil, nil
		}
		companies = []domain.Company{company}
	}

	areas := 0
	for _, c := range companies {
		areas += len(c.TreatmentAreas)
	}
	text := fmt.Sprintf("%d companies, %d treatment areas", len(companies), areas)
	return textResult(text), ListSponsorsResult{Companies: companies}, nil
}

func (s *Server) requireQuestion(question string) *mcp.CallToolResult {
	if strings.TrimSpace(question) == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("%s: %w", domain.ErrInvalidInput, domain.ErrEmptyQuestion))
	}
	return nil
}

func (s *Server) checkClassification(classification *domain.Classification) *mcp.CallToolResult {
	if classification == nil {
		return nil
	}
	if err := classification.Validate(); err != nil {
		return s.createErrorResult("Invalid classification", fmt.Errorf("%s: %w", domain.ErrInvalidInput, err))
	}
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}
	s.logger.WithError(err).Warn(message)

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
