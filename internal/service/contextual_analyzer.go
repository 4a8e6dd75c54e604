package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/medqa-sponsor-engine/internal/domain"
	"github.com/medqa-sponsor-engine/pkg/external"
)

// ContextualAnalyzer scores a question along intent, complexity and urgency axes.
// Unlike the classifier it has no safe default: failures are returned to the caller.
type ContextualAnalyzer struct {
	generator external.StructuredGenerator
	validate  *validator.Validate
	logger    *logrus.Logger
}

// NewContextualAnalyzer creates a new contextual relevance analyzer
func NewContextualAnalyzer(generator external.StructuredGenerator, logger *logrus.Logger) *ContextualAnalyzer {
	return &ContextualAnalyzer{
		generator: generator,
		validate:  validator.New(),
		logger:    logger,
	}
}

type rawContextualRelevance struct {
	QuestionIntent         string             `json:"questionIntent" validate:"required"`
	ClinicalContext        string             `json:"clinicalContext" validate:"required"`
	ComplexityLevel        string             `json:"complexityLevel" validate:"required"`
	Specificity            *float64           `json:"specificity" validate:"required,gte=0,lte=100"`
	PracticalityScore      *float64           `json:"practicalityScore" validate:"required,gte=0,lte=100"`
	UrgencyScore           *float64           `json:"urgencyScore" validate:"required,gte=0,lte=100"`
	ContentRelevanceScores map[string]float64 `json:"contentRelevanceScores" validate:"required,dive,gte=0,lte=100"`
	EstimatedResponseTime  *float64           `json:"estimatedResponseTime" validate:"omitempty,gt=0,lte=600"`
	KeyContextualFactors   []string           `json:"keyContextualFactors" validate:"max=20"`
	TargetSpecialties      []string           `json:"targetSpecialties" validate:"max=20"`
}

// AnalyzeContextualRelevance asks the structured-output service for a contextual
// relevance assessment of question. Generator failures and malformed output are
// returned wrapped in ErrContextualAnalysis.
func (a *ContextualAnalyzer) AnalyzeContextualRelevance(ctx context.Context, question string, classification *domain.Classification) (*domain.ContextualRelevanceResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrContextualAnalysis, domain.ErrEmptyQuestion)
	}

	response, err := a.generator.GenerateStructured(ctx, buildContextualPrompt(question, classification))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrContextualAnalysis, err)
	}

	result, err := a.parse(response)
	if err != nil {
		a.logger.WithError(err).Warn("Contextual relevance response rejected")
		return nil, err
	}

	a.logger.WithFields(logrus.Fields{
		"intent":     result.QuestionIntent,
		"context":    result.ClinicalContext,
		"complexity": result.ComplexityLevel,
		"urgency":    result.UrgencyScore,
	}).Debug("Contextual relevance analyzed")

	return result, nil
}

func (a *ContextualAnalyzer) parse(response string) (*domain.ContextualRelevanceResult, error) {
	var raw rawContextualRelevance
	if err := external.DecodeJSON(response, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %v", domain.ErrContextualAnalysis, err)
	}

	if err := a.validate.Struct(&raw); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("%w: invalid field %s (%s)", domain.ErrContextualAnalysis, verrs[0].Namespace(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrContextualAnalysis, err)
	}

	result := &domain.ContextualRelevanceResult{
		QuestionIntent:         domain.QuestionIntent(normalizeID(raw.QuestionIntent)),
		ClinicalContext:        domain.ClinicalContext(normalizeID(raw.ClinicalContext)),
		ComplexityLevel:        domain.ComplexityLevel(normalizeID(raw.ComplexityLevel)),
		Specificity:            *raw.Specificity,
		PracticalityScore:      *raw.PracticalityScore,
		UrgencyScore:           *raw.UrgencyScore,
		ContentRelevanceScores: make(map[domain.ContentFormat]float64, len(domain.AllContentFormats)),
		EstimatedResponseTime:  raw.EstimatedResponseTime,
		KeyContextualFactors:   dedupTrimmed(raw.KeyContextualFactors),
		TargetSpecialties:      dedupTrimmed(raw.TargetSpecialties),
	}

	if !result.QuestionIntent.IsValid() {
		return nil, fmt.Errorf("%w: unknown question intent %q", domain.ErrContextualAnalysis, raw.QuestionIntent)
	}
	if !result.ClinicalContext.IsValid() {
		return nil, fmt.Errorf("%w: unknown clinical context %q", domain.ErrContextualAnalysis, raw.ClinicalContext)
	}
	if !result.ComplexityLevel.IsValid() {
		return nil, fmt.Errorf("%w: unknown complexity level %q", domain.ErrContextualAnalysis, raw.ComplexityLevel)
	}

	for key, score := range raw.ContentRelevanceScores {
		format := domain.ContentFormat(normalizeID(key))
		if !format.IsValid() {
			return nil, fmt.Errorf("%w: unknown content format %q", domain.ErrContextualAnalysis, key)
		}
		result.ContentRelevanceScores[format] = score
	}
	for _, format := range domain.AllContentFormats {
		if _, ok := result.ContentRelevanceScores[format]; !ok {
			return nil, fmt.Errorf("%w: missing relevance score for %s", domain.ErrContextualAnalysis, format)
		}
	}

	return result, nil
}

func buildContextualPrompt(question string, classification *domain.Classification) string {
	var b strings.Builder
	b.WriteString("Assess the clinical context of the following medical question.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", question)
	if classification.IsUsable() {
		fmt.Fprintf(&b, "Classified as: %s / %s\n", classification.PrimaryCategory.Name, classification.Subcategory.Name)
		if len(classification.Keywords) > 0 {
			fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(classification.Keywords, ", "))
		}
	}

	b.WriteString("\nquestionIntent must be one of: ")
	b.WriteString(joinValues(domain.AllQuestionIntents))
	b.WriteString("\nclinicalContext must be one of: ")
	b.WriteString(joinValues(domain.AllClinicalContexts))
	b.WriteString("\ncomplexityLevel must be one of: ")
	b.WriteString(joinValues(domain.AllComplexityLevels))
	b.WriteString("\ncontentRelevanceScores must score every one of these formats from 0 to 100: ")
	b.WriteString(joinValues(domain.AllContentFormats))

	b.WriteString(`

Respond with JSON only, in exactly this shape:
{
  "questionIntent": "<intent>",
  "clinicalContext": "<context>",
  "complexityLevel": "<level>",
  "specificity": <0..100>,
  "practicalityScore": <0..100>,
  "urgencyScore": <0..100>,
  "contentRelevanceScores": {"<format>": <0..100>},
  "estimatedResponseTime": <seconds a thorough answer takes to generate>,
  "keyContextualFactors": ["<short phrases>"],
  "targetSpecialties": ["<medical specialties>"]
}`)
	return b.String()
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
