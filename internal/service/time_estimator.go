package service

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/medqa-sponsor-engine/internal/domain"
)

// BaseTime is the floor of every response time estimate, in seconds.
const BaseTime = 2.0

const (
	maxLengthContribution     = 40.0
	questionMarkPoints        = 5.0
	complexityIndicatorPoints = 3.0
	maxUncertaintyPoints      = 20.0
	complexSpecialtyPoints    = 15.0

	defaultSpecialtyFactor = 1.3
	defaultModelFactor     = 1.4
)

var complexityIndicators = []string{
	"mechanism", "compare", "comparison", "versus", "interaction", "contraindication",
	"pathophysiology", "differential", "prognosis", "guideline", "evidence", "trial",
	"resistance", "combination",
}

// ModelName identifies the answer model whose speed scales the estimate.
type ModelName string

const (
	ModelGemini20Flash     ModelName = "gemini-2.0-flash"
	ModelGemini20FlashLite ModelName = "gemini-2.0-flash-lite"
	ModelGemini15Flash     ModelName = "gemini-1.5-flash"
	ModelGemini15Pro       ModelName = "gemini-1.5-pro"
	ModelGPT4o             ModelName = "gpt-4o"
	ModelGPT4oMini         ModelName = "gpt-4o-mini"
	ModelGPT4Turbo         ModelName = "gpt-4-turbo"
)

// Factor returns the relative latency of the model.
func (m ModelName) Factor() float64 {
	switch m {
	case ModelGemini20FlashLite:
		return 0.9
	case ModelGemini20Flash:
		return 1.0
	case ModelGemini15Flash:
		return 1.1
	case ModelGPT4oMini:
		return 1.2
	case ModelGPT4o:
		return 1.5
	case ModelGemini15Pro:
		return 1.6
	case ModelGPT4Turbo:
		return 1.8
	default:
		return defaultModelFactor
	}
}

// specialtyFactor returns the answer difficulty of a primary category.
func specialtyFactor(categoryID string) float64 {
	switch categoryID {
	case "oncology":
		return 1.8
	case "neurology":
		return 1.7
	case "cardiology", "rheumatology":
		return 1.5
	case "endocrinology", "infectious_disease", "psychiatry":
		return 1.4
	case "gastroenterology", "pulmonology":
		return 1.3
	case "dermatology":
		return 1.2
	default:
		return defaultSpecialtyFactor
	}
}

func isComplexSpecialty(categoryID string) bool {
	switch categoryID {
	case "oncology", "neurology", "cardiology", "rheumatology":
		return true
	default:
		return false
	}
}

// TimeEstimator predicts how long a full answer takes to stream.
type TimeEstimator struct {
	model  ModelName
	logger *logrus.Logger
}

// NewTimeEstimator creates a new time estimator for the given answer model
func NewTimeEstimator(model string, logger *logrus.Logger) *TimeEstimator {
	return &TimeEstimator{model: ModelName(strings.ToLower(strings.TrimSpace(model))), logger: logger}
}

// EstimateTime estimates the response time of question in seconds. A contextual
// estimate, when present, is used directly; otherwise it is computed from the
// question and classification. Both may be nil.
func (e *TimeEstimator) EstimateTime(question string, classification *domain.Classification, contextual *domain.ContextualRelevanceResult) *domain.TimeEstimationResult {
	var result *domain.TimeEstimationResult
	if contextual != nil && contextual.EstimatedResponseTime != nil {
		result = e.fromContextual(contextual)
	} else {
		result = e.compute(question, classification)
	}

	e.logger.WithFields(logrus.Fields{
		"initial":    result.InitialEstimate,
		"min":        result.MinEstimate,
		"max":        result.MaxEstimate,
		"complexity": result.ComplexityScore,
		"source":     result.DetailedFactors["source"],
	}).Debug("Estimated response time")

	return result
}

func (e *TimeEstimator) fromContextual(contextual *domain.ContextualRelevanceResult) *domain.TimeEstimationResult {
	initial := math.Max(BaseTime, *contextual.EstimatedResponseTime)
	rank := contextual.ComplexityLevel.Rank()

	confidence := 0.5 + 0.4*contextual.Specificity/100 - 0.05*float64(max(rank-1, 0))

	return &domain.TimeEstimationResult{
		InitialEstimate: initial,
		MinEstimate:     0.8 * initial,
		MaxEstimate:     1.3 * initial,
		ConfidenceLevel: domain.Clamp01(confidence),
		ComplexityScore: float64(rank) * 25,
		DetailedFactors: map[string]any{
			"source":      "contextual",
			"specificity": contextual.Specificity,
			"complexity":  string(contextual.ComplexityLevel),
		},
	}
}

func (e *TimeEstimator) compute(question string, classification *domain.Classification) *domain.TimeEstimationResult {
	length := float64(utf8.RuneCountInString(question))
	tokens := tokenize(question)

	lengthScore := math.Min(length/5, maxLengthContribution)
	questionMarks := strings.Count(question, "?")
	indicators := countIndicators(tokens, complexityIndicators)

	categoryID := ""
	classificationConfidence := 0.0
	if classification.IsUsable() {
		categoryID = classification.PrimaryCategory.ID
		classificationConfidence = classification.PrimaryCategory.Confidence
	}
	uncertainty := (1 - classificationConfidence) * maxUncertaintyPoints

	complexity := lengthScore +
		float64(questionMarks)*questionMarkPoints +
		float64(indicators)*complexityIndicatorPoints +
		uncertainty
	if isComplexSpecialty(categoryID) {
		complexity += complexSpecialtyPoints
	}
	complexity = domain.Clamp100(complexity)

	specialty := specialtyFactor(categoryID)
	model := e.model.Factor()

	initial := BaseTime + (length*0.02+complexity*0.05)*specialty*1.2*model
	initial = math.Max(BaseTime, math.Round(initial))

	return &domain.TimeEstimationResult{
		InitialEstimate: initial,
		MinEstimate:     math.Max(0.7*initial, BaseTime),
		MaxEstimate:     1.5 * initial,
		ConfidenceLevel: domain.Clamp01(0.4 + 0.4*classificationConfidence),
		ComplexityScore: complexity,
		DetailedFactors: map[string]any{
			"source":          "computed",
			"questionLength":  int(length),
			"lengthScore":     lengthScore,
			"questionMarks":   questionMarks,
			"indicatorCount":  indicators,
			"uncertainty":     uncertainty,
			"specialty":       categoryID,
			"specialtyFactor": specialty,
			"model":           string(e.model),
			"modelFactor":     model,
		},
	}
}
