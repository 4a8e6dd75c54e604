package service

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/medqa-sponsor-engine/internal/domain"
)

// Wait-time gates and transition timing of the interactive experiences.
const (
	microsimulationMinWaitMs = 8000
	microsimulationMaxWaitMs = 60000
	knowledgeGraphMinWaitMs  = 5000
	knowledgeGraphMaxWaitMs  = 45000
	evidenceCardMinWaitMs    = 3000
	evidenceCardMaxWaitMs    = 30000

	TransitionDurationMs = 300

	belowMinWaitPenalty    = 3
	aboveMaxWaitPenalty    = 2
	lowPerformancePenalty  = 2
	mobileKnowledgePenalty = 1

	highPerformanceMemoryGB = 4
	highPerformanceCores    = 4
)

var (
	treatmentTerms = []string{"treatment", "therapy", "therapies", "medication", "drug", "dosing", "dosage", "management"}
	mechanismTerms = []string{"mechanism", "pathophysiology", "pathway", "relationship", "interaction", "physiology"}
	diagnosisTerms = []string{"diagnosis", "diagnostic", "symptom", "evidence", "screening"}

	mobileUserAgent = regexp.MustCompile(`(?i)android|webos|iphone|ipad|ipod|blackberry|iemobile|opera mini|mobile`)
)

// ExperienceContext carries what is already known about a request. Nil fields are
// resolved by the selector.
type ExperienceContext struct {
	Question string
	History  []domain.Message

	Classification *domain.Classification
	Contextual     *domain.ContextualRelevanceResult
	// ContextualErr is a contextual analysis failure the caller already observed.
	ContextualErr error

	EstimatedWaitMs *int64
	Device          *domain.DeviceCapabilities
	UserAgent       string
}

// ExperienceSelector picks the interactive experience rendered while an answer streams.
type ExperienceSelector struct {
	classifier Classifier
	contextual ContextualAnalysis
	estimator  *TimeEstimator
	logger     *logrus.Logger
}

// NewExperienceSelector creates a new experience selector
func NewExperienceSelector(classifier Classifier, contextual ContextualAnalysis, estimator *TimeEstimator, logger *logrus.Logger) *ExperienceSelector {
	return &ExperienceSelector{
		classifier: classifier,
		contextual: contextual,
		estimator:  estimator,
		logger:     logger,
	}
}

// SelectExperience scores the candidate experiences for ec and returns the winner.
// Classification and contextual analysis failures select STANDARD.
func (s *ExperienceSelector) SelectExperience(ctx context.Context, ec ExperienceContext) *domain.ExperienceSelection {
	classification := ec.Classification
	if classification == nil {
		classification = s.classifier.Classify(ctx, ec.Question, ec.History)
	}
	if !classification.IsUsable() {
		return s.standardSelection("classification unavailable, using STANDARD")
	}

	contextual := ec.Contextual
	if ec.ContextualErr != nil {
		s.logger.WithError(ec.ContextualErr).Warn("Contextual analysis failed, selecting STANDARD experience")
		return s.standardSelection(fmt.Sprintf("contextual analysis failed (%v), using STANDARD", ec.ContextualErr))
	}
	if contextual == nil {
		var err error
		contextual, err = s.contextual.AnalyzeContextualRelevance(ctx, ec.Question, classification)
		if err != nil {
			s.logger.WithError(err).Warn("Contextual analysis failed, selecting STANDARD experience")
			return s.standardSelection(fmt.Sprintf("contextual analysis failed (%v), using STANDARD", err))
		}
	}

	var waitMs int64
	if ec.EstimatedWaitMs != nil {
		waitMs = *ec.EstimatedWaitMs
	} else {
		estimate := s.estimator.EstimateTime(ec.Question, classification, contextual)
		waitMs = int64(math.Round(estimate.InitialEstimate * 1000))
	}

	device := domain.DeviceCapabilities{}
	if ec.Device != nil {
		device = *ec.Device
	} else if ec.UserAgent != "" {
		device = DetectDeviceCapabilities(ec.UserAgent, 0, 0)
	}

	reasoning := []string{
		fmt.Sprintf("intent %s, complexity %s", contextual.QuestionIntent, contextual.ComplexityLevel),
		fmt.Sprintf("estimated wait %dms", waitMs),
		fmt.Sprintf("device mobile=%t highPerformance=%t", device.IsMobile, device.IsHighPerformance),
	}

	candidates := generateCandidates(classification.CategoryText(), device)
	scored := make([]domain.ScoredExperience, 0, len(candidates))
	for _, candidate := range candidates {
		score, notes := scoreCandidate(candidate, waitMs, device)
		reasoning = append(reasoning, notes...)
		scored = append(scored, domain.ScoredExperience{Config: candidate, Score: score})
	}

	best, second := -1, -1
	for i, c := range scored {
		switch {
		case best < 0 || c.Score > scored[best].Score:
			second = best
			best = i
		case second < 0 || c.Score > scored[second].Score:
			second = i
		}
	}

	selection := &domain.ExperienceSelection{
		Reasoning:  reasoning,
		Candidates: scored,
	}
	if best < 0 || scored[best].Score <= 0 {
		selection.Selected = experienceConfig(domain.STANDARD, device)
		selection.Reasoning = append(selection.Reasoning, "no candidate scored above zero, using STANDARD")
		return selection
	}

	selection.Selected = scored[best].Config
	selection.Selected.Priority = scored[best].Score
	selection.Reasoning = append(selection.Reasoning,
		fmt.Sprintf("selected %s with score %d", selection.Selected.Type, scored[best].Score))
	if second >= 0 {
		fallback := scored[second].Config.Type
		selection.FallbackType = &fallback
		selection.Reasoning = append(selection.Reasoning,
			fmt.Sprintf("fallback %s with score %d", fallback, scored[second].Score))
	}

	s.logger.WithFields(logrus.Fields{
		"selected":   selection.Selected.Type,
		"score":      selection.Selected.Priority,
		"candidates": len(scored),
		"wait_ms":    waitMs,
	}).Debug("Experience selected")

	return selection
}

// TransitionToExperience returns the configuration for next, recording current as
// the previous type for the transition animation. An invalid next becomes STANDARD.
func (s *ExperienceSelector) TransitionToExperience(current, next domain.ExperienceType, ec ExperienceContext) domain.ExperienceConfig {
	if !next.IsValid() {
		s.logger.WithField("requested", next).Warn("Invalid experience transition target, using STANDARD")
		next = domain.STANDARD
	}

	device := domain.DeviceCapabilities{}
	if ec.Device != nil {
		device = *ec.Device
	} else if ec.UserAgent != "" {
		device = DetectDeviceCapabilities(ec.UserAgent, 0, 0)
	}

	config := experienceConfig(next, device)
	config.Settings["previousType"] = string(current)
	config.Settings["transitionDurationMs"] = TransitionDurationMs
	return config
}

// DetectDeviceCapabilities derives device flags from a User-Agent and optional
// client hints. Without hints a device is never considered high-performance.
func DetectDeviceCapabilities(userAgent string, memoryGB float64, cores int) domain.DeviceCapabilities {
	return domain.DeviceCapabilities{
		IsMobile:          mobileUserAgent.MatchString(userAgent),
		IsHighPerformance: memoryGB > highPerformanceMemoryGB || cores > highPerformanceCores,
		DeviceMemoryGB:    memoryGB,
		LogicalCores:      cores,
	}
}

func (s *ExperienceSelector) standardSelection(reason string) *domain.ExperienceSelection {
	config := experienceConfig(domain.STANDARD, domain.DeviceCapabilities{})
	return &domain.ExperienceSelection{
		Selected:   config,
		Reasoning:  []string{reason},
		Candidates: []domain.ScoredExperience{{Config: config, Score: config.Priority}},
	}
}

// generateCandidates lists the offered experiences in generation order.
func generateCandidates(categoryText string, device domain.DeviceCapabilities) []domain.ExperienceConfig {
	var candidates []domain.ExperienceConfig
	if mentionsAny(categoryText, treatmentTerms) {
		candidates = append(candidates, experienceConfig(domain.MICROSIMULATION, device))
	}
	if mentionsAny(categoryText, mechanismTerms) {
		candidates = append(candidates, experienceConfig(domain.KNOWLEDGE_GRAPH, device))
	}
	if mentionsAny(categoryText, diagnosisTerms) {
		candidates = append(candidates, experienceConfig(domain.EVIDENCE_CARD, device))
	}
	return append(candidates, experienceConfig(domain.STANDARD, device))
}

func scoreCandidate(candidate domain.ExperienceConfig, waitMs int64, device domain.DeviceCapabilities) (int, []string) {
	name := candidate.Type
	score := candidate.Priority
	notes := []string{fmt.Sprintf("%s: base priority %d", name, score)}

	if candidate.MinWaitTimeMs != nil && waitMs < *candidate.MinWaitTimeMs {
		score -= belowMinWaitPenalty
		notes = append(notes, fmt.Sprintf("%s: wait %dms below minimum %dms (-%d)", name, waitMs, *candidate.MinWaitTimeMs, belowMinWaitPenalty))
	}
	if candidate.MaxWaitTimeMs != nil && waitMs > *candidate.MaxWaitTimeMs {
		score -= aboveMaxWaitPenalty
		notes = append(notes, fmt.Sprintf("%s: wait %dms above maximum %dms (-%d)", name, waitMs, *candidate.MaxWaitTimeMs, aboveMaxWaitPenalty))
	}
	if !device.IsHighPerformance && name.IsInteractive() {
		score -= lowPerformancePenalty
		notes = append(notes, fmt.Sprintf("%s: device not high-performance (-%d)", name, lowPerformancePenalty))
	}
	if device.IsMobile && name == domain.KNOWLEDGE_GRAPH {
		score -= mobileKnowledgePenalty
		notes = append(notes, fmt.Sprintf("%s: mobile device (-%d)", name, mobileKnowledgePenalty))
	}

	notes = append(notes, fmt.Sprintf("%s: final score %d", name, score))
	return score, notes
}

// experienceConfig builds the default configuration of an experience type.
func experienceConfig(t domain.ExperienceType, device domain.DeviceCapabilities) domain.ExperienceConfig {
	config := domain.ExperienceConfig{
		Type:     t,
		Priority: t.BasePriority(),
		Settings: map[string]any{},
	}
	switch t {
	case domain.MICROSIMULATION:
		config.MinWaitTimeMs = int64Ptr(microsimulationMinWaitMs)
		config.MaxWaitTimeMs = int64Ptr(microsimulationMaxWaitMs)
		config.Settings["animationSpeed"] = "normal"
		config.Settings["reducedMotion"] = device.IsMobile
		config.Settings["interactive"] = true
	case domain.KNOWLEDGE_GRAPH:
		config.MinWaitTimeMs = int64Ptr(knowledgeGraphMinWaitMs)
		config.MaxWaitTimeMs = int64Ptr(knowledgeGraphMaxWaitMs)
		config.Settings["layout"] = "force"
		maxNodes := 50
		if device.IsMobile {
			maxNodes = 25
		}
		config.Settings["maxNodes"] = maxNodes
	case domain.EVIDENCE_CARD:
		config.MinWaitTimeMs = int64Ptr(evidenceCardMinWaitMs)
		config.MaxWaitTimeMs = int64Ptr(evidenceCardMaxWaitMs)
		config.Settings["maxCards"] = 3
		config.Settings["autoAdvance"] = true
	case domain.STANDARD:
		config.Settings["showProgress"] = true
	default:
		config.Type = domain.STANDARD
		config.Priority = domain.STANDARD.BasePriority()
		config.Settings["showProgress"] = true
	}
	return config
}

func mentionsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func int64Ptr(v int64) *int64 {
	return &v
}
