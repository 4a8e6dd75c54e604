package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medqa-sponsor-engine/internal/domain"
)

func classificationWithCategories(categories ...string) *domain.Classification {
	return &domain.Classification{
		PrimaryCategory: domain.CategoryRef{ID: "oncology", Name: "Oncology", Confidence: 0.9},
		Subcategory:     domain.CategoryRef{ID: "breast_cancer", Name: "Breast Cancer", Confidence: 0.8},
		Categories:      categories,
	}
}

func int64Value(v int64) *int64 {
	return &v
}

func newTestSelector() (*ExperienceSelector, *mockClassifier, *mockContextual) {
	classifier := &mockClassifier{}
	contextual := &mockContextual{}
	selector := NewExperienceSelector(classifier, contextual, NewTimeEstimator("", testLogger()), testLogger())
	return selector, classifier, contextual
}

func TestExperienceSelector_Scoring(t *testing.T) {
	highPerf := &domain.DeviceCapabilities{IsHighPerformance: true}
	lowPerf := &domain.DeviceCapabilities{}
	mobile := &domain.DeviceCapabilities{IsMobile: true}

	tests := []struct {
		name         string
		categories   []string
		waitMs       int64
		device       *domain.DeviceCapabilities
		wantType     domain.ExperienceType
		wantScore    int
		wantFallback domain.ExperienceType
	}{
		{
			name:         "treatment question on capable device",
			categories:   []string{"treatment"},
			waitMs:       20000,
			device:       highPerf,
			wantType:     domain.MICROSIMULATION,
			wantScore:    8,
			wantFallback: domain.STANDARD,
		},
		{
			name:         "treatment question on low-end device",
			categories:   []string{"treatment"},
			waitMs:       20000,
			device:       lowPerf,
			wantType:     domain.MICROSIMULATION,
			wantScore:    6,
			wantFallback: domain.STANDARD,
		},
		{
			name:         "short wait demotes microsimulation",
			categories:   []string{"treatment"},
			waitMs:       2000,
			device:       lowPerf,
			wantType:     domain.STANDARD,
			wantScore:    5,
			wantFallback: domain.MICROSIMULATION,
		},
		{
			name:         "mechanism beats treatment on capable device",
			categories:   []string{"treatment", "mechanism"},
			waitMs:       10000,
			device:       highPerf,
			wantType:     domain.KNOWLEDGE_GRAPH,
			wantScore:    9,
			wantFallback: domain.MICROSIMULATION,
		},
		{
			name:         "mobile tie resolved by generation order",
			categories:   []string{"treatment", "mechanism"},
			waitMs:       10000,
			device:       mobile,
			wantType:     domain.MICROSIMULATION,
			wantScore:    6,
			wantFallback: domain.KNOWLEDGE_GRAPH,
		},
		{
			name:         "short wait demotes evidence card",
			categories:   []string{"diagnosis"},
			waitMs:       2000,
			device:       lowPerf,
			wantType:     domain.STANDARD,
			wantScore:    5,
			wantFallback: domain.EVIDENCE_CARD,
		},
		{
			name:         "diagnosis question",
			categories:   []string{"diagnosis", "symptoms"},
			waitMs:       6000,
			device:       lowPerf,
			wantType:     domain.EVIDENCE_CARD,
			wantScore:    7,
			wantFallback: domain.STANDARD,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selector, classifier, contextual := newTestSelector()

			selection := selector.SelectExperience(t.Context(), ExperienceContext{
				Question:        "question",
				Classification:  classificationWithCategories(tt.categories...),
				Contextual:      contextualResult(domain.IntentTreatmentOptions, domain.ComplexityIntermediate),
				EstimatedWaitMs: int64Value(tt.waitMs),
				Device:          tt.device,
			})

			require.NotNil(t, selection)
			assert.Equal(t, tt.wantType, selection.Selected.Type)
			assert.Equal(t, tt.wantScore, selection.Selected.Priority)
			require.NotNil(t, selection.FallbackType)
			assert.Equal(t, tt.wantFallback, *selection.FallbackType)
			assert.NotEmpty(t, selection.Reasoning)
			assert.Equal(t, domain.STANDARD, selection.Candidates[len(selection.Candidates)-1].Config.Type)

			classifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything, mock.Anything)
			contextual.AssertNotCalled(t, "AnalyzeContextualRelevance", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestExperienceSelector_ReasoningTrace(t *testing.T) {
	selector, _, _ := newTestSelector()

	selection := selector.SelectExperience(t.Context(), ExperienceContext{
		Classification:  classificationWithCategories("treatment", "mechanism"),
		Contextual:      contextualResult(domain.IntentMechanismOfAction, domain.ComplexityAdvanced),
		EstimatedWaitMs: int64Value(3000),
		Device:          &domain.DeviceCapabilities{IsMobile: true},
	})

	trace := strings.Join(selection.Reasoning, "\n")
	assert.Contains(t, trace, "MICROSIMULATION: base priority 8")
	assert.Contains(t, trace, "MICROSIMULATION: wait 3000ms below minimum 8000ms (-3)")
	assert.Contains(t, trace, "KNOWLEDGE_GRAPH: wait 3000ms below minimum 5000ms (-3)")
	assert.Contains(t, trace, "KNOWLEDGE_GRAPH: device not high-performance (-2)")
	assert.Contains(t, trace, "KNOWLEDGE_GRAPH: mobile device (-1)")
	assert.Contains(t, trace, "selected STANDARD with score 5")
	assert.Equal(t, domain.STANDARD, selection.Selected.Type)
}

func TestExperienceSelector_NoTriggerTermsSelectsStandard(t *testing.T) {
	selector, _, _ := newTestSelector()
	classification := &domain.Classification{
		PrimaryCategory: domain.CategoryRef{ID: "dermatology", Name: "Dermatology", Confidence: 0.9},
		Subcategory:     domain.CategoryRef{ID: "acne", Name: "Acne", Confidence: 0.9},
		Categories:      []string{"general", "lifestyle"},
	}

	selection := selector.SelectExperience(t.Context(), ExperienceContext{
		Classification:  classification,
		Contextual:      contextualResult(domain.IntentGeneralInformation, domain.ComplexityBasic),
		EstimatedWaitMs: int64Value(20000),
		Device:          &domain.DeviceCapabilities{IsHighPerformance: true},
	})

	assert.Equal(t, domain.STANDARD, selection.Selected.Type)
	assert.Equal(t, 5, selection.Selected.Priority)
	assert.Nil(t, selection.FallbackType)
	require.Len(t, selection.Candidates, 1)
}

func TestExperienceSelector_FallsBackToStandard(t *testing.T) {
	t.Run("degraded classification", func(t *testing.T) {
		selector, _, contextual := newTestSelector()

		selection := selector.SelectExperience(t.Context(), ExperienceContext{
			Question:       "question",
			Classification: domain.UnknownClassification(),
		})

		assert.Equal(t, domain.STANDARD, selection.Selected.Type)
		assert.Equal(t, 5, selection.Selected.Priority)
		contextual.AssertNotCalled(t, "AnalyzeContextualRelevance", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("contextual failure observed by caller", func(t *testing.T) {
		selector, _, contextual := newTestSelector()

		selection := selector.SelectExperience(t.Context(), ExperienceContext{
			Question:       "question",
			Classification: classificationWithCategories("treatment"),
			ContextualErr:  domain.ErrContextualAnalysis,
			Device:         &domain.DeviceCapabilities{IsHighPerformance: true},
		})

		assert.Equal(t, domain.STANDARD, selection.Selected.Type)
		assert.Contains(t, selection.Reasoning[0], "contextual analysis failed")
		contextual.AssertNotCalled(t, "AnalyzeContextualRelevance", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("contextual failure during selection", func(t *testing.T) {
		selector, _, contextual := newTestSelector()
		contextual.On("AnalyzeContextualRelevance", mock.Anything, "question", mock.Anything).
			Return(nil, errors.New("malformed"))

		selection := selector.SelectExperience(t.Context(), ExperienceContext{
			Question:       "question",
			Classification: classificationWithCategories("treatment"),
			Device:         &domain.DeviceCapabilities{IsHighPerformance: true},
		})

		assert.Equal(t, domain.STANDARD, selection.Selected.Type)
		contextual.AssertExpectations(t)
	})
}

func TestExperienceSelector_ResolvesMissingInputs(t *testing.T) {
	selector, classifier, contextual := newTestSelector()
	classification := classificationWithCategories("treatment")
	analysis := contextualResult(domain.IntentTreatmentOptions, domain.ComplexityAdvanced)
	analysis.EstimatedResponseTime = float64Ptr(20)

	classifier.On("Classify", mock.Anything, "question", mock.Anything).Return(classification)
	contextual.On("AnalyzeContextualRelevance", mock.Anything, "question", classification).Return(analysis, nil)

	selection := selector.SelectExperience(t.Context(), ExperienceContext{
		Question: "question",
		Device:   &domain.DeviceCapabilities{IsHighPerformance: true},
	})

	assert.Equal(t, domain.MICROSIMULATION, selection.Selected.Type)
	assert.Contains(t, selection.Reasoning, "estimated wait 20000ms")
	classifier.AssertExpectations(t)
	contextual.AssertExpectations(t)
}

func TestExperienceSelector_DetectsDeviceFromUserAgent(t *testing.T) {
	selector, _, _ := newTestSelector()

	selection := selector.SelectExperience(t.Context(), ExperienceContext{
		Classification:  classificationWithCategories("mechanism"),
		Contextual:      contextualResult(domain.IntentMechanismOfAction, domain.ComplexityAdvanced),
		EstimatedWaitMs: int64Value(10000),
		UserAgent:       "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148",
	})

	// KNOWLEDGE_GRAPH: 9 - 2 (not high-performance) - 1 (mobile) = 6
	assert.Equal(t, domain.KNOWLEDGE_GRAPH, selection.Selected.Type)
	assert.Equal(t, 6, selection.Selected.Priority)
	assert.Equal(t, 25, selection.Selected.Settings["maxNodes"])
}

func TestExperienceSelector_TransitionToExperience(t *testing.T) {
	selector, _, _ := newTestSelector()

	config := selector.TransitionToExperience(domain.STANDARD, domain.KNOWLEDGE_GRAPH, ExperienceContext{})

	assert.Equal(t, domain.KNOWLEDGE_GRAPH, config.Type)
	assert.Equal(t, 9, config.Priority)
	assert.Equal(t, "STANDARD", config.Settings["previousType"])
	assert.Equal(t, 300, config.Settings["transitionDurationMs"])
	require.NotNil(t, config.MinWaitTimeMs)
	assert.Equal(t, int64(5000), *config.MinWaitTimeMs)

	invalid := selector.TransitionToExperience(domain.MICROSIMULATION, domain.ExperienceType("HOLOGRAM"), ExperienceContext{})
	assert.Equal(t, domain.STANDARD, invalid.Type)
	assert.Equal(t, "MICROSIMULATION", invalid.Settings["previousType"])
}

func TestDetectDeviceCapabilities(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		memoryGB  float64
		cores     int
		mobile    bool
		highPerf  bool
	}{
		{"desktop without hints", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)", 0, 0, false, false},
		{"desktop with memory", "Mozilla/5.0 (X11; Linux x86_64)", 8, 0, false, true},
		{"desktop with cores", "Mozilla/5.0 (Macintosh)", 4, 8, false, true},
		{"android phone", "Mozilla/5.0 (Linux; Android 14; Pixel 8)", 4, 4, true, false},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)", 0, 0, true, false},
		{"server side", "", 0, 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectDeviceCapabilities(tt.userAgent, tt.memoryGB, tt.cores)
			assert.Equal(t, tt.mobile, got.IsMobile)
			assert.Equal(t, tt.highPerf, got.IsHighPerformance)
		})
	}
}
