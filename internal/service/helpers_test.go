package service

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medqa-sponsor-engine/internal/catalog"
	"github.com/medqa-sponsor-engine/internal/domain"
	"github.com/medqa-sponsor-engine/pkg/external"
)

const (
	scenarioAQuestion = "What are the latest treatment options for HER2+ metastatic breast cancer?"
	scenarioBQuestion = "What are common side effects?"

	scenarioAClassificationJSON = `{
  "primaryCategory": {"id": "oncology", "name": "Oncology", "confidence": 0.9},
  "subcategory": {"id": "breast_cancer", "name": "Breast Cancer", "confidence": 0.85},
  "keywords": ["breast_cancer", "trastuzumab", "HER2"],
  "relevantMedications": ["trastuzumab"],
  "categories": ["treatment"]
}`

	validContextualJSON = `{
  "questionIntent": "treatment_options",
  "clinicalContext": "chronic_management",
  "complexityLevel": "intermediate",
  "specificity": 72,
  "practicalityScore": 65,
  "urgencyScore": 30,
  "contentRelevanceScores": {
    "text_summary": 60, "knowledge_graph": 55, "microsimulation": 70, "evidence_card": 65,
    "clinical_trial": 80, "decision_tree": 60, "comparison_table": 50, "patient_education": 40
  },
  "estimatedResponseTime": 12,
  "keyContextualFactors": ["HER2 status", "metastatic disease"],
  "targetSpecialties": ["oncology"]
}`
)

type mockGenerator struct{ mock.Mock }

func (m *mockGenerator) GenerateStructured(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type mockEmbedder struct{ mock.Mock }

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	vector, _ := args.Get(0).([]float32)
	return vector, args.Error(1)
}

type mockClassifier struct{ mock.Mock }

func (m *mockClassifier) Classify(ctx context.Context, question string, history []domain.Message) *domain.Classification {
	args := m.Called(ctx, question, history)
	return args.Get(0).(*domain.Classification)
}

type mockContextual struct{ mock.Mock }

func (m *mockContextual) AnalyzeContextualRelevance(ctx context.Context, question string, classification *domain.Classification) (*domain.ContextualRelevanceResult, error) {
	args := m.Called(ctx, question, classification)
	result, _ := args.Get(0).(*domain.ContextualRelevanceResult)
	return result, args.Error(1)
}

type fakeStreamer struct {
	chunks []string
	delay  time.Duration
	err    error
}

func (f fakeStreamer) StreamAnswer(ctx context.Context, _ string, _ []domain.Message, emit func(string) error) error {
	for _, chunk := range f.chunks {
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return f.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	return c
}

func scenarioAClassification() *domain.Classification {
	return &domain.Classification{
		PrimaryCategory:     domain.CategoryRef{ID: "oncology", Name: "Oncology", Confidence: 0.9},
		Subcategory:         domain.CategoryRef{ID: "breast_cancer", Name: "Breast Cancer", Confidence: 0.85},
		Keywords:            []string{"breast_cancer", "trastuzumab", "HER2"},
		RelevantMedications: []string{"trastuzumab"},
		Categories:          []string{"treatment"},
	}
}

func scenarioBClassification() *domain.Classification {
	return &domain.Classification{
		PrimaryCategory: domain.CategoryRef{ID: "general_medicine", Name: "General Medicine", Confidence: 0.45},
		Subcategory:     domain.CategoryRef{ID: "adverse_effects", Name: "Adverse Effects", Confidence: 0.45},
		Keywords:        []string{"side effects"},
	}
}

func contextualResult(intent domain.QuestionIntent, complexity domain.ComplexityLevel) *domain.ContextualRelevanceResult {
	scores := make(map[domain.ContentFormat]float64, len(domain.AllContentFormats))
	for _, f := range domain.AllContentFormats {
		scores[f] = 50
	}
	return &domain.ContextualRelevanceResult{
		QuestionIntent:         intent,
		ClinicalContext:        domain.ContextChronicManagement,
		ComplexityLevel:        complexity,
		Specificity:            60,
		PracticalityScore:      60,
		UrgencyScore:           20,
		ContentRelevanceScores: scores,
	}
}

func noopScorer() *ConfidenceScorer {
	return NewConfidenceScorer(external.NoopEmbedder{}, domain.ConfidenceConfig{
		Threshold:               DefaultConfidenceThreshold,
		SemanticAnalysisEnabled: true,
	}, testLogger())
}

func float64Ptr(v float64) *float64 {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}
