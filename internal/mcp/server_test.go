package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medqa-sponsor-engine/internal/config"
	"github.com/medqa-sponsor-engine/internal/domain"
	"github.com/medqa-sponsor-engine/internal/service"
	"github.com/medqa-sponsor-engine/pkg/external"
)

const (
	question = "What are the latest treatment options for HER2+ metastatic breast cancer?"

	classificationJSON = `{
  "primaryCategory": {"id": "oncology", "name": "Oncology", "confidence": 0.9},
  "subcategory": {"id": "breast_cancer", "name": "Breast Cancer", "confidence": 0.85},
  "keywords": ["breast_cancer", "trastuzumab", "HER2"],
  "relevantMedications": ["trastuzumab"],
  "categories": ["treatment"]
}`
)

type stubGenerator struct {
	response string
	err      error
	calls    int
}

func (s *stubGenerator) GenerateStructured(context.Context, string) (string, error) {
	s.calls++
	return s.response, s.err
}

func newTestServer(t *testing.T) (*Server, *stubGenerator) {
	t.Helper()
	manager, err := config.NewManager()
	require.NoError(t, err)
	manager.GetConfig().Confidence.SemanticAnalysisEnabled = false

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	classifier := &stubGenerator{response: classificationJSON}
	services, err := service.NewServices(manager.GetConfig(), &service.Clients{
		Classification: classifier,
		Contextual:     &stubGenerator{err: errors.New("contextual model unavailable")},
		Embedder:       external.NoopEmbedder{},
		Streamer:       external.Unavailable{},
	}, logger)
	require.NoError(t, err)

	server, err := NewServer(manager, services, logger)
	require.NoError(t, err)
	return server, classifier
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewServer(t *testing.T) {
	server, _ := newTestServer(t)

	assert.NotNil(t, server.mcpServer)
	assert.NotNil(t, server.logger)
	assert.NotNil(t, server.services)
}

func TestNewServer_RequiresServices(t *testing.T) {
	manager, err := config.NewManager()
	require.NoError(t, err)

	_, err = NewServer(manager, nil, logrus.New())
	assert.Error(t, err)
}

func TestHandlers_RejectEmptyQuestion(t *testing.T) {
	server, classifier := newTestServer(t)
	ctx := t.Context()

	results := map[string]func() (*mcp.CallToolResult, any, error){
		"classify_question": func() (*mcp.CallToolResult, any, error) {
			return server.handleClassifyQuestion(ctx, nil, ClassifyQuestionParams{Question: " "})
		},
		"match_sponsors": func() (*mcp.CallToolResult, any, error) {
			return server.handleMatchSponsors(ctx, nil, MatchSponsorsParams{})
		},
		"select_experience": func() (*mcp.CallToolResult, any, error) {
			return server.handleSelectExperience(ctx, nil, SelectExperienceParams{})
		},
		"estimate_time": func() (*mcp.CallToolResult, any, error) {
			return server.handleEstimateTime(ctx, nil, EstimateTimeParams{Question: "\n"})
		},
		"analyze_question": func() (*mcp.CallToolResult, any, error) {
			return server.handleAnalyzeQuestion(ctx, nil, AnalyzeQuestionParams{})
		},
	}

	for name, call := range results {
		t.Run(name, func(t *testing.T) {
			res, out, err := call()
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Nil(t, out)
			assert.Contains(t, resultText(t, res), domain.ErrInvalidInput)
		})
	}
	assert.Zero(t, classifier.calls)
}

func TestHandleClassifyQuestion(t *testing.T) {
	server, _ := newTestServer(t)

	res, out, err := server.handleClassifyQuestion(t.Context(), nil, ClassifyQuestionParams{Question: question})

	require.NoError(t, err)
	assert.False(t, res.IsError)
	classification := out.(*domain.Classification)
	assert.Equal(t, "oncology", classification.PrimaryCategory.ID)
	assert.Equal(t, "Classified as oncology / breast_cancer (confidence 0.90)", resultText(t, res))
}

func TestHandleMatchSponsors(t *testing.T) {
	server, classifier := newTestServer(t)

	res, out, err := server.handleMatchSponsors(t.Context(), nil, MatchSponsorsParams{Question: question, MaxResults: 2})
	require.NoError(t, err)
	result := out.(MatchSponsorsResult)
	assert.True(t, result.ShowSponsored)
	assert.Len(t, result.Matches, 2)
	assert.Equal(t, "genentech", result.TopMatch.Company.ID)
	assert.Contains(t, resultText(t, res), "sponsored content shown: true")
	assert.Equal(t, 1, classifier.calls)

	t.Run("invalid threshold", func(t *testing.T) {
		threshold := 1.5
		res, _, err := server.handleMatchSponsors(t.Context(), nil, MatchSponsorsParams{Question: question, Threshold: &threshold})
		require.NoError(t, err)
		assert.True(t, res.IsError)
	})

	t.Run("strict threshold hides sponsor", func(t *testing.T) {
		threshold := 0.95
		_, out, err := server.handleMatchSponsors(t.Context(), nil, MatchSponsorsParams{Question: question, Threshold: &threshold})
		require.NoError(t, err)
		assert.False(t, out.(MatchSponsorsResult).ShowSponsored)
	})
}

func TestHandleSelectExperience(t *testing.T) {
	server, _ := newTestServer(t)

	res, out, err := server.handleSelectExperience(t.Context(), nil, SelectExperienceParams{Question: question})

	require.NoError(t, err)
	selection := out.(*domain.ExperienceSelection)
	// The stubbed contextual analyzer fails, which always selects STANDARD.
	assert.Equal(t, domain.STANDARD, selection.Selected.Type)
	assert.Contains(t, resultText(t, res), "Selected STANDARD")
}

func TestHandleEstimateTime(t *testing.T) {
	server, _ := newTestServer(t)

	_, out, err := server.handleEstimateTime(t.Context(), nil, EstimateTimeParams{Question: question})

	require.NoError(t, err)
	estimate := out.(*domain.TimeEstimationResult)
	assert.Equal(t, "computed", estimate.DetailedFactors["source"])
	assert.GreaterOrEqual(t, estimate.InitialEstimate, service.BaseTime)
	assert.LessOrEqual(t, estimate.MinEstimate, estimate.InitialEstimate)
	assert.LessOrEqual(t, estimate.InitialEstimate, estimate.MaxEstimate)
}

func TestHandleAnalyzeQuestion(t *testing.T) {
	server, _ := newTestServer(t)

	res, out, err := server.handleAnalyzeQuestion(t.Context(), nil, AnalyzeQuestionParams{Question: question})

	require.NoError(t, err)
	analysis := out.(*service.Analysis)
	assert.True(t, analysis.ShowSponsored)
	assert.Equal(t, domain.LengthStandard, analysis.ContentLength)
	assert.NotEmpty(t, analysis.ContextualError)
	assert.Contains(t, resultText(t, res), "sponsored content shown: true")
}

func TestHandleListSponsors(t *testing.T) {
	server, _ := newTestServer(t)

	tests := []struct {
		name      string
		company   string
		wantErr   bool
		wantCount int
	}{
		{name: "all", wantCount: len(server.services.Catalog.Companies())},
		{name: "single", company: "genentech", wantCount: 1},
		{name: "unknown", company: "acme", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, out, err := server.handleListSponsors(t.Context(), nil, ListSponsorsParams{Company: tt.company})
			require.NoError(t, err)
			if tt.wantErr {
				assert.True(t, res.IsError)
				assert.Nil(t, out)
				return
			}
			assert.False(t, res.IsError)
			assert.Len(t, out.(ListSponsorsResult).Companies, tt.wantCount)
		})
	}
}

func TestHandlers_RejectInvalidClassification(t *testing.T) {
	server, classifier := newTestServer(t)
	invalid := &domain.Classification{
		PrimaryCategory: domain.CategoryRef{ID: "oncology", Confidence: 5},
		Subcategory:     domain.CategoryRef{ID: "breast_cancer", Confidence: 0.85},
	}

	calls := map[string]func() (*mcp.CallToolResult, any, error){
		"match_sponsors": func() (*mcp.CallToolResult, any, error) {
			return server.handleMatchSponsors(t.Context(), nil, MatchSponsorsParams{Question: question, Classification: invalid})
		},
		"estimate_time": func() (*mcp.CallToolResult, any, error) {
			return server.handleEstimateTime(t.Context(), nil, EstimateTimeParams{Question: question, Classification: invalid})
		},
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			res, out, err := call()
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Nil(t, out)
			assert.Contains(t, resultText(t, res), domain.ErrInvalidInput)
			assert.Contains(t, resultText(t, res), "invalid classification")
		})
	}
	assert.Zero(t, classifier.calls)
}
