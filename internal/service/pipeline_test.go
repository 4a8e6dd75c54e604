package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medqa-sponsor-engine/internal/domain"
	"github.com/medqa-sponsor-engine/pkg/external"
)

func testConfig() *domain.Config {
	return &domain.Config{
		Confidence: domain.ConfidenceConfig{Threshold: DefaultConfidenceThreshold},
		Mapper:     domain.MapperConfig{MinScore: 20, MaxResults: 10},
		Progress:   domain.ProgressConfig{Interval: 5 * time.Millisecond},
	}
}

type pipelineFixture struct {
	services       *Services
	classification *mockGenerator
	contextual     *mockGenerator
}

func newPipelineFixture(t *testing.T, streamer external.AnswerStreamer) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{classification: &mockGenerator{}, contextual: &mockGenerator{}}
	services, err := NewServices(testConfig(), &Clients{
		Classification: f.classification,
		Contextual:     f.contextual,
		Embedder:       external.NoopEmbedder{},
		Streamer:       streamer,
	}, testLogger())
	require.NoError(t, err)
	f.services = services
	return f
}

func (f *pipelineFixture) scenarioA() {
	f.classification.On("GenerateStructured", mock.Anything, mock.Anything).Return(scenarioAClassificationJSON, nil)
	f.contextual.On("GenerateStructured", mock.Anything, mock.Anything).Return(validContextualJSON, nil)
}

func collect(events *[]domain.StreamEvent) func(domain.StreamEvent) error {
	return func(ev domain.StreamEvent) error {
		*events = append(*events, ev)
		return nil
	}
}

func eventTypes(events []domain.StreamEvent) []domain.StreamEventType {
	types := make([]domain.StreamEventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func TestPipeline_AskScenarioA(t *testing.T) {
	f := newPipelineFixture(t, fakeStreamer{chunks: []string{"HER2-targeted ", "therapy ", "options."}, delay: 10 * time.Millisecond})
	f.scenarioA()

	var events []domain.StreamEvent
	err := f.services.Pipeline.Ask(t.Context(), AskRequest{Question: scenarioAQuestion}, collect(&events))
	require.NoError(t, err)

	types := eventTypes(events)
	require.GreaterOrEqual(t, len(types), 8)
	assert.Equal(t, []domain.StreamEventType{
		domain.EventClassification, domain.EventTimeEstimate, domain.EventExperience, domain.EventSponsored,
	}, types[:4])
	assert.Equal(t, domain.EventComplete, types[len(types)-1])

	classification := events[0].Data.(*domain.Classification)
	assert.Equal(t, "oncology", classification.PrimaryCategory.ID)

	estimate := events[1].Data.(*domain.TimeEstimationResult)
	assert.Equal(t, 12.0, estimate.InitialEstimate)

	experience := events[2].Data.(*domain.ExperienceSelection)
	assert.Equal(t, domain.MICROSIMULATION, experience.Selected.Type)

	sponsored := events[3].Data.(SponsoredContent)
	assert.Equal(t, "genentech", sponsored.Company.ID)
	assert.Equal(t, "genentech-oncology", sponsored.TreatmentArea)
	assert.GreaterOrEqual(t, sponsored.Confidence, DefaultConfidenceThreshold)

	var text string
	var lastProgress domain.ProgressEvent
	progressCount := 0
	for _, ev := range events[4 : len(events)-1] {
		switch ev.Type {
		case domain.EventChunk:
			text += ev.Data.(map[string]string)["text"]
		case domain.EventProgress:
			progressCount++
			p := ev.Data.(domain.ProgressEvent)
			assert.GreaterOrEqual(t, p.Progress, lastProgress.Progress)
			lastProgress = p
		default:
			assert.Failf(t, "unexpected event", "%s", ev.Type)
		}
	}
	assert.Equal(t, "HER2-targeted therapy options.", text)
	assert.GreaterOrEqual(t, progressCount, 2)
	assert.True(t, lastProgress.Done)
	assert.Equal(t, 100.0, lastProgress.Progress)

	summary := events[len(events)-1].Data.(AskSummary)
	assert.Equal(t, lastProgress.SessionID, summary.SessionID)
	assert.Equal(t, domain.MICROSIMULATION, summary.Experience)
	assert.True(t, summary.AdRecommended)
	assert.Equal(t, 3, summary.Chunks)
	assert.Equal(t, 12.0, summary.EstimatedTimeS)
}

func TestPipeline_AskEmptyQuestion(t *testing.T) {
	f := newPipelineFixture(t, fakeStreamer{chunks: []string{"unused"}})

	var events []domain.StreamEvent
	err := f.services.Pipeline.Ask(t.Context(), AskRequest{Question: "   "}, collect(&events))

	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
	assert.Empty(t, events)
	f.classification.AssertNotCalled(t, "GenerateStructured", mock.Anything, mock.Anything)
	f.contextual.AssertNotCalled(t, "GenerateStructured", mock.Anything, mock.Anything)
}

func TestPipeline_AskContextualFailure(t *testing.T) {
	f := newPipelineFixture(t, fakeStreamer{chunks: []string{"answer"}})
	f.classification.On("GenerateStructured", mock.Anything, mock.Anything).Return(scenarioAClassificationJSON, nil)
	f.contextual.On("GenerateStructured", mock.Anything, mock.Anything).Return("", errors.New("contextual model overloaded"))

	var events []domain.StreamEvent
	err := f.services.Pipeline.Ask(t.Context(), AskRequest{Question: scenarioAQuestion}, collect(&events))
	require.NoError(t, err)

	experience := events[2].Data.(*domain.ExperienceSelection)
	assert.Equal(t, domain.STANDARD, experience.Selected.Type)
	assert.Equal(t, "computed", events[1].Data.(*domain.TimeEstimationResult).DetailedFactors["source"])
	assert.Contains(t, eventTypes(events), domain.EventChunk)
	assert.Equal(t, domain.EventComplete, events[len(events)-1].Type)
}

func TestPipeline_AskStreamFailure(t *testing.T) {
	f := newPipelineFixture(t, fakeStreamer{chunks: []string{"partial"}, err: errors.New("stream reset")})
	f.scenarioA()

	var events []domain.StreamEvent
	err := f.services.Pipeline.Ask(t.Context(), AskRequest{Question: scenarioAQuestion}, collect(&events))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream reset")
	last := events[len(events)-1]
	assert.Equal(t, domain.EventError, last.Type)
	assert.Equal(t, "stream reset", last.Data.(map[string]string)["message"])
	assert.Equal(t, domain.ErrExternalAPI, last.Data.(map[string]string)["code"])
	assert.NotContains(t, eventTypes(events), domain.EventComplete)
}

func TestPipeline_AskEmitFailureStops(t *testing.T) {
	f := newPipelineFixture(t, fakeStreamer{chunks: []string{"a", "b", "c"}})
	f.scenarioA()

	emitErr := errors.New("client went away")
	calls := 0
	err := f.services.Pipeline.Ask(t.Context(), AskRequest{Question: scenarioAQuestion}, func(domain.StreamEvent) error {
		calls++
		if calls == 2 {
			return emitErr
		}
		return nil
	})

	assert.ErrorIs(t, err, emitErr)
	assert.Equal(t, 2, calls)
}

func TestPipeline_AskCancelledContext(t *testing.T) {
	f := newPipelineFixture(t, blockingStreamer{})
	f.scenarioA()

	ctx, cancel := context.WithCancel(t.Context())
	var events []domain.StreamEvent
	err := f.services.Pipeline.Ask(ctx, AskRequest{Question: scenarioAQuestion}, func(ev domain.StreamEvent) error {
		events = append(events, ev)
		if ev.Type == domain.EventProgress {
			cancel()
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.EventError, events[len(events)-1].Type)
}

func TestPipeline_Analyze(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.scenarioA()

	analysis, err := f.services.Pipeline.Analyze(t.Context(), AskRequest{Question: scenarioAQuestion})
	require.NoError(t, err)

	assert.True(t, analysis.ShowSponsored)
	assert.Equal(t, domain.LengthDetailed, analysis.ContentLength)
	require.NotNil(t, analysis.Mapping)
	assert.Equal(t, "genentech", analysis.Mapping.TopMatch.Company.ID)
	assert.InDelta(t, 0.735, analysis.Mapping.TopMatch.ConfidenceScore, 1e-3)
	require.NotEmpty(t, analysis.Formats)
	assert.Equal(t, domain.FormatClinicalTrial, analysis.Formats[0].Format)
	assert.Empty(t, analysis.ContextualError)
	assert.Empty(t, analysis.MappingError)

	_, err = f.services.Pipeline.Analyze(t.Context(), AskRequest{Question: ""})
	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
}

func TestPipeline_AnalyzeScenarioBHasNoSponsor(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.classification.On("GenerateStructured", mock.Anything, mock.Anything).Return(
		`{"primaryCategory":{"id":"general_medicine","confidence":0.45},"subcategory":{"id":"adverse_effects","confidence":0.45},"keywords":["side effects"]}`, nil)
	f.contextual.On("GenerateStructured", mock.Anything, mock.Anything).Return("", domain.ErrServiceUnavailable)

	analysis, err := f.services.Pipeline.Analyze(t.Context(), AskRequest{Question: scenarioBQuestion})
	require.NoError(t, err)

	assert.False(t, analysis.ShowSponsored)
	assert.Equal(t, domain.LengthStandard, analysis.ContentLength)
	assert.Equal(t, domain.STANDARD, analysis.Experience.Selected.Type)
	assert.NotEmpty(t, analysis.ContextualError)
}

// blockingStreamer never produces a chunk and returns when the context ends.
type blockingStreamer struct{}

func (blockingStreamer) StreamAnswer(ctx context.Context, _ string, _ []domain.Message, _ func(string) error) error {
	<-ctx.Done()
	return ctx.Err()
}
