package external

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/medqa-sponsor-engine/internal/domain"
)

// GeminiConfig selects the models used for each call type.
type GeminiConfig struct {
	APIKey              string
	BaseURL             string // optional endpoint override
	ClassificationModel string
	AnswerModel         string
	EmbeddingModel      string
}

// GeminiClient implements StructuredGenerator, Embedder and AnswerStreamer on the Gemini API.
type GeminiClient struct {
	client          *genai.Client
	structuredModel string
	answerModel     string
	embeddingModel  string
}

// NewGeminiClient creates a Gemini API client. An empty API key is reported as
// ErrServiceUnavailable so callers can fall back to Unavailable.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key not configured: %w", domain.ErrServiceUnavailable)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:          client,
		structuredModel: cfg.ClassificationModel,
		answerModel:     cfg.AnswerModel,
		embeddingModel:  cfg.EmbeddingModel,
	}, nil
}

// WithStructuredModel returns a client sharing the same connection that generates
// structured output with model.
func (g *GeminiClient) WithStructuredModel(model string) *GeminiClient {
	clone := *g
	clone.structuredModel = model
	return &clone
}

// GenerateStructured asks the model for a JSON response to prompt.
func (g *GeminiClient) GenerateStructured(ctx context.Context, prompt string) (string, error) {
	content := genai.NewContentFromText(prompt, genai.RoleUser)
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.1),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.structuredModel, []*genai.Content{content}, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty response from Gemini")
	}
	return text, nil
}

// Embed returns the embedding of text.
func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to embed content with Gemini: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("no embedding returned from Gemini")
	}
	return resp.Embeddings[0].Values, nil
}

// StreamAnswer streams an answer to question, replaying history before it.
func (g *GeminiClient) StreamAnswer(ctx context.Context, question string, history []domain.Message, emit func(string) error) error {
	contents := conversationContents(history, question)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(answerSystemPrompt, genai.RoleUser),
	}

	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.answerModel, contents, config) {
		if err != nil {
			return fmt.Errorf("answer stream failed: %w", err)
		}
		if chunk := responseText(resp); chunk != "" {
			if err := emit(chunk); err != nil {
				return err
			}
		}
	}
	return nil
}

const answerSystemPrompt = "You are a careful medical information assistant for healthcare professionals. " +
	"Answer accurately and concisely, cite the evidence level where relevant, and say when a question needs a clinician's judgement."

// conversationContents replays history before question. Assistant turns are
// sent with the model role; every other turn is a user turn.
func conversationContents(history []domain.Message, question string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, msg := range history {
		var role genai.Role = genai.RoleUser
		if msg.Role == "assistant" || msg.Role == "model" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return append(contents, genai.NewContentFromText(question, genai.RoleUser))
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var result strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			result.WriteString(part.Text)
		}
	}
	return result.String()
}
