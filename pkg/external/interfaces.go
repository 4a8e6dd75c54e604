package external

import (
	"context"
	"fmt"

	"github.com/medqa-sponsor-engine/internal/domain"
)

// StructuredGenerator is a text-generation service asked to answer with JSON.
// Callers must validate the shape of the returned text before trusting any field.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, prompt string) (string, error)
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// AnswerStreamer streams the answer to a medical question chunk by chunk.
// emit is called once per chunk in order; a non-nil error from emit aborts the stream.
type AnswerStreamer interface {
	StreamAnswer(ctx context.Context, question string, history []domain.Message, emit func(chunk string) error) error
}

// NoopEmbedder is used where embeddings are unavailable or disabled. Every call
// fails with ErrServiceUnavailable, which the confidence scorer turns into a
// neutral similarity.
type NoopEmbedder struct{}

// Embed implements Embedder
func (NoopEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings disabled: %w", domain.ErrServiceUnavailable)
}

// Unavailable stands in for the generation services when no API key is configured.
// The classifier degrades to the unknown classification and experience selection
// falls back to STANDARD.
type Unavailable struct{}

// GenerateStructured implements StructuredGenerator
func (Unavailable) GenerateStructured(context.Context, string) (string, error) {
	return "", fmt.Errorf("structured generation: %w", domain.ErrServiceUnavailable)
}

// StreamAnswer implements AnswerStreamer
func (Unavailable) StreamAnswer(context.Context, string, []domain.Message, func(string) error) error {
	return fmt.Errorf("answer streaming: %w", domain.ErrServiceUnavailable)
}

// Embed implements Embedder
func (Unavailable) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embedding: %w", domain.ErrServiceUnavailable)
}
