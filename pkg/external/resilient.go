package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/medqa-sponsor-engine/internal/domain"
)

// CircuitBreakerConfig represents circuit breaker and rate limit configuration
type CircuitBreakerConfig struct {
	MaxRequests uint32        `json:"max_requests"`
	Interval    time.Duration `json:"interval"`
	Timeout     time.Duration `json:"timeout"`
	RateLimit   int           `json:"rate_limit"` // requests per second, 0 disables limiting
	CallTimeout time.Duration `json:"call_timeout"`
}

// CircuitBreakerConfigFromLLM derives breaker settings from the LLM configuration.
func CircuitBreakerConfigFromLLM(cfg domain.LLMConfig) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		RateLimit:   cfg.RateLimit,
		CallTimeout: cfg.Timeout,
	}
}

// guard couples a circuit breaker with a rate limiter for one external service.
type guard struct {
	name        string
	breaker     *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	callTimeout time.Duration
}

func newGuard(name string, config CircuitBreakerConfig, logger *logrus.Logger) *guard {
	if config.MaxRequests == 0 {
		config.MaxRequests = 3
	}
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	g := &guard{
		name:        name,
		callTimeout: config.CallTimeout,
	}
	if config.RateLimit > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.RateLimit)
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// a caller giving up is not a failure of the service
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return g
}

func (g *guard) execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s rate limit wait: %w", g.name, err)
		}
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx := ctx
		if g.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.callTimeout)
			defer cancel()
		}
		return fn(callCtx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s service unavailable (circuit breaker open): %w", g.name, domain.ErrServiceUnavailable)
		}
		return nil, fmt.Errorf("%s call failed: %w", g.name, err)
	}
	return result, nil
}

func (g *guard) state() gobreaker.State {
	return g.breaker.State()
}

// ResilientGenerator wraps a StructuredGenerator with a circuit breaker and rate limiter
type ResilientGenerator struct {
	next  StructuredGenerator
	guard *guard
}

// NewResilientGenerator creates a resilient structured generator
func NewResilientGenerator(name string, next StructuredGenerator, config CircuitBreakerConfig, logger *logrus.Logger) *ResilientGenerator {
	return &ResilientGenerator{next: next, guard: newGuard(name, config, logger)}
}

// GenerateStructured implements StructuredGenerator
func (r *ResilientGenerator) GenerateStructured(ctx context.Context, prompt string) (string, error) {
	result, err := r.guard.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return r.next.GenerateStructured(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// State returns the current circuit breaker state
func (r *ResilientGenerator) State() gobreaker.State {
	return r.guard.state()
}

// ResilientEmbedder wraps an Embedder with a circuit breaker and rate limiter
type ResilientEmbedder struct {
	next  Embedder
	guard *guard
}

// NewResilientEmbedder creates a resilient embedder
func NewResilientEmbedder(name string, next Embedder, config CircuitBreakerConfig, logger *logrus.Logger) *ResilientEmbedder {
	return &ResilientEmbedder{next: next, guard: newGuard(name, config, logger)}
}

// Embed implements Embedder
func (r *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := r.guard.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return r.next.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// State returns the current circuit breaker state
func (r *ResilientEmbedder) State() gobreaker.State {
	return r.guard.state()
}

// ResilientStreamer wraps an AnswerStreamer with a circuit breaker and rate limiter.
// The per-call timeout is not applied: streams run until the request context ends.
type ResilientStreamer struct {
	next  AnswerStreamer
	guard *guard
}

// NewResilientStreamer creates a resilient answer streamer
func NewResilientStreamer(name string, next AnswerStreamer, config CircuitBreakerConfig, logger *logrus.Logger) *ResilientStreamer {
	config.CallTimeout = 0
	return &ResilientStreamer{next: next, guard: newGuard(name, config, logger)}
}

// StreamAnswer implements AnswerStreamer
func (r *ResilientStreamer) StreamAnswer(ctx context.Context, question string, history []domain.Message, emit func(string) error) error {
	_, err := r.guard.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, r.next.StreamAnswer(ctx, question, history, emit)
	})
	return err
}

// State returns the current circuit breaker state
func (r *ResilientStreamer) State() gobreaker.State {
	return r.guard.state()
}
