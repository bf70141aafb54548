package ai

import (
	"context"
)

// GenerateOptions holds configuration for AI generation requests.
type GenerateOptions struct {
	Model         string   // Model identifier to use for generation
	SystemPrompts []string // System prompts prepended to the request
	Temperature   float64  // Sampling temperature (0.0-2.0)
}

// ModelMetrics contains performance metrics from AI model operations.
type ModelMetrics struct {
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	TotalTokens     int     `json:"total_tokens"`
	EmbeddingTokens int     `json:"embedding_tokens"`
	Requests        int     `json:"requests"`
	DurationMs      int64   `json:"duration_ms"`
	TokenPerSecond  float32 `json:"tokens_per_second"`
}

// GenerateOption is a functional option for configuring AI generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the generation request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
// Zero keeps planning output stable; answers use a higher value.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// ApplyOptions folds opts over defaults.
func ApplyOptions(defaults GenerateOptions, opts ...GenerateOption) GenerateOptions {
	options := defaults
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// GraphAIClient is the provider boundary used by ingestion and retrieval.
// Implementations are safe for concurrent use.
type GraphAIClient interface {
	GenerateCompletion(
		ctx context.Context,
		prompt string,
		opts ...GenerateOption,
	) (string, error)
	// GenerateCompletionWithFormat asks for output matching the JSON schema
	// derived from out and decodes the result into out.
	GenerateCompletionWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error

	// GenerateEmbedding returns a vector of EmbeddingDimensions() floats.
	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
	EmbeddingDimensions() int

	ResetMetrics()
	GetMetrics() ModelMetrics
}
