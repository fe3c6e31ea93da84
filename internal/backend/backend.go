// Package backend provides access to the generative-inference backend.
// The backend is treated as an opaque, possibly slow, possibly rate-limited
// capability behind a narrow interface; the batcher is the only component
// that should call it directly.
package backend

import "context"

// Generator is the single-call contract every backend must satisfy.
type Generator interface {
	// Generate runs one prompt and returns the text response.
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// BatchGenerator is an optional extension for backends with native
// batching. Results are positional: result[i] answers prompts[i].
type BatchGenerator interface {
	GenerateBatch(ctx context.Context, reqs []Request) ([]string, error)
}

// Request is one generate call within a batch.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	return f(ctx, prompt, maxTokens, temperature)
}
