package inference

import (
	"context"
	"time"

	"cardforge/pkg/schema"
)

// Inferencer sends one prompt to a text generation backend.
type Inferencer interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

type Request struct {
	Prompt       string
	SystemPrompt string
	// Format optionally describes the JSON reply so backends that support
	// structured output can enforce it.
	Format *schema.Format
}

type Response struct {
	Text  string
	Usage *TokenUsage
}

type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// InferencerFunc adapts a function to Inferencer.
type InferencerFunc func(ctx context.Context, req Request) (*Response, error)

func (f InferencerFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// New builds the Inferencer selected by cfg.Provider.
func New(ctx context.Context, cfg Config) (Inferencer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderGemini:
		return NewGeminiInferencer(ctx, cfg)
	case ProviderClaude:
		return NewClaudeInferencer(cfg), nil
	default:
		return NewOpenAIInferencer(cfg), nil
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
