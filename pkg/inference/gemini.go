package inference

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

type GeminiInferencer struct {
	client *genai.Client
	cfg    Config
}

func NewGeminiInferencer(ctx context.Context, cfg Config) (*GeminiInferencer, error) {
	cfg = cfg.WithDefaults()
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiInferencer{
		client: client,
		cfg:    cfg,
	}, nil
}

func (g *GeminiInferencer) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := withTimeout(ctx, g.cfg.Timeout())
	defer cancel()

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(g.cfg.MaxTokens),
		Temperature:     genai.Ptr(float32(g.cfg.temperature())),
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Format != nil {
		config.ResponseMIMEType = "application/json"
	}

	result, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, classify(ProviderGemini, err)
	}

	text := result.Text()
	if text == "" {
		return nil, malformed(ProviderGemini, errEmptyContent)
	}

	out := &Response{Text: text}
	if u := result.UsageMetadata; u != nil && u.TotalTokenCount > 0 {
		out.Usage = &TokenUsage{
			Prompt:     int(u.PromptTokenCount),
			Completion: int(u.CandidatesTokenCount),
			Total:      int(u.TotalTokenCount),
		}
	} else {
		out.Usage = EstimateUsage(req, text)
	}
	return out, nil
}
