package inference

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type ClaudeInferencer struct {
	client anthropic.Client
	cfg    Config
}

func NewClaudeInferencer(cfg Config) *ClaudeInferencer {
	cfg = cfg.WithDefaults()
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	return &ClaudeInferencer{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
	}
}

func (c *ClaudeInferencer) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(c.cfg.temperature()),
	}
	if sys := strings.TrimSpace(req.SystemPrompt); sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(ProviderClaude, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type != "text" {
			continue
		}
		sb.WriteString(block.Text)
	}
	if sb.Len() == 0 {
		return nil, malformed(ProviderClaude, errEmptyContent)
	}

	out := &Response{Text: sb.String()}
	if in, o := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens); in+o > 0 {
		out.Usage = &TokenUsage{Prompt: in, Completion: o, Total: in + o}
	} else {
		out.Usage = EstimateUsage(req, out.Text)
	}
	return out, nil
}
