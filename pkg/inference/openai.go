package inference

import (
	"context"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

// OpenAIInferencer implements Inferencer using OpenAI's official Go SDK. It
// also serves every OpenAI-compatible backend (custom endpoints, LM Studio
// and Ollama's /v1 API).
type OpenAIInferencer struct {
	client *openai.Client
	cfg    Config
}

// NewOpenAIInferencer creates a new inferencer for an OpenAI-compatible API.
// Retries are disabled; every Generate is a single round trip.
func NewOpenAIInferencer(cfg Config) *OpenAIInferencer {
	cfg = cfg.WithDefaults()
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithAPIKey(cfg.APIKey),
	}
	if base := baseURL(cfg); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	client := openai.NewClient(opts...)
	return &OpenAIInferencer{
		client: &client,
		cfg:    cfg,
	}
}

func baseURL(cfg Config) string {
	base := strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Provider == ProviderOllama && base != "" && !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base
}

// Generate sends the prompt to the chat completion endpoint and returns the output.
func (o *OpenAIInferencer) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := withTimeout(ctx, o.cfg.Timeout())
	defer cancel()

	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Role: "system",
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: param.Opt[string]{Value: req.SystemPrompt},
				},
			},
		})
	}
	messages = append(messages, openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Role: "user",
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: param.Opt[string]{Value: req.Prompt},
			},
		},
	})

	params := openai.ChatCompletionNewParams{
		Model:       o.cfg.Model,
		Messages:    messages,
		Temperature: openai.Float(o.cfg.temperature()),
	}
	if o.cfg.Provider == ProviderOpenAI {
		params.MaxCompletionTokens = openai.Int(int64(o.cfg.MaxTokens))
		if req.Format != nil {
			params.ResponseFormat = responseFormat(req.Format.Name, req.Format.Description, req.Format.Schema)
		}
	} else {
		params.MaxTokens = openai.Int(int64(o.cfg.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(o.cfg.Provider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, malformed(o.cfg.Provider, errNoChoices)
	}
	text := resp.Choices[0].Message.Content
	if text == "" {
		return nil, malformed(o.cfg.Provider, errEmptyContent)
	}

	out := &Response{Text: text}
	if resp.Usage.TotalTokens > 0 {
		out.Usage = &TokenUsage{
			Prompt:     int(resp.Usage.PromptTokens),
			Completion: int(resp.Usage.CompletionTokens),
			Total:      int(resp.Usage.TotalTokens),
		}
	} else {
		out.Usage = EstimateUsage(req, text)
	}
	return out, nil
}

func responseFormat(name, description string, schema any) openai.ChatCompletionNewParamsResponseFormatUnion {
	p := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        name,
		Description: openai.String(description),
		Schema:      schema,
		Strict:      openai.Bool(false),
	}
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: p},
	}
}
