package inference

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Provider string

const (
	ProviderGemini       Provider = "gemini"
	ProviderClaude       Provider = "claude"
	ProviderOpenAI       Provider = "openai"
	ProviderCustomOpenAI Provider = "custom-openai"
	ProviderOllama       Provider = "ollama"
	ProviderLMStudio     Provider = "lm-studio"
)

var Providers = []Provider{
	ProviderGemini,
	ProviderClaude,
	ProviderOpenAI,
	ProviderCustomOpenAI,
	ProviderOllama,
	ProviderLMStudio,
}

const (
	DefaultMaxTokens   = 4000
	DefaultTemperature = 0.7
	DefaultTimeout     = 60 * time.Second
)

type providerDefaults struct {
	model    string
	endpoint string
	local    bool
}

var defaults = map[Provider]providerDefaults{
	ProviderGemini:       {model: "gemini-1.5-flash"},
	ProviderClaude:       {model: "claude-3-5-sonnet-20241022"},
	ProviderOpenAI:       {model: "gpt-4o"},
	ProviderCustomOpenAI: {model: "gpt-4o"},
	ProviderOllama:       {model: "llama3.2", endpoint: "http://localhost:11434", local: true},
	ProviderLMStudio:     {model: "local-model", endpoint: "http://localhost:1234/v1", local: true},
}

var ErrInvalidConfig = errors.New("invalid provider config")

// Config selects and parameterizes a backend.
type Config struct {
	Provider       Provider `json:"provider"`
	APIKey         string   `json:"apiKey,omitzero"`
	Endpoint       string   `json:"endpoint,omitzero"`
	Model          string   `json:"model,omitzero"`
	MaxTokens      int      `json:"maxTokens,omitzero"`
	Temperature    *float64 `json:"temperature,omitzero"`
	TimeoutSeconds int      `json:"timeoutSeconds,omitzero"`
}

// Local reports whether the provider runs on the user's machine and needs no key.
func (p Provider) Local() bool {
	return defaults[p].local
}

func (p Provider) Known() bool {
	_, ok := defaults[p]
	return ok
}

// WithDefaults fills every unset field with the provider's default.
func (c Config) WithDefaults() Config {
	d := defaults[c.Provider]
	c.Model = cmp.Or(strings.TrimSpace(c.Model), d.model)
	c.Endpoint = cmp.Or(strings.TrimSpace(c.Endpoint), d.endpoint)
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.MaxTokens = cmp.Or(c.MaxTokens, DefaultMaxTokens)
	if c.Temperature == nil {
		t := DefaultTemperature
		c.Temperature = &t
	}
	c.TimeoutSeconds = cmp.Or(c.TimeoutSeconds, int(DefaultTimeout/time.Second))
	return c
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c Config) temperature() float64 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

// Validate checks a config after WithDefaults has been applied.
func (c Config) Validate() error {
	switch {
	case !c.Provider.Known():
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	case c.APIKey == "" && !c.Provider.Local():
		return fmt.Errorf("%w: %s requires an API key", ErrInvalidConfig, c.Provider)
	case c.Provider == ProviderCustomOpenAI && c.Endpoint == "":
		return fmt.Errorf("%w: custom-openai requires an endpoint", ErrInvalidConfig)
	case c.MaxTokens <= 0:
		return fmt.Errorf("%w: maxTokens must be positive", ErrInvalidConfig)
	case c.temperature() < 0 || c.temperature() > 2:
		return fmt.Errorf("%w: temperature must be within [0, 2]", ErrInvalidConfig)
	case c.TimeoutSeconds < 0:
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Redacted returns a copy that is safe to log.
func (c Config) Redacted() Config {
	if c.APIKey != "" {
		c.APIKey = "***"
	}
	return c
}
