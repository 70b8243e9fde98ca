package settings

import (
	"strings"

	"cardforge/pkg/inference"
)

// Env reads provider overrides from the environment.
type Env func(key string) string

// Apply overlays every non-empty variable onto s.
func (env Env) Apply(s *Settings) {
	if p := inference.Provider(strings.TrimSpace(env("CARDFORGE_PROVIDER"))); p.Known() {
		s.Active = p
	}

	set := func(p inference.Provider, fn func(*inference.Config)) {
		c := s.Providers[p]
		fn(&c)
		s.Providers[p] = c
	}
	if v := env("OPENAI_API_KEY"); v != "" {
		set(inference.ProviderOpenAI, func(c *inference.Config) { c.APIKey = v })
	}
	if v := env("OPENAI_MODEL"); v != "" {
		set(inference.ProviderOpenAI, func(c *inference.Config) { c.Model = v })
	}
	if v := env("OPENAI_BASE_URL"); v != "" {
		set(inference.ProviderCustomOpenAI, func(c *inference.Config) { c.Endpoint = v })
	}
	if v := env("ANTHROPIC_API_KEY"); v != "" {
		set(inference.ProviderClaude, func(c *inference.Config) { c.APIKey = v })
	}
	if v := env("GEMINI_API_KEY"); v != "" {
		set(inference.ProviderGemini, func(c *inference.Config) { c.APIKey = v })
	}
	if v := env("OLLAMA_HOST"); v != "" {
		set(inference.ProviderOllama, func(c *inference.Config) { c.Endpoint = v })
	}
	if v := env("LMSTUDIO_HOST"); v != "" {
		set(inference.ProviderLMStudio, func(c *inference.Config) { c.Endpoint = v })
	}
}
