package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeOpenAI(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "local-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 11, "completion_tokens": 4, "total_tokens": 15},
	}
}

func TestOpenAICompatibleGenerate(t *testing.T) {
	var got map[string]any
	srv := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completion(`{"name":"Ada"}`))
	})

	inf, err := New(context.Background(), Config{Provider: ProviderLMStudio, Endpoint: srv.URL + "/v1"})
	require.NoError(t, err)

	resp, err := inf.Generate(context.Background(), Request{Prompt: "make a character", SystemPrompt: "you write cards"})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Ada"}`, resp.Text)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, TokenUsage{Prompt: 11, Completion: 4, Total: 15}, *resp.Usage)

	assert.Equal(t, "local-model", got["model"])
	assert.EqualValues(t, DefaultMaxTokens, got["max_tokens"])
	assert.InDelta(t, DefaultTemperature, got["temperature"], 1e-9)
	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestOpenAIErrorsAreClassified(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusNotFound, KindNotFound},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusTeapot, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			srv := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			})
			inf := NewOpenAIInferencer(Config{Provider: ProviderCustomOpenAI, APIKey: "k", Endpoint: srv.URL})

			_, err := inf.Generate(context.Background(), Request{Prompt: "x"})
			var ge *GatewayError
			require.ErrorAs(t, err, &ge)
			assert.Equal(t, tt.want, ge.Kind)
			assert.Equal(t, tt.status, ge.Status)
			assert.Equal(t, ProviderCustomOpenAI, ge.Provider)
		})
	}
}

func TestOpenAIEmptyContentIsMalformed(t *testing.T) {
	srv := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completion(""))
	})
	inf := NewOpenAIInferencer(Config{Provider: ProviderLMStudio, Endpoint: srv.URL})

	_, err := inf.Generate(context.Background(), Request{Prompt: "x"})
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, KindMalformed, ge.Kind)
}

func TestTimeout(t *testing.T) {
	srv := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	inf := NewOpenAIInferencer(Config{Provider: ProviderLMStudio, Endpoint: srv.URL})
	inf.cfg.TimeoutSeconds = 0

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := inf.Generate(ctx, Request{Prompt: "x"})
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, KindTimeout, ge.Kind)
}

func TestNetworkUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	inf := NewOpenAIInferencer(Config{Provider: ProviderLMStudio, Endpoint: url})
	_, err := inf.Generate(context.Background(), Request{Prompt: "x"})
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, KindNetwork, ge.Kind)
}

func TestConfigDefaults(t *testing.T) {
	for _, p := range Providers {
		c := Config{Provider: p}.WithDefaults()
		assert.NotEmpty(t, c.Model, p)
		assert.Equal(t, DefaultMaxTokens, c.MaxTokens, p)
		assert.Equal(t, DefaultTimeout, c.Timeout(), p)
		require.NotNil(t, c.Temperature)
		assert.InDelta(t, DefaultTemperature, *c.Temperature, 1e-9)
	}
	assert.Equal(t, "http://localhost:11434", Config{Provider: ProviderOllama}.WithDefaults().Endpoint)

	zero := 0.0
	c := Config{Provider: ProviderOpenAI, Temperature: &zero}.WithDefaults()
	assert.Zero(t, *c.Temperature)
}

func TestConfigValidate(t *testing.T) {
	hot := 2.5
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"openai with key", Config{Provider: ProviderOpenAI, APIKey: "k"}, true},
		{"openai without key", Config{Provider: ProviderOpenAI}, false},
		{"local without key", Config{Provider: ProviderOllama}, true},
		{"custom without endpoint", Config{Provider: ProviderCustomOpenAI, APIKey: "k"}, false},
		{"custom with endpoint", Config{Provider: ProviderCustomOpenAI, APIKey: "k", Endpoint: "http://x"}, true},
		{"unknown provider", Config{Provider: "mystery", APIKey: "k"}, false},
		{"temperature out of range", Config{Provider: ProviderClaude, APIKey: "k", Temperature: &hot}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.WithDefaults().Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}

	_, err := New(context.Background(), Config{Provider: ProviderClaude})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOllamaBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:11434/v1", baseURL(Config{Provider: ProviderOllama, Endpoint: "http://localhost:11434/"}))
	assert.Equal(t, "http://h/v1", baseURL(Config{Provider: ProviderOllama, Endpoint: "http://h/v1"}))
	assert.Equal(t, "http://h", baseURL(Config{Provider: ProviderCustomOpenAI, Endpoint: "http://h"}))
}

func TestClassifyPassesThroughGatewayErrors(t *testing.T) {
	in := &GatewayError{Kind: KindAuth, Provider: ProviderGemini, Err: errors.New("x")}
	assert.Same(t, in, classify(ProviderOpenAI, in))

	err := classify(ProviderOpenAI, context.DeadlineExceeded)
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, KindTimeout, ge.Kind)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
