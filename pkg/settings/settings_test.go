package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardforge/pkg/assets"
	"cardforge/pkg/charx"
	"cardforge/pkg/inference"
	"cardforge/pkg/workflow"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "settings.json")).Load()
	require.NoError(t, err)

	assert.Equal(t, schemaVersion, s.SchemaVersion)
	assert.Equal(t, inference.ProviderOpenAI, s.Active)
	assert.Len(t, s.Providers, len(inference.Providers))
	assert.Equal(t, assets.DefaultThresholds, s.Thresholds)
	assert.Equal(t, charx.CompressionDefault, s.Compression)
	assert.Equal(t, "gpt-4o", s.Config().Model)
	assert.Equal(t, UI{Theme: "light", Language: "en"}, s.UI)
	assert.Empty(t, s.OutputLanguage())
	assert.NotNil(t, s.Templates)
}

func TestBackfillPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"activeProvider":"ollama","providers":{"ollama":{"model":"qwen"}},"compression":"zip9"}`), 0o600))

	s, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, inference.ProviderOllama, s.Active)
	assert.Equal(t, "qwen", s.Config().Model)
	assert.Equal(t, "http://localhost:11434", s.Config().Endpoint)
	assert.Equal(t, charx.CompressionDefault, s.Compression)
	assert.Contains(t, s.Providers, inference.ProviderClaude)
}

func TestUpdateKeepsMaskedKey(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nested", "settings.json"))
	_, err := store.Update(func(s *Settings) {
		c := s.Providers[inference.ProviderClaude]
		c.APIKey = "sk-secret"
		s.Providers[inference.ProviderClaude] = c
		s.Active = inference.ProviderClaude
	})
	require.NoError(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)
	redacted := loaded.Redacted()
	assert.Equal(t, "***", redacted.Providers[inference.ProviderClaude].APIKey)
	assert.Equal(t, "sk-secret", loaded.Providers[inference.ProviderClaude].APIKey)

	_, err = store.Update(func(s *Settings) {
		*s = *redacted
		s.UI.Language = "ko"
	})
	require.NoError(t, err)

	loaded, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", loaded.Config().APIKey)
	assert.Equal(t, "Korean", loaded.OutputLanguage())
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
	_, err := NewStore(path).Load()
	assert.Error(t, err)
}

func TestEnvOverlayIsNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store := NewStore(path)
	env := map[string]string{
		"CARDFORGE_PROVIDER": "claude",
		"ANTHROPIC_API_KEY":  "sk-env",
		"OLLAMA_HOST":        "http://gpu:11434",
	}
	store.SetOverlay(Env(func(k string) string { return env[k] }).Apply)

	s, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, inference.ProviderClaude, s.Active)
	assert.Equal(t, "sk-env", s.Config().APIKey)
	assert.Equal(t, "http://gpu:11434", s.Providers[inference.ProviderOllama].Endpoint)

	_, err = store.Update(func(s *Settings) { s.UI.Theme = "dark" })
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-env")
	assert.Contains(t, string(raw), `"theme": "dark"`)
}

func TestEnvIgnoresUnknownProvider(t *testing.T) {
	s := defaultSettings()
	Env(func(k string) string {
		if k == "CARDFORGE_PROVIDER" {
			return "palm"
		}
		return ""
	}).Apply(s)
	assert.Equal(t, inference.ProviderOpenAI, s.Active)
}

func TestTemplates(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "settings.json"))

	_, err := store.AddTemplate(PromptTemplate{Name: "assets", Stage: workflow.StageAssets, Template: "x"})
	require.ErrorIs(t, err, ErrInvalidTemplate)
	_, err = store.AddTemplate(PromptTemplate{Name: "blank", Stage: workflow.StageCharacter, Template: "  "})
	require.ErrorIs(t, err, ErrInvalidTemplate)

	a, err := store.AddTemplate(PromptTemplate{Name: "terse", Stage: workflow.StageCharacter, Template: "Make {{description}}"})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.False(t, a.CreatedAt.IsZero())

	s, err := store.Load()
	require.NoError(t, err)
	got, ok := s.Template(a.ID)
	require.True(t, ok)
	assert.Equal(t, "Make {{description}}", got.Template)

	require.NoError(t, store.DeleteTemplate(a.ID))
	assert.ErrorIs(t, store.DeleteTemplate(a.ID), ErrTemplateNotFound)
}
