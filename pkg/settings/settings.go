// Package settings persists user preferences in a JSON file.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"cardforge/pkg/assets"
	"cardforge/pkg/charx"
	"cardforge/pkg/inference"
	"cardforge/pkg/utils"
	"cardforge/pkg/workflow"
)

const schemaVersion = 1

type Settings struct {
	SchemaVersion int                                     `json:"schemaVersion"`
	Active        inference.Provider                      `json:"activeProvider"`
	Providers     map[inference.Provider]inference.Config `json:"providers"`
	Thresholds    assets.Thresholds                       `json:"thresholds"`
	Compression   charx.Compression                       `json:"compression"`
	Parallelism   int                                     `json:"parallelism"`
	OutputDirs    []string                                `json:"outputDirs,omitzero"`
	Templates     []PromptTemplate                        `json:"promptTemplates"`
	LastInput     *workflow.Brief                         `json:"lastCharacterInput,omitzero"`
	UI            UI                                      `json:"ui"`
}

type UI struct {
	Theme               string `json:"theme"`
	Language            string `json:"language"`
	AutoSave            bool   `json:"autoSave"`
	EnablePromptEditing bool   `json:"enablePromptEditing"`
}

// PromptTemplate is a saved custom prompt for one stage.
type PromptTemplate struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Stage     workflow.StageID `json:"stage"`
	Template  string           `json:"template"`
	CreatedAt time.Time        `json:"createdAt"`
}

var (
	ErrTemplateNotFound = errors.New("prompt template not found")
	ErrInvalidTemplate  = errors.New("invalid prompt template")
)

func (s *Settings) Template(id string) (PromptTemplate, bool) {
	i := slices.IndexFunc(s.Templates, func(t PromptTemplate) bool { return t.ID == id })
	if i < 0 {
		return PromptTemplate{}, false
	}
	return s.Templates[i], true
}

var languages = map[string]string{"ko": "Korean", "ja": "Japanese"}

// OutputLanguage names the language generated text should use, or "" to
// leave it to the model.
func (s *Settings) OutputLanguage() string {
	return languages[s.UI.Language]
}

// Config returns the backend config of the active provider with defaults
// applied.
func (s *Settings) Config() inference.Config {
	c := s.Providers[s.Active]
	c.Provider = s.Active
	return c.WithDefaults()
}

// Redacted returns a copy with API keys masked.
func (s *Settings) Redacted() *Settings {
	out := *s
	out.Providers = make(map[inference.Provider]inference.Config, len(s.Providers))
	for p, c := range s.Providers {
		out.Providers[p] = c.Redacted()
	}
	return &out
}

type Store struct {
	path    string
	mu      sync.Mutex
	overlay func(*Settings)
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// SetOverlay registers fn to adjust every loaded copy. Overlaid values are
// never written back to disk.
func (s *Store) SetOverlay(fn func(*Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay = fn
}

// Load reads the settings file. A missing file yields the defaults.
func (s *Store) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, err := s.load()
	if err != nil {
		return nil, err
	}
	if s.overlay != nil {
		s.overlay(settings)
		backfill(settings)
	}
	return settings, nil
}

func (s *Store) load() (*Settings, error) {
	settings, err := utils.Load[Settings](s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaultSettings(), nil
		}
		return nil, err
	}
	backfill(&settings)
	return &settings, nil
}

func (s *Store) Save(settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	backfill(settings)
	return utils.Save(s.path, settings)
}

// Update applies fn to the stored settings and saves the result. A masked
// API key written back by a client keeps the stored key.
func (s *Store) Update(fn func(*Settings)) (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, err := s.load()
	if err != nil {
		return nil, err
	}
	before := maps.Clone(settings.Providers)
	fn(settings)
	for p, c := range settings.Providers {
		if c.APIKey == "***" {
			c.APIKey = before[p].APIKey
			settings.Providers[p] = c
		}
	}
	backfill(settings)
	if err := utils.Save(s.path, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// AddTemplate stores t under a new id.
func (s *Store) AddTemplate(t PromptTemplate) (PromptTemplate, error) {
	switch {
	case strings.TrimSpace(t.Template) == "":
		return PromptTemplate{}, fmt.Errorf("%w: template must not be empty", ErrInvalidTemplate)
	case t.Stage != workflow.StageCharacter && t.Stage != workflow.StageLorebook && t.Stage != workflow.StageModification:
		return PromptTemplate{}, fmt.Errorf("%w: stage %d takes no prompt", ErrInvalidTemplate, t.Stage)
	}
	t.ID = ksuid.New().String()
	t.CreatedAt = time.Now().UTC()
	_, err := s.Update(func(st *Settings) { st.Templates = append(st.Templates, t) })
	if err != nil {
		return PromptTemplate{}, err
	}
	return t, nil
}

func (s *Store) DeleteTemplate(id string) error {
	var found bool
	_, err := s.Update(func(st *Settings) {
		n := len(st.Templates)
		st.Templates = slices.DeleteFunc(st.Templates, func(t PromptTemplate) bool { return t.ID == id })
		found = len(st.Templates) != n
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrTemplateNotFound
	}
	return nil
}

func defaultSettings() *Settings {
	s := &Settings{}
	backfill(s)
	return s
}

func backfill(s *Settings) {
	if s.SchemaVersion == 0 {
		s.SchemaVersion = schemaVersion
	}
	if !s.Active.Known() {
		s.Active = inference.ProviderOpenAI
	}
	if s.Providers == nil {
		s.Providers = make(map[inference.Provider]inference.Config, len(inference.Providers))
	}
	for _, p := range inference.Providers {
		c := s.Providers[p]
		c.Provider = p
		s.Providers[p] = c
	}
	if s.Thresholds == (assets.Thresholds{}) {
		s.Thresholds = assets.DefaultThresholds
	}
	if s.Compression == "" || !s.Compression.Valid() {
		s.Compression = charx.CompressionDefault
	}
	if s.Parallelism <= 0 {
		s.Parallelism = assets.DefaultParallelism
	}
	if s.Templates == nil {
		s.Templates = []PromptTemplate{}
	}
	if s.UI.Theme != "light" && s.UI.Theme != "dark" {
		s.UI.Theme = "light"
	}
	if s.UI.Language == "" {
		s.UI.Language = "en"
	}
}
