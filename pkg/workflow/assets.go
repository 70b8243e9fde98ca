package workflow

import (
	"context"
	"fmt"
	"strings"

	"cardforge/pkg/assets"
	"cardforge/pkg/schema"
)

// ManualNames maps category to original file name to the desired name.
type ManualNames map[schema.Category]map[string]string

// lookup returns the first usable manual name for a file.
func (m ManualNames) lookup(original string) (string, schema.Category, bool) {
	for _, c := range schema.Categories {
		if name := strings.TrimSpace(m[c][original]); name != "" {
			if _, ok := assets.CleanName(name, original); ok {
				return name, c, true
			}
		}
	}
	return "", "", false
}

type AssetInput struct {
	Files  []schema.AssetFile
	Manual ManualNames
	// UseAI classifies files without a manual name through the model instead
	// of keeping their original names.
	UseAI bool
}

type AssetResult struct {
	Total      int                     `json:"totalAssets"`
	Renamed    int                     `json:"renamedAssets"`
	Categories map[schema.Category]int `json:"categories"`
	Summary    assets.Summary          `json:"summary"`
}

// ProcessAssets runs stage 3: every file is renamed, the dynamic asset
// extension is merged into the record and usage instructions are written to
// post-history instructions.
func (s *Session) ProcessAssets(ctx context.Context, in AssetInput) ([]schema.AssetRenameResult, error) {
	var cc assets.Context
	token, inf, err := s.begin(StageAssets, func() error {
		if len(in.Files) == 0 {
			return &PreconditionError{Stage: StageAssets, Field: "files", Reason: "no files uploaded"}
		}
		cc = assets.Context{CharacterName: s.record.Name, CharacterContext: s.record.Description}
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]schema.AssetRenameResult, len(in.Files))
	var pending []int
	for i, f := range in.Files {
		if name, c, ok := in.Manual.lookup(f.Name); ok {
			results[i] = assets.Manual(f.Name, name, c)
			continue
		}
		if in.UseAI && inf != nil {
			pending = append(pending, i)
			continue
		}
		results[i] = assets.Keep(f.Name)
	}
	if len(pending) > 0 {
		files := make([]schema.AssetFile, len(pending))
		for j, i := range pending {
			files[j] = in.Files[i]
		}
		classified := assets.NewClassifier(inf, s.logger).ClassifyAll(ctx, files, cc, s.parallel)
		for j, i := range pending {
			results[i] = classified[j]
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.current(StageAssets, token); err != nil {
		return nil, err
	}

	reg := assets.NewRegistry()
	for i, f := range in.Files {
		reg.Put(f, results[i])
	}
	s.registry = reg
	s.integrateAssets()

	summary := assets.Summarize(reg.Results(), s.thresh)
	for _, name := range summary.Warnings {
		s.logger.Warn("low confidence asset name", "file", name)
	}
	result := AssetResult{
		Total:      summary.Total,
		Renamed:    summary.Renamed,
		Categories: summary.Categories,
		Summary:    summary,
	}
	if err := s.complete(StageAssets, result, nil); err != nil {
		return nil, err
	}
	return reg.Results(), nil
}

// OverrideAsset replaces the result for one processed file with a manual
// choice and re-integrates the dynamic assets.
func (s *Session) OverrideAsset(original, name string, category schema.Category) (schema.AssetRenameResult, error) {
	if _, ok := assets.CleanName(name, original); !ok {
		return schema.AssetRenameResult{}, &PreconditionError{Stage: StageAssets, Field: "name", Reason: "must leave a usable file name"}
	}
	if !category.Valid() {
		return schema.AssetRenameResult{}, &PreconditionError{Stage: StageAssets, Field: "category", Reason: fmt.Sprintf("unknown category %q", category)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.registry.Get(original)
	if !ok {
		return schema.AssetRenameResult{}, &PreconditionError{Stage: StageAssets, Field: "file", Reason: fmt.Sprintf("%q was not processed", original)}
	}
	res := s.registry.Put(entry.File, assets.Override(entry.Result, name, category))
	s.integrateAssets()
	return res, nil
}

// integrateAssets writes the registry into the record. s.mu must be held.
func (s *Session) integrateAssets() {
	tokens := s.registry.Tokens()
	dyn := &schema.DynamicAssets{
		Enabled:       true,
		EmotionAssets: tokens[schema.CategoryEmotion],
		AdultAssets:   tokens[schema.CategoryAdult],
		ProfileAssets: tokens[schema.CategoryProfile],
		EtcAssets:     tokens[schema.CategoryEtc],
	}
	dyn.AssetList = make([]string, 0, s.registry.Len())
	for _, c := range []schema.Category{schema.CategoryEmotion, schema.CategoryAdult, schema.CategoryProfile, schema.CategoryEtc} {
		dyn.AssetList = append(dyn.AssetList, tokens[c]...)
	}

	if s.record.Extensions.Risu == nil {
		s.record.Extensions.Risu = &schema.RisuExtension{}
	}
	s.record.Extensions.Risu.DynamicAssets = dyn
	s.record.PostHistoryInstructions = assetInstructions(dyn)
	s.touch()
}

func assetInstructions(d *schema.DynamicAssets) string {
	var b strings.Builder
	b.WriteString("## Dynamic assets\n")
	b.WriteString("Show an image by writing its asset name inside an img tag, for example <img src=\"name\">.\n")
	b.WriteString("Use only the names listed below, without a file extension.\n")

	sections := []struct {
		title  string
		tokens []string
		hint   string
	}{
		{"Profile", d.ProfileAssets, "when introducing the character"},
		{"Emotions", d.EmotionAssets, "when the character's mood matches"},
		{"Adult", d.AdultAssets, "only in explicit scenes"},
		{"Other", d.EtcAssets, "when the scene calls for it"},
	}
	for _, sec := range sections {
		if len(sec.tokens) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n### %s (%s)\n", sec.title, sec.hint)
		b.WriteString("Available: " + strings.Join(sec.tokens, ", ") + "\n")
		fmt.Fprintf(&b, "Example: <img src=\"%s\">\n", sec.tokens[0])
	}

	b.WriteString("\n### Rules\n")
	b.WriteString("- Place at most one image per message.\n")
	b.WriteString("- Put the tag on its own line, before or after the text it illustrates.\n")
	b.WriteString("- Never invent asset names.\n")
	return b.String()
}
