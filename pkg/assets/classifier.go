// Package assets classifies uploaded files and computes their canonical names.
package assets

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/log"

	"cardforge/pkg/extract"
	"cardforge/pkg/inference"
	"cardforge/pkg/schema"
	"cardforge/pkg/utils"
)

const (
	FallbackConfidence = 30
	ReasonManual       = "manual"
	ReasonOverride     = "manual override"
)

// Context is what the classifier knows about the character owning the asset.
type Context struct {
	CharacterName    string
	CharacterContext string
}

type Classifier struct {
	inf    inference.Inferencer
	logger *log.Logger
}

func NewClassifier(inf inference.Inferencer, logger *log.Logger) *Classifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Classifier{inf: inf, logger: logger}
}

// Classify asks the model for a category and name. Any failure yields the
// keyword fallback instead of an error.
func (c *Classifier) Classify(ctx context.Context, file schema.AssetFile, cc Context) schema.AssetRenameResult {
	if c.inf == nil {
		return Fallback(file.Name, "no model configured")
	}

	resp, err := c.inf.Generate(ctx, inference.Request{
		Prompt:       classifyPrompt(file, cc),
		SystemPrompt: classifySystemPrompt,
		Format:       &schema.ClassificationFormat,
	})
	if err != nil {
		c.logger.Warn("asset classification failed, using fallback", "file", file.Name, "error", err)
		return Fallback(file.Name, err.Error())
	}

	var reply schema.ClassificationReply
	if err := extract.Decode(resp.Text, &reply); err != nil {
		c.logger.Warn("asset classification unparseable, using fallback", "file", file.Name, "error", err)
		c.logger.Debug("raw output", "output", resp.Text)
		return Fallback(file.Name, "unparseable response")
	}

	name, ok := CleanName(reply.SuggestedFileName, file.Name)
	if !ok {
		name = file.Name
	}
	return schema.AssetRenameResult{
		OriginalFileName:  file.Name,
		SuggestedFileName: name,
		Category:          schema.ParseCategory(reply.Category),
		Confidence:        Clamp(reply.Confidence),
		Reasoning:         strings.TrimSpace(reply.Reasoning),
		ExtractedKeyword:  strings.TrimSpace(reply.ExtractedKeyword),
	}
}

func classifyPrompt(file schema.AssetFile, cc Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File name: %s\n", Token(file.Name))
	if info := Inspect(file); info.Width > 0 {
		fmt.Fprintf(&b, "Image size: %dx%d (%s)\n", info.Width, info.Height, info.Format)
	}
	if cc.CharacterName != "" {
		fmt.Fprintf(&b, "Character: %s\n", cc.CharacterName)
	}
	if cc.CharacterContext != "" {
		fmt.Fprintf(&b, "Character context: %s\n", utils.LimitStr(cc.CharacterContext, 500))
	}
	b.WriteString("\nReply with JSON matching this schema:\n")
	b.WriteString(schema.ClassificationFormat.JSON())
	return b.String()
}

const classifySystemPrompt = `You sort image assets for a roleplay character card.
Categories:
- profile: the main portrait or avatar of the character
- emotion: expressions such as happy, sad, angry, surprised
- adult: explicit or NSFW images
- etc: backgrounds, items and anything else
Suggest a short lowercase file name without extension that names the emotion or subject (for example "smile" or "angry_shout").
Confidence is a number from 0 to 100.`

// Manual records a user supplied name. A name that leaves no usable token
// keeps the original file name.
func Manual(original, name string, category schema.Category) schema.AssetRenameResult {
	clean, ok := CleanName(name, original)
	keyword := Token(strings.TrimSpace(name))
	if !ok {
		clean, keyword = original, ""
	}
	return schema.AssetRenameResult{
		OriginalFileName:  original,
		SuggestedFileName: clean,
		Category:          category,
		Confidence:        100,
		Reasoning:         ReasonManual,
		ExtractedKeyword:  keyword,
	}
}

// Keep files the asset under etc with its original name.
func Keep(original string) schema.AssetRenameResult {
	return schema.AssetRenameResult{
		OriginalFileName:  original,
		SuggestedFileName: original,
		Category:          schema.CategoryEtc,
		Confidence:        100,
		Reasoning:         "original name kept",
	}
}

// Override replaces an earlier result with a user decision.
func Override(prev schema.AssetRenameResult, name string, category schema.Category) schema.AssetRenameResult {
	if strings.TrimSpace(name) == "" {
		name = prev.SuggestedFileName
	}
	r := Manual(prev.OriginalFileName, name, category)
	r.Reasoning = ReasonOverride
	return r
}

type keywordSet struct {
	category schema.Category
	words    []string
}

// Later sets win over earlier ones.
var fallbackKeywords = []keywordSet{
	{schema.CategoryEmotion, []string{"happy", "sad", "angry", "smile", "cry", "laugh", "joy", "fear", "surprise", "기쁨", "슬픔", "화남", "웃음", "울음", "놀람"}},
	{schema.CategoryAdult, []string{"adult", "nsfw", "sex", "nude", "성인"}},
	{schema.CategoryProfile, []string{"profile", "main", "base", "default", "프로필", "메인"}},
}

// Fallback classifies by file name keywords alone.
func Fallback(original, cause string) schema.AssetRenameResult {
	stem := Token(original)
	lower := strings.ToLower(stem)

	category := schema.CategoryEtc
	keyword := ""
	for _, set := range fallbackKeywords {
		for _, w := range set.words {
			if strings.Contains(lower, w) {
				category, keyword = set.category, w
				break
			}
		}
	}

	r := schema.AssetRenameResult{
		OriginalFileName:  original,
		SuggestedFileName: original,
		Category:          category,
		Confidence:        FallbackConfidence,
		ExtractedKeyword:  keyword,
	}
	if category == schema.CategoryEtc {
		r.Reasoning = fmt.Sprintf("fallback: no keyword matched (%s)", cause)
		return r
	}
	r.SuggestedFileName = WithExtension(string(category)+"-"+stem, original)
	r.Reasoning = fmt.Sprintf("fallback: keyword %q matched (%s)", keyword, cause)
	return r
}

func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
