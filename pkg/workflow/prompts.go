package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"cardforge/pkg/schema"
)

type OutputFormat string

const (
	FormatNarrative OutputFormat = "narrative"
	FormatSheet     OutputFormat = "sheet"
	FormatBoth      OutputFormat = "both"
)

type DetailLevel string

const (
	DetailSimple   DetailLevel = "simple"
	DetailNormal   DetailLevel = "normal"
	DetailDetailed DetailLevel = "detailed"
)

var (
	ifBlock     = regexp.MustCompile(`(?s)\{\{#if\s+(\w+)\s*\}\}(.*?)\{\{/if\}\}`)
	placeholder = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)
)

// Render fills a custom prompt template. {{#if var}}...{{/if}} keeps its body
// only when var is non-blank, then {{var}} is replaced by its value. Unknown
// variables render empty.
func Render(tmpl string, vars map[string]string) string {
	out := ifBlock.ReplaceAllStringFunc(tmpl, func(m string) string {
		sub := ifBlock.FindStringSubmatch(m)
		if strings.TrimSpace(vars[sub[1]]) == "" {
			return ""
		}
		return sub[2]
	})
	return placeholder.ReplaceAllStringFunc(out, func(m string) string {
		return vars[placeholder.FindStringSubmatch(m)[1]]
	})
}

const characterSystemPrompt = `You are a character designer writing cards for roleplay chat applications.
Reply with a single JSON object and nothing else. Do not wrap it in commentary.
Inside JSON strings use \n for line breaks and escape double quotes.`

func (b Brief) vars() map[string]string {
	return map[string]string{
		"description":   b.Description,
		"name":          b.Name,
		"age":           b.Age,
		"gender":        b.Gender,
		"setting":       b.Setting,
		"characterType": b.CharacterType,
		"format":        string(b.Format),
		"detail":        string(b.Detail),
		"language":      b.Language,
	}
}

func characterPrompt(b Brief) string {
	if b.CustomPrompt != "" {
		return Render(b.CustomPrompt, b.vars())
	}

	var sb strings.Builder
	sb.WriteString("# Character generation\n\nCreate a character from the following brief.\n\n## Brief\n")
	sb.WriteString(strings.TrimSpace(b.Description))
	sb.WriteString("\n\n## Basics\n")
	fmt.Fprintf(&sb, "- Name: %s\n", cmpOr(b.Name, "choose a fitting name"))
	fmt.Fprintf(&sb, "- Age: %s\n", cmpOr(b.Age, "20s to 30s"))
	fmt.Fprintf(&sb, "- Gender: %s\n", cmpOr(b.Gender, "whatever fits the setting"))
	fmt.Fprintf(&sb, "- Setting: %s\n", cmpOr(b.Setting, "modern"))
	fmt.Fprintf(&sb, "- Character type: %s\n", cmpOr(b.CharacterType, "single"))

	sb.WriteString("\n## Requirements\n")
	switch b.Format {
	case FormatSheet:
		sb.WriteString("- Write the description as a structured sheet with labelled lines (Appearance:, Personality:, Background:, Current situation:).\n")
	case FormatBoth:
		sb.WriteString("- Open the description with a narrative paragraph, then follow it with a structured sheet of labelled lines.\n")
	default:
		sb.WriteString("- Write the description as flowing narrative prose.\n")
	}
	switch b.Detail {
	case DetailSimple:
		sb.WriteString("- Keep the description short, around 100 to 150 words.\n")
	case DetailDetailed:
		sb.WriteString("- Be thorough, around 500 to 700 words, covering habits, history and relationships.\n")
	default:
		sb.WriteString("- Aim for around 300 to 400 words.\n")
	}
	sb.WriteString("- Put appearance, personality, background and current situation in the description; do not use separate personality or scenario fields.\n")
	if b.Language != "" {
		fmt.Fprintf(&sb, "- Write every value in %s.\n", b.Language)
	}

	sb.WriteString("\n## Response format\n```json\n")
	fmt.Fprintf(&sb, `{
  "name": %q,
  "description": "the full character description",
  "first_mes": "a natural first message in the character's voice (50-100 words)",
  "mes_example": "example dialogue showing how the character talks"
}`, cmpOr(b.Name, "character name"))
	sb.WriteString("\n```\n\nSchema:\n")
	sb.WriteString(schema.CharacterFormat.JSON())
	return sb.String()
}

const lorebookSystemPrompt = `You build lorebooks for roleplay characters. A lorebook entry is a fact that is injected into the chat when one of its keys appears.
Reply with a single JSON object and nothing else.`

func lorebookPrompt(r schema.CharacterRecord, in LorebookInput) string {
	vars := map[string]string{
		"name":         r.Name,
		"description":  r.Description,
		"requirements": in.Requirements,
	}
	if in.CustomPrompt != "" {
		return Render(in.CustomPrompt, vars)
	}

	var sb strings.Builder
	sb.WriteString("# Lorebook generation\n\nBuild a lorebook for this character.\n\n## Character\n")
	fmt.Fprintf(&sb, "- Name: %s\n- Description: %s\n", r.Name, r.Description)
	if req := strings.TrimSpace(in.Requirements); req != "" {
		fmt.Fprintf(&sb, "\n## Special requirements\n%s\n", req)
	}
	sb.WriteString(`
## Entries
Write at least five entries covering these areas:
1. World setting: the rules and nature of the character's world
2. Locations: where the character lives and spends time
3. Relationships: family, friends, rivals and colleagues
4. Culture and society: customs and social structure
5. Special abilities: anything unique to the character

## insertion_order
- 1-10: core identity
- 11-30: world setting
- 31-50: locations
- 51-70: relationships
- 71-90: culture and society
- 91-100: special abilities

## JSON rules
- No raw line breaks inside strings; use \n.
- Escape double quotes as \".
- No trailing commas.
- insertion_order is a number.

## Response format
`)
	sb.WriteString("```json\n")
	sb.WriteString(`{
  "lorebook": [
    {
      "keys": ["keyword", "another keyword"],
      "content": "what the character knows or what is true about this topic",
      "name": "entry title",
      "comment": "short note for the card author",
      "enabled": true,
      "insertion_order": 20,
      "constant": false,
      "selective": false,
      "case_sensitive": false,
      "use_regex": false,
      "extensions": {}
    }
  ]
}`)
	sb.WriteString("\n```\n")
	return sb.String()
}

const modificationSystemPrompt = `You edit character cards. Apply the requested change precisely while keeping the rest of the character consistent.
Reply with a single JSON object and nothing else.`

func modificationPrompt(r schema.CharacterRecord, m Modification) string {
	vars := map[string]string{
		"name":            r.Name,
		"field":           m.Field,
		"currentValue":    m.CurrentValue,
		"requestedChange": m.RequestedChange,
		"reason":          m.Reason,
	}
	if m.CustomPrompt != "" {
		return Render(m.CustomPrompt, vars)
	}

	var sb strings.Builder
	sb.WriteString("# Modification request\n\n")
	fmt.Fprintf(&sb, "Character: %s\n\n", r.Name)
	fmt.Fprintf(&sb, "- Field: %s\n- Current value: %s\n- Requested change: %s\n", m.Field, m.CurrentValue, m.RequestedChange)
	if m.Reason != "" {
		fmt.Fprintf(&sb, "- Reason: %s\n", m.Reason)
	}
	sb.WriteString(`
## Guidelines
1. Apply the requested change exactly.
2. Keep the character consistent with the rest of the card.
3. Preserve tone and style unless the change asks otherwise.

## Response format
`)
	sb.WriteString("```json\n")
	sb.WriteString(`{
  "modifiedValue": "the new value of the field",
  "explanation": "what was changed",
  "consistencyCheck": "how the change fits the character"
}`)
	sb.WriteString("\n```\n")
	return sb.String()
}

func cmpOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
