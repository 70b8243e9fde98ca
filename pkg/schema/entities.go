package schema

import (
	"slices"
	"strings"
	"time"
)

// CharacterRecord is the card being built by a workflow session.
type CharacterRecord struct {
	Name                    string     `json:"name"`
	Nickname                string     `json:"nickname,omitzero"`
	Description             string     `json:"description"`
	Personality             string     `json:"personality,omitzero"`
	Scenario                string     `json:"scenario,omitzero"`
	FirstMessage            string     `json:"first_mes"`
	DialogueExample         string     `json:"mes_example"`
	SystemPrompt            string     `json:"system_prompt"`
	PostHistoryInstructions string     `json:"post_history_instructions"`
	CreatorNotes            string     `json:"creator_notes,omitzero"`
	AlternateGreetings      []string   `json:"alternate_greetings"`
	GroupOnlyGreetings      []string   `json:"group_only_greetings"`
	CreationDate            time.Time  `json:"creation_date"`
	ModificationDate        time.Time  `json:"modification_date"`
	Extensions              Extensions `json:"extensions"`
}

// scalarFields maps every accepted field spelling to its canonical name.
var scalarFields = map[string]string{
	"name":                      "name",
	"nickname":                  "nickname",
	"description":               "description",
	"personality":               "personality",
	"scenario":                  "scenario",
	"firstmessage":              "firstMessage",
	"first_mes":                 "firstMessage",
	"dialogueexample":           "dialogueExample",
	"mes_example":               "dialogueExample",
	"systemprompt":              "systemPrompt",
	"system_prompt":             "systemPrompt",
	"posthistoryinstructions":   "postHistoryInstructions",
	"post_history_instructions": "postHistoryInstructions",
	"creatornotes":              "creatorNotes",
	"creator_notes":             "creatorNotes",
}

// ScalarFields lists the canonical names of the editable string fields.
func ScalarFields() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, canonical := range scalarFields {
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	slices.Sort(out)
	return out
}

// CanonicalField resolves a field name in camelCase or card (snake_case) form.
func CanonicalField(name string) (string, bool) {
	canonical, ok := scalarFields[strings.ToLower(strings.TrimSpace(name))]
	return canonical, ok
}

// Field returns a pointer to the named scalar field.
func (r *CharacterRecord) Field(name string) (*string, bool) {
	canonical, ok := CanonicalField(name)
	if !ok {
		return nil, false
	}
	switch canonical {
	case "name":
		return &r.Name, true
	case "nickname":
		return &r.Nickname, true
	case "description":
		return &r.Description, true
	case "personality":
		return &r.Personality, true
	case "scenario":
		return &r.Scenario, true
	case "firstMessage":
		return &r.FirstMessage, true
	case "dialogueExample":
		return &r.DialogueExample, true
	case "systemPrompt":
		return &r.SystemPrompt, true
	case "postHistoryInstructions":
		return &r.PostHistoryInstructions, true
	case "creatorNotes":
		return &r.CreatorNotes, true
	}
	return nil, false
}

// Clone returns a deep copy safe to hand to readers.
func (r CharacterRecord) Clone() CharacterRecord {
	r.AlternateGreetings = slices.Clone(r.AlternateGreetings)
	r.GroupOnlyGreetings = slices.Clone(r.GroupOnlyGreetings)
	r.Extensions = r.Extensions.Clone()
	return r
}

// Touch bumps ModificationDate without ever moving it backwards.
func (r *CharacterRecord) Touch(now time.Time) {
	if now.After(r.ModificationDate) {
		r.ModificationDate = now
	}
}

type LorebookEntry struct {
	ID             int      `json:"id"`
	Keys           []string `json:"keys"`
	SecondaryKeys  []string `json:"secondary_keys,omitzero"`
	Content        string   `json:"content"`
	Name           string   `json:"name"`
	Comment        string   `json:"comment"`
	Enabled        bool     `json:"enabled"`
	InsertionOrder int      `json:"insertion_order"`
	Constant       bool     `json:"constant"`
	Selective      bool     `json:"selective"`
	CaseSensitive  bool     `json:"case_sensitive"`
	UseRegex       bool     `json:"use_regex"`
	Extensions     RawMap   `json:"extensions,omitzero"`
}

func (e LorebookEntry) Clone() LorebookEntry {
	e.Keys = slices.Clone(e.Keys)
	e.SecondaryKeys = slices.Clone(e.SecondaryKeys)
	e.Extensions = e.Extensions.Clone()
	return e
}

// Category is the semantic bucket an uploaded asset is filed under.
type Category string

const (
	CategoryProfile Category = "profile"
	CategoryEmotion Category = "emotion"
	CategoryAdult   Category = "adult"
	CategoryEtc     Category = "etc"
)

var Categories = []Category{CategoryProfile, CategoryEmotion, CategoryAdult, CategoryEtc}

func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

// ParseCategory normalizes a model or user supplied category, defaulting to etc.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c.Valid() {
		return c
	}
	return CategoryEtc
}

type AssetRenameResult struct {
	OriginalFileName  string   `json:"originalFileName"`
	SuggestedFileName string   `json:"suggestedFileName"`
	Category          Category `json:"category"`
	Confidence        float64  `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
	ExtractedKeyword  string   `json:"extractedKeyword"`
}

// AssetFile is an uploaded or extracted file held in memory.
type AssetFile struct {
	Name string `json:"name"`
	MIME string `json:"mime,omitzero"`
	Data []byte `json:"-"`
}

type ModificationRequest struct {
	Stage           int    `json:"stage"`
	Field           string `json:"field"`
	CurrentValue    string `json:"currentValue"`
	RequestedChange string `json:"requestedChange"`
	Reason          string `json:"reason"`
}

// ModificationRecord is one applied entry of the modification history.
type ModificationRecord struct {
	ModificationRequest
	Mode             string    `json:"mode"`
	PreviousValue    string    `json:"previousValue"`
	AppliedValue     string    `json:"appliedValue"`
	Explanation      string    `json:"explanation,omitzero"`
	ConsistencyCheck string    `json:"consistencyCheck,omitzero"`
	Diff             string    `json:"diff,omitzero"`
	AppliedAt        time.Time `json:"appliedAt"`
}
