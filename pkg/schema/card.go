package schema

import (
	"slices"
	"time"
)

const (
	SpecV3        = "chara_card_v3"
	SpecVersionV3 = "3.0"
)

// CardV3 is the manifest stored at the root of a character archive.
type CardV3 struct {
	Spec        string   `json:"spec"`
	SpecVersion string   `json:"spec_version"`
	Data        CardData `json:"data"`
}

type CardData struct {
	Name                    string         `json:"name"`
	Nickname                string         `json:"nickname,omitzero"`
	Description             string         `json:"description"`
	Personality             string         `json:"personality"`
	Scenario                string         `json:"scenario"`
	FirstMes                string         `json:"first_mes"`
	MesExample              string         `json:"mes_example"`
	CreatorNotes            string         `json:"creator_notes"`
	SystemPrompt            string         `json:"system_prompt"`
	PostHistoryInstructions string         `json:"post_history_instructions"`
	AlternateGreetings      []string       `json:"alternate_greetings"`
	GroupOnlyGreetings      []string       `json:"group_only_greetings"`
	Tags                    []string       `json:"tags"`
	Creator                 string         `json:"creator"`
	CharacterVersion        string         `json:"character_version"`
	CharacterBook           *CharacterBook `json:"character_book,omitempty"`
	Assets                  []CardAsset    `json:"assets"`
	Extensions              Extensions     `json:"extensions"`
	CreationDate            int64          `json:"creation_date,omitzero"`
	ModificationDate        int64          `json:"modification_date,omitzero"`
}

type CharacterBook struct {
	Name       string          `json:"name,omitzero"`
	Extensions RawMap          `json:"extensions"`
	Entries    []LorebookEntry `json:"entries"`
}

type CardAsset struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
	Name string `json:"name"`
	Ext  string `json:"ext"`
}

// NewCard converts a record and lorebook into manifest data. Entry ids are
// reassigned in order.
func NewCard(r CharacterRecord, entries []LorebookEntry) CardData {
	r = r.Clone()
	d := CardData{
		Name:                    r.Name,
		Nickname:                r.Nickname,
		Description:             r.Description,
		Personality:             r.Personality,
		Scenario:                r.Scenario,
		FirstMes:                r.FirstMessage,
		MesExample:              r.DialogueExample,
		CreatorNotes:            r.CreatorNotes,
		SystemPrompt:            r.SystemPrompt,
		PostHistoryInstructions: r.PostHistoryInstructions,
		AlternateGreetings:      nonNil(r.AlternateGreetings),
		GroupOnlyGreetings:      nonNil(r.GroupOnlyGreetings),
		Tags:                    []string{},
		CharacterVersion:        "1.0",
		Assets:                  []CardAsset{},
		Extensions:              r.Extensions,
	}
	if !r.CreationDate.IsZero() {
		d.CreationDate = r.CreationDate.Unix()
	}
	if !r.ModificationDate.IsZero() {
		d.ModificationDate = r.ModificationDate.Unix()
	}
	if len(entries) > 0 {
		book := &CharacterBook{Extensions: RawMap{}, Entries: make([]LorebookEntry, len(entries))}
		for i, e := range entries {
			e = e.Clone()
			e.ID = i
			book.Entries[i] = e
		}
		d.CharacterBook = book
	}
	return d
}

// Record converts manifest data back into a record.
func (d CardData) Record() CharacterRecord {
	r := CharacterRecord{
		Name:                    d.Name,
		Nickname:                d.Nickname,
		Description:             d.Description,
		Personality:             d.Personality,
		Scenario:                d.Scenario,
		FirstMessage:            d.FirstMes,
		DialogueExample:         d.MesExample,
		CreatorNotes:            d.CreatorNotes,
		SystemPrompt:            d.SystemPrompt,
		PostHistoryInstructions: d.PostHistoryInstructions,
		AlternateGreetings:      slices.Clone(d.AlternateGreetings),
		GroupOnlyGreetings:      slices.Clone(d.GroupOnlyGreetings),
		Extensions:              d.Extensions.Clone(),
	}
	if d.CreationDate > 0 {
		r.CreationDate = time.Unix(d.CreationDate, 0).UTC()
	}
	if d.ModificationDate > 0 {
		r.ModificationDate = time.Unix(d.ModificationDate, 0).UTC()
	}
	return r
}

// Entries returns the lorebook carried by the card, if any.
func (d CardData) Entries() []LorebookEntry {
	if d.CharacterBook == nil {
		return nil
	}
	return cloneEntries(d.CharacterBook.Entries)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return slices.Clone(s)
}
