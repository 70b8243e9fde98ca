// Package lorebook turns model output into normalized lorebook entries.
package lorebook

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"cardforge/pkg/extract"
	"cardforge/pkg/schema"
	"cardforge/pkg/utils"
)

// RawEntry is a lorebook entry as models actually write it: keys may be a
// comma separated string and insertion_order may be quoted.
type RawEntry struct {
	Keys           flexStrings   `json:"keys"`
	Key            flexStrings   `json:"key"`
	Content        string        `json:"content"`
	Name           string        `json:"name"`
	Comment        string        `json:"comment"`
	Enabled        *bool         `json:"enabled"`
	InsertionOrder flexInt       `json:"insertion_order"`
	Constant       bool          `json:"constant"`
	Selective      bool          `json:"selective"`
	CaseSensitive  bool          `json:"case_sensitive"`
	UseRegex       bool          `json:"use_regex"`
	Extensions     schema.RawMap `json:"extensions"`
}

type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = strings.Split(s, ",")
	return nil
}

type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexInt{Value: int(n), Set: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			*f = flexInt{Value: n, Set: true}
		}
	}
	return nil
}

// Result is the outcome of parsing a lorebook reply.
type Result struct {
	Entries []schema.LorebookEntry
	// Heuristic is set when the entries were recovered from prose because no
	// JSON could be parsed.
	Heuristic bool
}

// Parse extracts lorebook entries from a model reply. It accepts an object
// with a lorebook (or entries) array or a bare array. Prose sections are the
// last resort when neither yields an entry.
func Parse(text string) (Result, error) {
	var reply struct {
		Lorebook []RawEntry `json:"lorebook"`
		Entries  []RawEntry `json:"entries"`
	}
	objErr := extract.Decode(text, &reply)
	if objErr == nil {
		raw := reply.Lorebook
		if len(raw) == 0 {
			raw = reply.Entries
		}
		if entries := FromRaw(raw); len(entries) > 0 {
			return Result{Entries: entries}, nil
		}
	}

	var bare []RawEntry
	if err := extract.DecodeArray(text, &bare); err == nil {
		if entries := FromRaw(bare); len(entries) > 0 {
			return Result{Entries: entries}, nil
		}
	}

	if entries := FromSections(extract.Sections(text)); len(entries) > 0 {
		return Result{Entries: entries, Heuristic: true}, nil
	}
	var pe *extract.ParseError
	if errors.As(objErr, &pe) {
		return Result{}, pe
	}
	return Result{}, &extract.ParseError{Raw: text, Err: errors.New("no lorebook entries found")}
}

// FromRaw normalizes model entries, dropping those without content.
func FromRaw(raw []RawEntry) []schema.LorebookEntry {
	out := make([]schema.LorebookEntry, 0, len(raw))
	for _, r := range raw {
		e := schema.LorebookEntry{
			Keys:          append(r.Keys, r.Key...),
			Content:       strings.TrimSpace(r.Content),
			Name:          strings.TrimSpace(r.Name),
			Comment:       strings.TrimSpace(r.Comment),
			Enabled:       r.Enabled == nil || *r.Enabled,
			Constant:      r.Constant,
			Selective:     r.Selective,
			CaseSensitive: r.CaseSensitive,
			UseRegex:      r.UseRegex,
			Extensions:    r.Extensions,
		}
		if r.InsertionOrder.Set {
			e.InsertionOrder = r.InsertionOrder.Value
		}
		if e, ok := Normalize(e); ok {
			out = append(out, e)
		}
	}
	return renumber(out)
}

// FromSections builds degraded entries from prose sections. They are always
// active and banded by keyword. Sections that are themselves JSON are skipped.
func FromSections(sections []extract.Section) []schema.LorebookEntry {
	out := make([]schema.LorebookEntry, 0, len(sections))
	for _, s := range sections {
		if strings.HasPrefix(s.Content, "{") || strings.HasPrefix(s.Content, "[") {
			continue
		}
		out = append(out, schema.LorebookEntry{
			Keys:           []string{s.Title},
			Content:        s.Content,
			Name:           s.Title,
			Comment:        "recovered from unstructured response",
			Enabled:        true,
			Constant:       true,
			InsertionOrder: Band(s.Title, s.Content),
		})
	}
	return renumber(out)
}

// Normalize cleans one entry: keys are trimmed and deduplicated, a missing
// name or key set is derived from the other, and an insertion order outside
// 1..100 is inferred from the text. Entries without content are rejected.
func Normalize(e schema.LorebookEntry) (schema.LorebookEntry, bool) {
	e.Content = strings.TrimSpace(e.Content)
	if e.Content == "" {
		return e, false
	}
	e.Name = strings.TrimSpace(e.Name)
	e.Keys = uniqueKeys(e.Keys)
	if len(e.Keys) == 0 {
		if e.Name == "" {
			e.Name = utils.LimitStr(firstLine(e.Content), 40)
		}
		e.Keys = []string{e.Name}
	}
	if e.Name == "" {
		e.Name = e.Keys[0]
	}
	if e.InsertionOrder < 1 || e.InsertionOrder > 100 {
		e.InsertionOrder = Band(e.Name, e.Content)
	}
	return e, true
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		lk := strings.ToLower(k)
		if _, ok := seen[lk]; ok {
			continue
		}
		seen[lk] = struct{}{}
		out = append(out, k)
	}
	return out
}

// SharedKeys lists, for every key used by more than one entry, the names of
// those entries in order. Keys compare case-insensitively.
func SharedKeys(entries []schema.LorebookEntry) map[string][]string {
	owners := make(map[string][]string)
	var order []string
	for _, e := range entries {
		for _, k := range uniqueKeys(e.Keys) {
			lk := strings.ToLower(k)
			if _, ok := owners[lk]; !ok {
				order = append(order, lk)
			}
			owners[lk] = append(owners[lk], e.Name)
		}
	}
	out := make(map[string][]string)
	for _, k := range order {
		if len(owners[k]) > 1 {
			out[k] = owners[k]
		}
	}
	return out
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

func renumber(entries []schema.LorebookEntry) []schema.LorebookEntry {
	for i := range entries {
		entries[i].ID = i
	}
	return entries
}
