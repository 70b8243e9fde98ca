package assets

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"cardforge/pkg/schema"
)

type Entry struct {
	File   schema.AssetFile
	Result schema.AssetRenameResult
}

// Registry keeps processed assets in upload order, one per original file
// name. It is not safe for concurrent use.
type Registry struct {
	entries []Entry
	index   map[string]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Put stores a result, replacing any earlier one for the same original file.
// A suggested name whose token is already taken by another file gets a
// numeric suffix. The stored result is returned.
func (r *Registry) Put(file schema.AssetFile, res schema.AssetRenameResult) schema.AssetRenameResult {
	res.OriginalFileName = file.Name
	res.SuggestedFileName = r.unique(file.Name, res.SuggestedFileName)

	if i, ok := r.index[file.Name]; ok {
		r.entries[i] = Entry{File: file, Result: res}
		return res
	}
	r.index[file.Name] = len(r.entries)
	r.entries = append(r.entries, Entry{File: file, Result: res})
	return res
}

func (r *Registry) unique(original, name string) string {
	taken := func(candidate string) bool {
		tok := strings.ToLower(Token(candidate))
		for _, e := range r.entries {
			if e.File.Name != original && strings.ToLower(Token(e.Result.SuggestedFileName)) == tok {
				return true
			}
		}
		return false
	}
	if !taken(name) {
		return name
	}
	for n := 2; ; n++ {
		candidate := WithExtension(fmt.Sprintf("%s-%d", Token(name), n), original)
		if !taken(candidate) {
			return candidate
		}
	}
}

func (r *Registry) Get(original string) (Entry, bool) {
	i, ok := r.index[original]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

func (r *Registry) Len() int { return len(r.entries) }

func (r *Registry) Entries() []Entry {
	return slices.Clone(r.entries)
}

func (r *Registry) Results() []schema.AssetRenameResult {
	out := make([]schema.AssetRenameResult, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Result
	}
	return out
}

// Tokens groups asset tokens by category in upload order.
func (r *Registry) Tokens() map[schema.Category][]string {
	out := make(map[schema.Category][]string, len(schema.Categories))
	for _, c := range schema.Categories {
		out[c] = []string{}
	}
	for _, e := range r.entries {
		out[e.Result.Category] = append(out[e.Result.Category], Token(e.Result.SuggestedFileName))
	}
	return out
}

// RenamedAssets is the list written into the workflow extension of a card.
func (r *Registry) RenamedAssets() []schema.RenamedAsset {
	out := make([]schema.RenamedAsset, len(r.entries))
	for i, e := range r.entries {
		out[i] = schema.RenamedAsset{
			OriginalName: e.Result.OriginalFileName,
			RisuName:     Token(e.Result.SuggestedFileName),
			Category:     e.Result.Category,
			Confidence:   e.Result.Confidence,
		}
	}
	return out
}

// Mapping returns original file name to final file name.
func (r *Registry) Mapping() map[string]string {
	out := make(map[string]string, len(r.entries))
	for _, e := range r.entries {
		out[e.Result.OriginalFileName] = e.Result.SuggestedFileName
	}
	return out
}

// Clone copies the registry. File data is shared.
func (r *Registry) Clone() *Registry {
	return &Registry{
		entries: slices.Clone(r.entries),
		index:   maps.Clone(r.index),
	}
}
