package schema

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

const (
	RisuKey     = "risuai"
	WorkflowKey = "fiveStageWorkflow"
)

// RawMap holds vendor data that is carried through untouched.
type RawMap map[string]json.RawMessage

func (m RawMap) Clone() RawMap {
	if m == nil {
		return nil
	}
	out := make(RawMap, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// Extensions is the vendor-namespaced block of a card. Known blocks are typed,
// anything else is kept verbatim in Other.
type Extensions struct {
	Risu     *RisuExtension
	Workflow *WorkflowExtension
	Other    RawMap
}

type RisuExtension struct {
	DynamicAssets *DynamicAssets
	Other         RawMap
}

type DynamicAssets struct {
	Enabled       bool     `json:"enabled"`
	AssetList     []string `json:"assetList"`
	EmotionAssets []string `json:"emotionAssets"`
	AdultAssets   []string `json:"adultAssets"`
	ProfileAssets []string `json:"profileAssets"`
	EtcAssets     []string `json:"etcAssets"`
}

// ByCategory returns the token list for c.
func (d *DynamicAssets) ByCategory(c Category) []string {
	switch c {
	case CategoryEmotion:
		return d.EmotionAssets
	case CategoryAdult:
		return d.AdultAssets
	case CategoryProfile:
		return d.ProfileAssets
	default:
		return d.EtcAssets
	}
}

type WorkflowExtension struct {
	ModificationHistory []ModificationRecord `json:"modificationHistory"`
	Lorebook            []LorebookEntry      `json:"lorebook"`
	AssetSummary        AssetSummary         `json:"assetSummary"`
	RenamedAssets       []RenamedAsset       `json:"renamedAssets"`
	Metadata            WorkflowMetadata     `json:"metadata"`
}

type AssetSummary struct {
	TotalAssets int              `json:"totalAssets"`
	Categories  map[Category]int `json:"categories"`
}

type RenamedAsset struct {
	OriginalName string   `json:"originalName"`
	RisuName     string   `json:"risuName"`
	Category     Category `json:"category"`
	Confidence   float64  `json:"confidence"`
}

type WorkflowMetadata struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Workflow    string    `json:"workflow"`
	Version     string    `json:"version"`
}

func (e Extensions) Clone() Extensions {
	out := Extensions{Other: e.Other.Clone()}
	if e.Risu != nil {
		r := &RisuExtension{Other: e.Risu.Other.Clone()}
		if d := e.Risu.DynamicAssets; d != nil {
			r.DynamicAssets = &DynamicAssets{
				Enabled:       d.Enabled,
				AssetList:     slices.Clone(d.AssetList),
				EmotionAssets: slices.Clone(d.EmotionAssets),
				AdultAssets:   slices.Clone(d.AdultAssets),
				ProfileAssets: slices.Clone(d.ProfileAssets),
				EtcAssets:     slices.Clone(d.EtcAssets),
			}
		}
		out.Risu = r
	}
	if w := e.Workflow; w != nil {
		out.Workflow = &WorkflowExtension{
			ModificationHistory: slices.Clone(w.ModificationHistory),
			Lorebook:            cloneEntries(w.Lorebook),
			AssetSummary: AssetSummary{
				TotalAssets: w.AssetSummary.TotalAssets,
				Categories:  maps.Clone(w.AssetSummary.Categories),
			},
			RenamedAssets: slices.Clone(w.RenamedAssets),
			Metadata:      w.Metadata,
		}
	}
	return out
}

func cloneEntries(in []LorebookEntry) []LorebookEntry {
	if in == nil {
		return nil
	}
	out := make([]LorebookEntry, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}

func (e Extensions) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Other)+2)
	for k, v := range e.Other {
		out[k] = v
	}
	if e.Risu != nil {
		out[RisuKey] = e.Risu
	}
	if e.Workflow != nil {
		out[WorkflowKey] = e.Workflow
	}
	return json.Marshal(out)
}

func (e *Extensions) UnmarshalJSON(data []byte) error {
	var raw RawMap
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Extensions{}

	if v, ok := raw[RisuKey]; ok {
		var r RisuExtension
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		e.Risu = &r
		delete(raw, RisuKey)
	}
	if v, ok := raw[WorkflowKey]; ok {
		var w WorkflowExtension
		if err := json.Unmarshal(v, &w); err != nil {
			return err
		}
		e.Workflow = &w
		delete(raw, WorkflowKey)
	}
	if len(raw) > 0 {
		e.Other = raw
	}
	return nil
}

func (r RisuExtension) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Other)+1)
	for k, v := range r.Other {
		out[k] = v
	}
	if r.DynamicAssets != nil {
		out["dynamicAssets"] = r.DynamicAssets
	}
	return json.Marshal(out)
}

func (r *RisuExtension) UnmarshalJSON(data []byte) error {
	var raw RawMap
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = RisuExtension{}
	if v, ok := raw["dynamicAssets"]; ok {
		var d DynamicAssets
		if err := json.Unmarshal(v, &d); err != nil {
			return err
		}
		r.DynamicAssets = &d
		delete(raw, "dynamicAssets")
	}
	if len(raw) > 0 {
		r.Other = raw
	}
	return nil
}
