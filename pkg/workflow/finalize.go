package workflow

import (
	"slices"

	"cardforge/pkg/assets"
	"cardforge/pkg/schema"
)

const (
	workflowName    = "five-stage"
	workflowVersion = "1.0"
)

// Final is the assembled output of stage 5.
type Final struct {
	Record   schema.CharacterRecord `json:"record"`
	Lorebook []schema.LorebookEntry `json:"lorebook"`
	Assets   []assets.Entry         `json:"-"`
	Summary  assets.Summary         `json:"assetSummary"`
}

func (f Final) clone() Final {
	f.Record = f.Record.Clone()
	f.Lorebook = cloneEntries(f.Lorebook)
	f.Assets = slices.Clone(f.Assets)
	return f
}

// Card converts the final record into the card data written to archives.
func (f Final) Card() schema.CardData {
	return schema.NewCard(f.Record, f.Lorebook)
}

// Finalize runs stage 5. It makes no model calls and leaves the live record
// untouched; the returned record carries the workflow summary extension.
func (s *Session) Finalize() (Final, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Finalize runs atomically under the lock, so it takes no invocation
	// token and never supersedes a model call in flight.
	st := s.stage(StageFinalize)
	if err := st.advance(InProgress); err != nil {
		return Final{}, err
	}
	st.Errors = nil

	results := s.registry.Results()
	summary := assets.Summarize(results, s.thresh)
	record := s.record.Clone()
	record.Extensions.Workflow = &schema.WorkflowExtension{
		ModificationHistory: slices.Clone(s.history),
		Lorebook:            cloneEntries(s.lorebook),
		AssetSummary: schema.AssetSummary{
			TotalAssets: summary.Total,
			Categories:  summary.Categories,
		},
		RenamedAssets: s.registry.RenamedAssets(),
		Metadata: schema.WorkflowMetadata{
			GeneratedAt: s.now(),
			Workflow:    workflowName,
			Version:     workflowVersion,
		},
	}
	if record.Extensions.Workflow.ModificationHistory == nil {
		record.Extensions.Workflow.ModificationHistory = []schema.ModificationRecord{}
	}
	if record.Extensions.Workflow.Lorebook == nil {
		record.Extensions.Workflow.Lorebook = []schema.LorebookEntry{}
	}

	final := Final{
		Record:   record,
		Lorebook: cloneEntries(s.lorebook),
		Assets:   s.registry.Entries(),
		Summary:  summary,
	}
	if err := s.complete(StageFinalize, summary, nil); err != nil {
		return Final{}, &StageError{Stage: StageFinalize, Err: err}
	}
	s.final = &final
	return final.clone(), nil
}
