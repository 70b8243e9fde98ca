package workflow

import (
	"fmt"
	"slices"

	"cardforge/pkg/inference"
)

type StageID int

const (
	StageCharacter StageID = iota + 1
	StageLorebook
	StageAssets
	StageModification
	StageFinalize
)

var StageIDs = []StageID{StageCharacter, StageLorebook, StageAssets, StageModification, StageFinalize}

func (id StageID) Valid() bool {
	return id >= StageCharacter && id <= StageFinalize
}

type Status string

const (
	Pending    Status = "pending"
	InProgress Status = "in_progress"
	Completed  Status = "completed"
	Failed     Status = "failed"
)

// transitions lists the legal moves out of each status. A stage that is
// already in progress may be restarted, which supersedes the running call.
var transitions = map[Status][]Status{
	Pending:    {InProgress},
	InProgress: {InProgress, Completed, Failed},
	Completed:  {InProgress},
	Failed:     {InProgress},
}

type Stage struct {
	ID          StageID               `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Status      Status                `json:"status"`
	Result      any                   `json:"result,omitempty"`
	Errors      []string              `json:"errors"`
	Usage       *inference.TokenUsage `json:"usage,omitempty"`
}

func (s *Stage) advance(to Status) error {
	if !slices.Contains(transitions[s.Status], to) {
		return fmt.Errorf("%w: stage %d cannot move from %s to %s", ErrInvariant, s.ID, s.Status, to)
	}
	s.Status = to
	return nil
}

func newStages() []*Stage {
	return []*Stage{
		{ID: StageCharacter, Name: "Character", Description: "Generate the base character description", Status: Pending},
		{ID: StageLorebook, Name: "Lorebook", Description: "Generate lorebook entries for the character's world", Status: Pending},
		{ID: StageAssets, Name: "Assets", Description: "Classify and rename uploaded assets", Status: Pending},
		{ID: StageModification, Name: "Modification", Description: "Apply requested changes to character fields", Status: Pending},
		{ID: StageFinalize, Name: "Finalize", Description: "Assemble the final card", Status: Pending},
	}
}
