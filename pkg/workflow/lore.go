package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"cardforge/pkg/diff"
	"cardforge/pkg/inference"
	"cardforge/pkg/lorebook"
	"cardforge/pkg/schema"
)

type LorebookInput struct {
	Requirements string `json:"requirements,omitzero"`
	CustomPrompt string `json:"customPrompt,omitzero"`
}

type LorebookResult struct {
	Entries   int  `json:"lorebookEntries"`
	Heuristic bool `json:"heuristic,omitzero"`
}

// ErrEntryNotFound is returned by entry edits for an unknown id.
var ErrEntryNotFound = errors.New("lorebook entry not found")

func (s *Session) requireCharacter(id StageID) error {
	switch {
	case strings.TrimSpace(s.record.Name) == "":
		return &PreconditionError{Stage: id, Field: "name", Reason: "run character generation first"}
	case strings.TrimSpace(s.record.Description) == "":
		return &PreconditionError{Stage: id, Field: "description", Reason: "run character generation first"}
	}
	return nil
}

// GenerateLorebook runs stage 2 and replaces the lorebook.
func (s *Session) GenerateLorebook(ctx context.Context, in LorebookInput) ([]schema.LorebookEntry, error) {
	var record schema.CharacterRecord
	token, inf, err := s.begin(StageLorebook, func() error {
		record = s.record.Clone()
		if err := s.requireCharacter(StageLorebook); err != nil {
			return err
		}
		return s.requireModel(StageLorebook)
	})
	if err != nil {
		return nil, err
	}

	res, genErr := inf.Generate(ctx, inference.Request{
		Prompt:       lorebookPrompt(record, in),
		SystemPrompt: lorebookSystemPrompt,
		Format:       &schema.LorebookFormat,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.current(StageLorebook, token); err != nil {
		return nil, err
	}
	if genErr != nil {
		return nil, s.fail(StageLorebook, token, genErr)
	}

	parsed, err := lorebook.Parse(res.Text)
	if err != nil {
		return nil, s.fail(StageLorebook, token, err)
	}
	if parsed.Heuristic {
		s.logger.Warn("lorebook recovered from unstructured reply", "entries", len(parsed.Entries))
	}
	if s.logger.GetLevel() <= log.DebugLevel {
		var b strings.Builder
		diff.PrintEntries(&b, diff.Lorebooks(s.lorebook, parsed.Entries))
		s.logger.Debug("lorebook replaced", "entries", len(parsed.Entries), "diff", b.String())
	}

	s.lorebook = parsed.Entries
	s.nextID = len(parsed.Entries)
	s.final = nil
	s.warnSharedKeys()
	result := LorebookResult{Entries: len(parsed.Entries), Heuristic: parsed.Heuristic}
	if err := s.complete(StageLorebook, result, usageOf(res)); err != nil {
		return nil, err
	}
	return cloneEntries(s.lorebook), nil
}

// UpdateEntry replaces the entry with the given id. The entry is normalized
// and keeps its id.
func (s *Session) UpdateEntry(id int, e schema.LorebookEntry) (schema.LorebookEntry, error) {
	e, ok := lorebook.Normalize(e.Clone())
	if !ok {
		return schema.LorebookEntry{}, &PreconditionError{Stage: StageLorebook, Field: "content", Reason: "must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.entryIndex(id)
	if i < 0 {
		return schema.LorebookEntry{}, fmt.Errorf("%w: %d", ErrEntryNotFound, id)
	}
	e.ID = id
	s.lorebook[i] = e
	s.final = nil
	s.warnSharedKeys()
	return e.Clone(), nil
}

// AddEntry appends an entry and assigns it a fresh id.
func (s *Session) AddEntry(e schema.LorebookEntry) (schema.LorebookEntry, error) {
	e, ok := lorebook.Normalize(e.Clone())
	if !ok {
		return schema.LorebookEntry{}, &PreconditionError{Stage: StageLorebook, Field: "content", Reason: "must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextID
	s.nextID++
	s.lorebook = append(s.lorebook, e)
	s.final = nil
	s.warnSharedKeys()
	return e.Clone(), nil
}

func (s *Session) DeleteEntry(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.entryIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %d", ErrEntryNotFound, id)
	}
	s.lorebook = append(s.lorebook[:i], s.lorebook[i+1:]...)
	s.final = nil
	return nil
}

// warnSharedKeys logs keys that trigger more than one entry. s.mu must be
// held.
func (s *Session) warnSharedKeys() {
	for k, names := range lorebook.SharedKeys(s.lorebook) {
		s.logger.Warn("lorebook key shared by several entries", "key", k, "entries", names)
	}
}

func (s *Session) entryIndex(id int) int {
	for i, e := range s.lorebook {
		if e.ID == id {
			return i
		}
	}
	return -1
}
