package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"cardforge/pkg/diff"
	"cardforge/pkg/extract"
	"cardforge/pkg/inference"
	"cardforge/pkg/schema"
)

type Mode string

const (
	ModeManual   Mode = "manual"
	ModeAssisted Mode = "assisted"
)

type Modification struct {
	schema.ModificationRequest
	Mode         Mode   `json:"mode"`
	CustomPrompt string `json:"customPrompt,omitzero"`
}

type ModificationResult struct {
	Applied int    `json:"modificationsApplied"`
	Field   string `json:"field"`
}

// required fields may not be cleared by a modification.
var required = map[string]bool{"name": true, "description": true}

// ApplyModification runs stage 4 on a single field. In assisted mode an
// unparseable reply falls back to the requested change verbatim.
func (s *Session) ApplyModification(ctx context.Context, m Modification) (schema.ModificationRecord, error) {
	if m.Mode == "" {
		m.Mode = ModeManual
	}
	if m.Mode != ModeManual && m.Mode != ModeAssisted {
		return schema.ModificationRecord{}, &PreconditionError{Stage: StageModification, Field: "mode", Reason: fmt.Sprintf("unknown mode %q", m.Mode)}
	}

	var (
		field  string
		record schema.CharacterRecord
	)
	token, inf, err := s.begin(StageModification, func() error {
		if err := s.requireCharacter(StageModification); err != nil {
			return err
		}
		canonical, ok := schema.CanonicalField(m.Field)
		if !ok {
			return &PreconditionError{
				Stage:  StageModification,
				Field:  m.Field,
				Reason: "unknown field, expected one of " + strings.Join(schema.ScalarFields(), ", "),
			}
		}
		if m.Mode == ModeAssisted {
			if err := s.requireModel(StageModification); err != nil {
				return err
			}
		}
		field = canonical
		record = s.record.Clone()
		return nil
	})
	if err != nil {
		return schema.ModificationRecord{}, err
	}

	current, _ := record.Field(field)
	m.Field = field
	if m.CurrentValue == "" {
		m.CurrentValue = *current
	}

	value := m.RequestedChange
	var reply schema.ModificationReply
	var usage *inference.TokenUsage
	if m.Mode == ModeAssisted {
		res, genErr := inf.Generate(ctx, inference.Request{
			Prompt:       modificationPrompt(record, m),
			SystemPrompt: modificationSystemPrompt,
			Format:       &schema.ModificationFormat,
		})
		if genErr != nil {
			s.mu.Lock()
			defer s.mu.Unlock()
			if err := s.current(StageModification, token); err != nil {
				return schema.ModificationRecord{}, err
			}
			return schema.ModificationRecord{}, s.fail(StageModification, token, genErr)
		}
		usage = res.Usage
		if err := extract.Decode(res.Text, &reply); err != nil || strings.TrimSpace(reply.ModifiedValue) == "" {
			s.logger.Warn("modification reply unusable, applying requested change", "field", field, "error", err)
			reply = schema.ModificationReply{}
		} else {
			value = reply.ModifiedValue
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.current(StageModification, token); err != nil {
		return schema.ModificationRecord{}, err
	}
	if required[field] && strings.TrimSpace(value) == "" {
		return schema.ModificationRecord{}, s.fail(StageModification, token,
			fmt.Errorf("%w: %s must not be empty", errEmptyValue, field))
	}

	before := s.record.Clone()
	target, _ := s.record.Field(field)
	previous := *target
	*target = value
	s.touch()
	if s.logger.GetLevel() <= log.DebugLevel {
		var b strings.Builder
		diff.Records(before, s.record).Print(&b)
		s.logger.Debug("record changed", "diff", b.String())
	}

	rec := schema.ModificationRecord{
		ModificationRequest: m.ModificationRequest,
		Mode:                string(m.Mode),
		PreviousValue:       previous,
		AppliedValue:        value,
		Explanation:         strings.TrimSpace(reply.Explanation),
		ConsistencyCheck:    strings.TrimSpace(reply.ConsistencyCheck),
		Diff:                diff.Render(diff.Field(field, previous, value).Str),
		AppliedAt:           s.record.ModificationDate,
	}
	rec.Stage = int(StageModification)
	s.history = append(s.history, rec)

	result := ModificationResult{Applied: len(s.history), Field: field}
	if err := s.complete(StageModification, result, usage); err != nil {
		return schema.ModificationRecord{}, err
	}
	s.logger.Info("modification applied", "field", field, "mode", m.Mode)
	return rec, nil
}

var errEmptyValue = errors.New("empty value")
