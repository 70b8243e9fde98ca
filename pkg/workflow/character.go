package workflow

import (
	"context"
	"errors"
	"strings"

	"cardforge/pkg/extract"
	"cardforge/pkg/inference"
	"cardforge/pkg/schema"
)

// Brief is the input of stage 1. Only Description is required; the other
// fields shape the prompt.
type Brief struct {
	Description   string       `json:"description"`
	Name          string       `json:"name,omitzero"`
	Age           string       `json:"age,omitzero"`
	Gender        string       `json:"gender,omitzero"`
	Setting       string       `json:"setting,omitzero"`
	CharacterType string       `json:"characterType,omitzero"`
	Format        OutputFormat `json:"format,omitzero"`
	Detail        DetailLevel  `json:"detail,omitzero"`
	Language      string       `json:"language,omitzero"`
	CustomPrompt  string       `json:"customPrompt,omitzero"`
}

type CharacterResult struct {
	Name string `json:"name"`
}

// begin starts a stage under the lock after check passes and returns the
// invocation token and the backend to call.
func (s *Session) begin(id StageID, check func() error) (uint64, inference.Inferencer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if check != nil {
		if err := check(); err != nil {
			return 0, nil, err
		}
	}
	token, err := s.start(id)
	if err != nil {
		return 0, nil, err
	}
	s.logger.Info("stage started", "stage", id, "token", token)
	return token, s.inf, nil
}

// GenerateCharacter runs stage 1. The record is only modified when the
// reply is parsed successfully.
func (s *Session) GenerateCharacter(ctx context.Context, b Brief) (schema.CharacterRecord, error) {
	token, inf, err := s.begin(StageCharacter, func() error {
		if strings.TrimSpace(b.Description) == "" {
			return &PreconditionError{Stage: StageCharacter, Field: "brief", Reason: "must not be empty"}
		}
		return s.requireModel(StageCharacter)
	})
	if err != nil {
		return schema.CharacterRecord{}, err
	}

	res, genErr := inf.Generate(ctx, inference.Request{
		Prompt:       characterPrompt(b),
		SystemPrompt: characterSystemPrompt,
		Format:       &schema.CharacterFormat,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.current(StageCharacter, token); err != nil {
		return schema.CharacterRecord{}, err
	}
	if genErr != nil {
		return schema.CharacterRecord{}, s.fail(StageCharacter, token, genErr)
	}

	var reply schema.CharacterReply
	if err := extract.Decode(res.Text, &reply); err != nil {
		return schema.CharacterRecord{}, s.fail(StageCharacter, token, err)
	}
	reply.Name = cmpOr(strings.TrimSpace(reply.Name), strings.TrimSpace(b.Name))
	reply.Description = strings.TrimSpace(reply.Description)
	if reply.Name == "" || reply.Description == "" {
		return schema.CharacterRecord{}, s.fail(StageCharacter, token,
			&extract.ParseError{Raw: res.Text, Err: errors.New("reply is missing name or description")})
	}

	now := s.now()
	s.record.Name = reply.Name
	s.record.Description = reply.Description
	s.record.FirstMessage = strings.TrimSpace(reply.FirstMes)
	s.record.DialogueExample = strings.TrimSpace(reply.MesExample)
	s.record.CreationDate = now
	s.touch()

	if err := s.complete(StageCharacter, CharacterResult{Name: reply.Name}, usageOf(res)); err != nil {
		return schema.CharacterRecord{}, err
	}
	s.logger.Info("character generated", "name", reply.Name)
	return s.record.Clone(), nil
}

func usageOf(res *inference.Response) *inference.TokenUsage {
	if res == nil {
		return nil
	}
	return res.Usage
}
