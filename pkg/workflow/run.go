package workflow

import (
	"context"
)

type RunInput struct {
	Brief    Brief         `json:"brief"`
	Lorebook LorebookInput `json:"lorebook"`
	Assets   AssetInput    `json:"-"`
}

// Progress reports a stage transition during RunAll.
type Progress struct {
	Stage   StageID `json:"stage"`
	Name    string  `json:"name"`
	Status  Status  `json:"status"`
	Message string  `json:"message,omitzero"`
}

type readyResult struct {
	Message string `json:"message"`
}

// RunAll runs the stages in order: character, lorebook, assets when files
// were given, then marks modification ready and finalizes. It stops at the
// first failing stage.
func (s *Session) RunAll(ctx context.Context, in RunInput, progress func(Progress)) (Final, error) {
	if progress == nil {
		progress = func(Progress) {}
	}
	report := func(id StageID, status Status, msg string) {
		st, _ := s.Stage(id)
		progress(Progress{Stage: id, Name: st.Name, Status: status, Message: msg})
	}
	run := func(id StageID, fn func() error) error {
		report(id, InProgress, "")
		if err := fn(); err != nil {
			report(id, Failed, err.Error())
			return err
		}
		report(id, Completed, "")
		return nil
	}

	if err := run(StageCharacter, func() error {
		_, err := s.GenerateCharacter(ctx, in.Brief)
		return err
	}); err != nil {
		return Final{}, err
	}
	if err := run(StageLorebook, func() error {
		_, err := s.GenerateLorebook(ctx, in.Lorebook)
		return err
	}); err != nil {
		return Final{}, err
	}
	if len(in.Assets.Files) > 0 {
		if err := run(StageAssets, func() error {
			_, err := s.ProcessAssets(ctx, in.Assets)
			return err
		}); err != nil {
			return Final{}, err
		}
	} else {
		report(StageAssets, Pending, "no assets uploaded")
	}
	if err := run(StageModification, s.markReady); err != nil {
		return Final{}, err
	}

	var final Final
	err := run(StageFinalize, func() error {
		var err error
		final, err = s.Finalize()
		return err
	})
	return final, err
}

// markReady completes stage 4 without a modification so the UI can accept
// requests.
func (s *Session) markReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stage(StageModification)
	if st.Status == Completed {
		return nil
	}
	if err := st.advance(InProgress); err != nil {
		return err
	}
	return s.complete(StageModification, readyResult{Message: "ready for modification requests"}, nil)
}
