// Package workflow sequences the five generation stages of a character card.
package workflow

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/segmentio/ksuid"

	"cardforge/pkg/assets"
	"cardforge/pkg/inference"
	"cardforge/pkg/schema"
)

// Session owns the state of one card generation. All methods are safe for
// concurrent use; model calls run without holding the lock.
type Session struct {
	ID string

	mu       sync.Mutex
	inf      inference.Inferencer
	logger   *log.Logger
	now      func() time.Time
	thresh   assets.Thresholds
	parallel int

	stages   []*Stage
	record   schema.CharacterRecord
	lorebook []schema.LorebookEntry
	nextID   int
	registry *assets.Registry
	history  []schema.ModificationRecord
	usage    inference.TokenUsage
	final    *Final

	// seq is the newest invocation token; latest holds the newest per stage.
	seq    uint64
	latest map[StageID]uint64
}

type Option func(*Session)

func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithThresholds(t assets.Thresholds) Option {
	return func(s *Session) { s.thresh = t }
}

// WithParallelism bounds concurrent asset classification calls.
func WithParallelism(n int) Option {
	return func(s *Session) { s.parallel = n }
}

// WithRecord seeds the session, e.g. from an imported archive.
func WithRecord(r schema.CharacterRecord, entries []schema.LorebookEntry) Option {
	return func(s *Session) {
		s.record = r.Clone()
		s.lorebook = nil
		for _, e := range entries {
			e = e.Clone()
			e.ID = s.nextID
			s.nextID++
			s.lorebook = append(s.lorebook, e)
		}
	}
}

// WithAssets seeds already named assets without touching the record.
func WithAssets(entries []assets.Entry) Option {
	return func(s *Session) {
		for _, e := range entries {
			s.registry.Put(e.File, e.Result)
		}
	}
}

func New(inf inference.Inferencer, opts ...Option) *Session {
	s := &Session{
		ID:       ksuid.New().String(),
		inf:      inf,
		logger:   log.Default(),
		now:      time.Now,
		thresh:   assets.DefaultThresholds,
		parallel: assets.DefaultParallelism,
		stages:   newStages(),
		registry: assets.NewRegistry(),
		latest:   make(map[StageID]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.ID)
	return s
}

// SetInferencer swaps the backend for subsequent stage calls.
func (s *Session) SetInferencer(inf inference.Inferencer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inf = inf
}

func (s *Session) requireModel(id StageID) error {
	if s.inf == nil {
		return &PreconditionError{Stage: id, Field: "provider", Reason: "no model configured"}
	}
	return nil
}

// Record returns a copy of the character record.
func (s *Session) Record() schema.CharacterRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone()
}

func (s *Session) Lorebook() []schema.LorebookEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEntries(s.lorebook)
}

func (s *Session) AssetResults() []schema.AssetRenameResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Results()
}

// Assets returns processed files with their rename results.
func (s *Session) Assets() []assets.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Entries()
}

func (s *Session) AssetSummary() assets.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return assets.Summarize(s.registry.Results(), s.thresh)
}

func (s *Session) History() []schema.ModificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

func (s *Session) Usage() inference.TokenUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

func (s *Session) Stages() []Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Stage, len(s.stages))
	for i, st := range s.stages {
		out[i] = *st
		out[i].Errors = slices.Clone(st.Errors)
	}
	return out
}

func (s *Session) Stage(id StageID) (Stage, bool) {
	if !id.Valid() {
		return Stage{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := *s.stage(id)
	st.Errors = slices.Clone(st.Errors)
	return st, true
}

// Final returns the last finalized card, if stage 5 has run.
func (s *Session) Final() (Final, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.final == nil {
		return Final{}, false
	}
	return s.final.clone(), true
}

// stage, start, current and fail expect s.mu to be held.

func (s *Session) stage(id StageID) *Stage {
	return s.stages[id-1]
}

// start moves a stage to in progress and hands out its invocation token.
func (s *Session) start(id StageID) (uint64, error) {
	st := s.stage(id)
	if err := st.advance(InProgress); err != nil {
		return 0, err
	}
	st.Errors = nil
	s.seq++
	s.latest[id] = s.seq
	return s.seq, nil
}

// current rejects a response whose invocation has been superseded. The
// stage is marked failed only when no newer call of the same stage exists.
func (s *Session) current(id StageID, token uint64) error {
	if token == s.seq {
		return nil
	}
	if s.latest[id] == token {
		return s.fail(id, token, ErrSuperseded)
	}
	return &StageError{Stage: id, Err: ErrSuperseded}
}

// fail records err on the stage unless a newer call of the stage owns it.
func (s *Session) fail(id StageID, token uint64, err error) error {
	se := &StageError{Stage: id, Err: err}
	if s.latest[id] != token {
		return se
	}
	st := s.stage(id)
	if advErr := st.advance(Failed); advErr != nil {
		return fmt.Errorf("%w (%v)", se, advErr)
	}
	st.Errors = append(st.Errors, se.Error())
	s.logger.Error("stage failed", "stage", id, "error", err)
	return se
}

func (s *Session) complete(id StageID, result any, usage *inference.TokenUsage) error {
	st := s.stage(id)
	if err := st.advance(Completed); err != nil {
		return err
	}
	st.Result = result
	st.Usage = usage
	if usage != nil {
		s.usage.Prompt += usage.Prompt
		s.usage.Completion += usage.Completion
		s.usage.Total += usage.Total
	}
	return nil
}

// touch stamps a record change. Every change drops the finalized card, so
// exports never carry a card older than the session.
func (s *Session) touch() {
	s.record.Touch(s.now())
	s.final = nil
}

func cloneEntries(in []schema.LorebookEntry) []schema.LorebookEntry {
	out := make([]schema.LorebookEntry, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}
