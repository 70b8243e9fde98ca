package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrSuperseded is returned when a newer stage invocation started while a
	// call was in flight. Its response is discarded.
	ErrSuperseded = errors.New("superseded by a newer invocation")
	// ErrInvariant marks a programming error inside the workflow.
	ErrInvariant = errors.New("workflow invariant violated")
)

// PreconditionError reports a stage invoked before the state it depends on
// exists. State is never modified when it is returned.
type PreconditionError struct {
	Stage  StageID
	Field  string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("stage %d precondition failed: %s: %s", e.Stage, e.Field, e.Reason)
}

// StageError wraps the failure of a stage operation.
type StageError struct {
	Stage StageID
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("Stage %d failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
