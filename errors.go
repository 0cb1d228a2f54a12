package rigel

import (
	"context"
	"errors"
	"fmt"
)

// Standard errors
var (
	ErrUnparsableAnswer     = errors.New("no boxed answer in model output")
	ErrSelectionMismatch    = errors.New("selection does not match any candidate")
	ErrVerdictUnclassified  = errors.New("verdict is neither CORRECT nor INCORRECT")
	ErrVerdictIncomplete    = errors.New("INCORRECT verdict without replacement answer")
	ErrInvokerTimeout       = errors.New("model invocation timed out")
	ErrInvokerUnavailable   = errors.New("model invoker unavailable")
	ErrNoCandidateAvailable = errors.New("no candidate available")
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotCompleted         = errors.New("solve not completed")
)

// Stage identifies a pipeline stage.
type Stage string

const (
	StageReason   Stage = "reason"
	StageSelect   Stage = "select"
	StageValidate Stage = "validate"
)

// StageError wraps a failure of one pipeline stage.
type StageError struct {
	Stage Stage
	// Run is the 1-based reasoner run, zero for select and validate.
	Run int
	Err error
}

func (e *StageError) Error() string {
	if e.Run > 0 {
		return fmt.Sprintf("%s run %d: %v", e.Stage, e.Run, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ErrorKind returns a short, stable label for err, used for metrics and
// the diagnostics API.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrUnparsableAnswer):
		return "unparsable_answer"
	case errors.Is(err, ErrSelectionMismatch):
		return "selection_mismatch"
	case errors.Is(err, ErrVerdictUnclassified):
		return "verdict_unclassified"
	case errors.Is(err, ErrVerdictIncomplete):
		return "verdict_incomplete"
	case errors.Is(err, ErrInvokerTimeout), errors.Is(err, context.DeadlineExceeded):
		return "invoker_timeout"
	case errors.Is(err, ErrInvokerUnavailable):
		return "invoker_unavailable"
	case errors.Is(err, ErrNoCandidateAvailable):
		return "no_candidate"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
