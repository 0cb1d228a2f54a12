package rigel

import (
	"time"
)

// Event represents a pipeline lifecycle event.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`

	// Stage and Run locate stage events; Run is the 1-based reasoner run
	Stage Stage `json:"stage,omitempty"`
	Run   int   `json:"run,omitempty"`

	// For candidate, selection, verdict and completion events
	Answer string `json:"answer,omitempty"`

	// For failure events
	Error string `json:"error,omitempty"`

	// Message is a short human-readable description
	Message string `json:"message,omitempty"`
}

// EventType identifies the kind of event.
type EventType string

const (
	EventSolveStarted   EventType = "solve_started"
	EventCandidateAdded EventType = "candidate_added"
	EventStageFailed    EventType = "stage_failed"
	EventSelected       EventType = "selected"
	EventVerified       EventType = "verified"
	EventSolveCompleted EventType = "solve_completed"
	EventSolveFailed    EventType = "solve_failed"
)

// EventHandler receives pipeline events. Handlers are called synchronously
// from the solving goroutine and from concurrent reasoner runs, so they must
// be safe for concurrent use and should not block.
type EventHandler func(Event)

// Recovery describes how the pipeline recovered from a stage failure.
type Recovery string

const (
	// RecoveryRetried: the reasoner run was attempted again
	RecoveryRetried Recovery = "retried"
	// RecoveryDropped: the reasoner run was dropped from the pool
	RecoveryDropped Recovery = "dropped"
	// RecoveryFirstCandidate: the first candidate of the pool was selected
	RecoveryFirstCandidate Recovery = "first_candidate"
	// RecoverySelection: the verdict was discarded and the selection kept
	RecoverySelection Recovery = "selection"
	// RecoveryNone: the failure ended the solve
	RecoveryNone Recovery = "none"
)

// Diagnostic records one stage failure observed during a solve.
type Diagnostic struct {
	Stage    Stage     `json:"stage"`
	Run      int       `json:"run,omitempty"`
	Kind     string    `json:"kind"`
	Message  string    `json:"error"`
	Recovery Recovery  `json:"recovery"`
	At       time.Time `json:"at"`

	// Err is the underlying error, a *StageError
	Err error `json:"-"`
}

func newDiagnostic(stage Stage, run int, err error, recovery Recovery) Diagnostic {
	stageErr := &StageError{Stage: stage, Run: run, Err: err}
	return Diagnostic{
		Stage:    stage,
		Run:      run,
		Kind:     ErrorKind(err),
		Message:  stageErr.Error(),
		Recovery: recovery,
		At:       time.Now(),
		Err:      stageErr,
	}
}
