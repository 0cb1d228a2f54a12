package serve

import (
	"context"
	"errors"
	"time"

	"github.com/everydev1618/rigel"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Store persists solve results for historical queries. It is the
// pipeline's Recorder.
type Store interface {
	rigel.Recorder

	// Init creates tables if they don't exist.
	Init() error

	// Close closes the store.
	Close() error

	// ListRuns returns recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// GetRun returns a run with its candidates, selection, verdict and
	// diagnostics.
	GetRun(ctx context.Context, runID string) (*rigel.Result, error)

	// Stats returns run counts by status.
	Stats(ctx context.Context) (RunStats, error)
}

// RunSummary is one row of the run history.
type RunSummary struct {
	RunID       string             `json:"run_id"`
	Problem     string             `json:"problem"`
	Status      rigel.RunStatus    `json:"status"`
	Answer      string             `json:"answer,omitempty"`
	Source      rigel.AnswerSource `json:"source,omitempty"`
	Runs        int                `json:"runs"`
	Candidates  int                `json:"candidates"`
	Diagnostics int                `json:"diagnostics"`
	StartedAt   time.Time          `json:"started_at"`
	Duration    time.Duration      `json:"duration"`
}

// RunStats counts persisted runs.
type RunStats struct {
	Total  int `json:"total"`
	Solved int `json:"solved"`
	Failed int `json:"failed"`
}
