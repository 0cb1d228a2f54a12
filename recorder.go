package rigel

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Recorder persists solve results. It is called once per solve, after a
// successful solve and after ErrNoCandidateAvailable; a failing recorder
// never fails the solve.
type Recorder interface {
	RecordRun(ctx context.Context, result *Result) error
}

// JSONLRecorder appends results to a file, one JSON document per line.
type JSONLRecorder struct {
	path string
	mu   sync.Mutex
}

// NewJSONLRecorder creates a recorder writing to path.
func NewJSONLRecorder(path string) *JSONLRecorder {
	return &JSONLRecorder{path: path}
}

// RecordRun appends result to the file.
func (r *JSONLRecorder) RecordRun(_ context.Context, result *Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}
