package rigel

import (
	"context"
	"sync"
)

// Future represents a solve running in the background.
type Future struct {
	result    *Result
	err       error
	completed bool
	done      chan struct{}
	cancel    context.CancelFunc
	mu        sync.RWMutex
}

// SolveAsync starts Solve in a new goroutine and returns immediately.
func (p *Pipeline) SolveAsync(ctx context.Context, problem Problem, runs int) *Future {
	ctx, cancel := context.WithCancel(ctx)
	f := &Future{
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer cancel()
		result, err := p.Solve(ctx, problem, runs)

		f.mu.Lock()
		f.result, f.err, f.completed = result, err, true
		f.mu.Unlock()
		close(f.done)
	}()

	return f
}

// Await waits for the solve to complete and returns its outcome.
func (f *Future) Await(ctx context.Context) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		f.mu.RLock()
		defer f.mu.RUnlock()
		return f.result, f.err
	}
}

// Done returns a channel closed when the solve has completed.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Completed returns true if the solve has completed.
func (f *Future) Completed() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.completed
}

// Result returns the outcome if completed, or ErrNotCompleted.
func (f *Future) Result() (*Result, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.completed {
		return nil, ErrNotCompleted
	}
	return f.result, f.err
}

// Cancel cancels the solve. Await then returns the context error.
func (f *Future) Cancel() {
	f.cancel()
}
