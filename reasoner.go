package rigel

import (
	"context"
)

// Reasoner produces one candidate solution per call.
type Reasoner interface {
	// Reason returns the candidate for the given 1-based run, or
	// ErrUnparsableAnswer when the output holds no boxed answer.
	Reason(ctx context.Context, p Problem, run int) (*Candidate, error)
}

// ReasonerFunc adapts a function into a Reasoner.
type ReasonerFunc func(ctx context.Context, p Problem, run int) (*Candidate, error)

// Reason calls f.
func (f ReasonerFunc) Reason(ctx context.Context, p Problem, run int) (*Candidate, error) {
	return f(ctx, p, run)
}

// ModelReasoner asks a model for a step-by-step solution ending in a boxed
// answer.
type ModelReasoner struct {
	Invoker Invoker
	Task    Task
}

// Reason implements Reasoner.
func (r *ModelReasoner) Reason(ctx context.Context, p Problem, run int) (*Candidate, error) {
	prompt := r.Task.Render(map[string]string{
		VarProblem: p.Text(),
	})

	raw, err := r.Invoker.Invoke(ctx, r.Task.Role, prompt)
	if err != nil {
		return nil, err
	}
	return ParseCandidate(run, raw)
}
