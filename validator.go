package rigel

import (
	"context"
)

// Validator judges a selection. Verification is single pass: a verdict is
// terminal and never loops back into reasoning.
type Validator interface {
	Validate(ctx context.Context, p Problem, sel *Selection) (*Verdict, error)
}

// ValidatorFunc adapts a function into a Validator.
type ValidatorFunc func(ctx context.Context, p Problem, sel *Selection) (*Verdict, error)

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, p Problem, sel *Selection) (*Verdict, error) {
	return f(ctx, p, sel)
}

// ModelValidator asks a verifier model to confirm or correct a selection.
type ModelValidator struct {
	Invoker Invoker
	Task    Task
}

// Validate implements Validator.
func (v *ModelValidator) Validate(ctx context.Context, p Problem, sel *Selection) (*Verdict, error) {
	prompt := v.Task.Render(map[string]string{
		VarProblem:   p.Text(),
		VarCandidate: sel.Candidate.Raw,
		VarAnswer:    sel.Answer(),
	})

	raw, err := v.Invoker.Invoke(ctx, v.Task.Role, prompt)
	if err != nil {
		return nil, err
	}
	return ParseVerdict(raw)
}
