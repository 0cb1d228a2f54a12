package rigel

import (
	"context"
	"fmt"
	"strings"
)

// Selector chooses one candidate of a pool.
type Selector interface {
	// Select returns a Selection whose Candidate is a member of pool.
	// The pool always holds at least one candidate.
	Select(ctx context.Context, p Problem, pool *Pool) (*Selection, error)
}

// SelectorFunc adapts a function into a Selector.
type SelectorFunc func(ctx context.Context, p Problem, pool *Pool) (*Selection, error)

// Select calls f.
func (f SelectorFunc) Select(ctx context.Context, p Problem, pool *Pool) (*Selection, error) {
	return f(ctx, p, pool)
}

// ModelSelector asks an evaluator model to pick the most trustworthy
// candidate.
type ModelSelector struct {
	Invoker Invoker
	Task    Task
}

// Select implements Selector.
func (s *ModelSelector) Select(ctx context.Context, p Problem, pool *Pool) (*Selection, error) {
	prompt := s.Task.Render(map[string]string{
		VarProblem:    p.Text(),
		VarCandidates: FormatCandidates(pool),
		VarCount:      fmt.Sprint(pool.Len()),
	})

	raw, err := s.Invoker.Invoke(ctx, s.Task.Role, prompt)
	if err != nil {
		return nil, err
	}

	idx, err := ResolveSelection(raw, pool)
	if err != nil {
		return nil, err
	}
	return &Selection{
		Candidate:     pool.At(idx),
		Index:         idx,
		Justification: strings.TrimSpace(raw),
	}, nil
}

// ResolveSelection maps selector output to a pool position. A boxed answer
// resolves to the first candidate with an equal normalized answer; a boxed
// answer no candidate gave is a mismatch. Without a boxed answer the
// "Solution N" reference is used. Returns ErrSelectionMismatch when
// neither resolves.
func ResolveSelection(raw string, pool *Pool) (int, error) {
	if boxed, ok := ExtractBoxed(raw); ok {
		want := NormalizeAnswer(boxed)
		for i, c := range pool.Candidates() {
			if NormalizeAnswer(c.Answer) == want {
				return i, nil
			}
		}
		return -1, fmt.Errorf("%w: answer %q is not in the pool", ErrSelectionMismatch, boxed)
	}

	if n, ok := SolutionReference(raw); ok && n >= 1 && n <= pool.Len() {
		return n - 1, nil
	}

	return -1, ErrSelectionMismatch
}

// FormatCandidates renders the pool for a selector prompt, numbering
// candidates from 1.
func FormatCandidates(pool *Pool) string {
	var b strings.Builder
	for i, c := range pool.Candidates() {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Solution %d (final answer: %s):\n%s", i+1, c.Answer, strings.TrimSpace(c.Raw))
	}
	return b.String()
}

// MajoritySelector picks the most frequent normalized answer without
// calling a model. Ties go to the answer that appeared first.
type MajoritySelector struct{}

// Select implements Selector.
func (MajoritySelector) Select(_ context.Context, _ Problem, pool *Pool) (*Selection, error) {
	if pool.Len() == 0 {
		return nil, ErrNoCandidateAvailable
	}

	counts := make(map[string]int)
	first := make(map[string]int)
	for i, c := range pool.Candidates() {
		key := NormalizeAnswer(c.Answer)
		if _, seen := first[key]; !seen {
			first[key] = i
		}
		counts[key]++
	}

	best := -1
	bestCount := 0
	for key, n := range counts {
		idx := first[key]
		if n > bestCount || (n == bestCount && idx < best) {
			best, bestCount = idx, n
		}
	}

	c := pool.At(best)
	return &Selection{
		Candidate:     c,
		Index:         best,
		Justification: fmt.Sprintf("%d of %d candidates agree on %s", bestCount, pool.Len(), c.Answer),
	}, nil
}
