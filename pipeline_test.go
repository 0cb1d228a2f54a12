package rigel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedInvoker answers by role name. Each script receives the 1-based
// call count for its role.
type scriptedInvoker struct {
	mu      sync.Mutex
	calls   map[string]int
	scripts map[string]func(ctx context.Context, call int) (string, error)
}

func newScriptedInvoker(scripts map[string]func(ctx context.Context, call int) (string, error)) *scriptedInvoker {
	return &scriptedInvoker{calls: make(map[string]int), scripts: scripts}
}

func (s *scriptedInvoker) Invoke(ctx context.Context, role Role, _ string) (string, error) {
	s.mu.Lock()
	s.calls[role.Name]++
	call := s.calls[role.Name]
	s.mu.Unlock()

	script, ok := s.scripts[role.Name]
	if !ok {
		return "", fmt.Errorf("no script for role %q", role.Name)
	}
	return script(ctx, call)
}

func (s *scriptedInvoker) count(role string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[role]
}

func (s *scriptedInvoker) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func reply(text string) func(context.Context, int) (string, error) {
	return func(context.Context, int) (string, error) { return text, nil }
}

func modelStages(inv Invoker) Stages {
	return Stages{
		Reasoner:  &ModelReasoner{Invoker: inv, Task: Task{Description: "{{problem}}", Role: Role{Name: "reasoner"}}},
		Selector:  &ModelSelector{Invoker: inv, Task: Task{Description: "{{problem}}\n{{candidates}}", Role: Role{Name: "selector"}}},
		Validator: &ModelValidator{Invoker: inv, Task: Task{Description: "{{problem}}\n{{candidate}}", Role: Role{Name: "validator"}}},
	}
}

func newTestPipeline(t *testing.T, stages Stages, opts ...Option) (*Pipeline, *Metrics) {
	t.Helper()
	metrics := MustNewMetrics(prometheus.NewRegistry())
	base := []Option{
		WithMetrics(metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	p, err := New(stages, append(base, opts...)...)
	require.NoError(t, err)
	return p, metrics
}

var twoPlusThree = NewProblem("What is 2+3?")

func TestSolveVerifiedCorrect(t *testing.T) {
	inv := newScriptedInvoker(map[string]func(context.Context, int) (string, error){
		"reasoner":  reply("A: 2 and 3\nQ: the sum\nL: 2+3=5\n\\boxed{5}"),
		"validator": reply("Each step holds.\nVERIFICATION: CORRECT\n\\boxed{5}"),
	})
	p, metrics := newTestPipeline(t, modelStages(inv))

	result, err := p.Solve(context.Background(), twoPlusThree, 1)
	require.NoError(t, err)

	assert.Equal(t, "5", result.Answer)
	assert.Equal(t, SourceSelector, result.Source)
	assert.Equal(t, RunSolved, result.Status)
	assert.NotEmpty(t, result.RunID)
	assert.True(t, result.Selection.Trivial)
	require.NotNil(t, result.Verdict)
	assert.Equal(t, VerdictCorrect, result.Verdict.Flag)
	assert.Empty(t, result.Diagnostics)

	// The single candidate is selected without asking the selector.
	assert.Equal(t, 0, inv.count("selector"))
	assert.Equal(t, 2, inv.total())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.answers.WithLabelValues("selector")))
}

func TestSolveVerifiedIncorrectUsesReplacement(t *testing.T) {
	inv := newScriptedInvoker(map[string]func(context.Context, int) (string, error){
		"reasoner":  reply("2+3=5\n\\boxed{5}"),
		"validator": reply("VERIFICATION: INCORRECT\nREVISED SOLUTION: \\boxed{6}"),
	})
	p, _ := newTestPipeline(t, modelStages(inv))

	result, err := p.Solve(context.Background(), twoPlusThree, 1)
	require.NoError(t, err)

	assert.Equal(t, "6", result.Answer)
	assert.Equal(t, SourceValidator, result.Source)
	assert.Equal(t, "5", result.Selection.Answer())
}

func TestSolveSelectsAmongCandidates(t *testing.T) {
	answers := []string{"4", "5", "6"}
	inv := newScriptedInvoker(map[string]func(context.Context, int) (string, error){
		"reasoner": func(_ context.Context, call int) (string, error) {
			return fmt.Sprintf("\\boxed{%s}", answers[call-1]), nil
		},
		"selector":  reply("SELECTION: Solution [2]"),
		"validator": reply("VERIFICATION: CORRECT"),
	})
	p, _ := newTestPipeline(t, modelStages(inv), WithConcurrency(1))

	result, err := p.Solve(context.Background(), twoPlusThree, 3)
	require.NoError(t, err)

	assert.Equal(t, "5", result.Answer)
	assert.Equal(t, 1, result.Selection.Index)
	assert.Len(t, result.Candidates, 3)
	assert.Equal(t, 5, inv.total())
	assert.LessOrEqual(t, inv.total(), p.MaxInvocations(3))
}

func TestSolveSingleUnparsableRun(t *testing.T) {
	inv := newScriptedInvoker(map[string]func(context.Context, int) (string, error){
		"reasoner": reply("I think it is five."),
	})
	rec := &memoryRecorder{}
	p, metrics := newTestPipeline(t, modelStages(inv), WithRecorder(rec))

	result, err := p.Solve(context.Background(), twoPlusThree, 1)
	require.ErrorIs(t, err, ErrNoCandidateAvailable)
	assert.Nil(t, result)
	assert.Equal(t, 0, inv.count("selector"))
	assert.Equal(t, 0, inv.count("validator"))

	// The failed solve is still recorded with its diagnostics.
	runs := rec.all()
	require.Len(t, runs, 1)
	assert.Equal(t, RunFailed, runs[0].Status)
	require.Len(t, runs[0].Diagnostics, 1)
	assert.Equal(t, "unparsable_answer", runs[0].Diagnostics[0].Kind)
	assert.Equal(t, RecoveryDropped, runs[0].Diagnostics[0].Recovery)
	assert.ErrorIs(t, runs[0].Diagnostics[0].Err, ErrUnparsableAnswer)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.stageFailures.WithLabelValues("reason", "unparsable_answer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.stageFailures.WithLabelValues("reason", "no_candidate")))
}

func TestSolveDropsFailedRuns(t *testing.T) {
	reasoner := ReasonerFunc(func(_ context.Context, _ Problem, run int) (*Candidate, error) {
		if run == 2 {
			return nil, ErrUnparsableAnswer
		}
		return &Candidate{Answer: fmt.Sprint(run), Raw: "raw"}, nil
	})
	p, _ := newTestPipeline(t, Stages{Reasoner: reasoner, Selector: MajoritySelector{}})

	result, err := p.Solve(context.Background(), twoPlusThree, 3)
	require.NoError(t, err)

	require.Len(t, result.Candidates, 2)
	assert.Equal(t, 1, result.Candidates[0].Run)
	assert.Equal(t, 3, result.Candidates[1].Run)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, StageReason, result.Diagnostics[0].Stage)
	assert.Equal(t, 2, result.Diagnostics[0].Run)
	assert.Nil(t, result.Verdict)
}

func TestSolveSelectionMismatchFallsBackToFirst(t *testing.T) {
	reasoner := ReasonerFunc(func(_ context.Context, _ Problem, run int) (*Candidate, error) {
		return &Candidate{Answer: fmt.Sprint(run + 4)}, nil
	})
	// Returns an equal copy, which is not a member of the pool.
	selector := SelectorFunc(func(_ context.Context, _ Problem, pool *Pool) (*Selection, error) {
		clone := *pool.At(1)
		return &Selection{Candidate: &clone}, nil
	})
	p, metrics := newTestPipeline(t, Stages{Reasoner: reasoner, Selector: selector}, WithConcurrency(1))

	result, err := p.Solve(context.Background(), twoPlusThree, 2)
	require.NoError(t, err)

	assert.Equal(t, "5", result.Answer)
	assert.True(t, result.Selection.Fallback)
	assert.Equal(t, 0, result.Selection.Index)
	require.Len(t, result.Diagnostics, 1)
	assert.ErrorIs(t, result.Diagnostics[0].Err, ErrSelectionMismatch)
	assert.Equal(t, RecoveryFirstCandidate, result.Diagnostics[0].Recovery)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.stageFailures.WithLabelValues("select", "selection_mismatch")))
}

func TestSolveSelectorInventsAnswer(t *testing.T) {
	answers := []string{"4", "5"}
	inv := newScriptedInvoker(map[string]func(context.Context, int) (string, error){
		"reasoner": func(_ context.Context, call int) (string, error) {
			return "\\boxed{" + answers[call-1] + "}", nil
		},
		"selector":  reply("SELECTION: Solution 2 is the best. \\boxed{42}"),
		"validator": reply("VERIFICATION: CORRECT"),
	})
	p, _ := newTestPipeline(t, modelStages(inv), WithConcurrency(1))

	result, err := p.Solve(context.Background(), twoPlusThree, 2)
	require.NoError(t, err)
	assert.Equal(t, "4", result.Answer)
	assert.True(t, result.Selection.Fallback)
	assert.Equal(t, 0, result.Selection.Index)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, StageSelect, result.Diagnostics[0].Stage)
	assert.ErrorIs(t, result.Diagnostics[0].Err, ErrSelectionMismatch)
	assert.Equal(t, RecoveryFirstCandidate, result.Diagnostics[0].Recovery)
}

func TestSolveSelectorNamesWinnerBeforeComparison(t *testing.T) {
	answers := []string{"4", "5"}
	inv := newScriptedInvoker(map[string]func(context.Context, int) (string, error){
		"reasoner": func(_ context.Context, call int) (string, error) {
			return "\\boxed{" + answers[call-1] + "}", nil
		},
		"selector":  reply("SELECTION:\nSolution 2 is the best, because Solution 1 miscounted."),
		"validator": reply("VERIFICATION: CORRECT"),
	})
	p, _ := newTestPipeline(t, modelStages(inv), WithConcurrency(1))

	result, err := p.Solve(context.Background(), twoPlusThree, 2)
	require.NoError(t, err)
	assert.Equal(t, "5", result.Answer)
	assert.Equal(t, 1, result.Selection.Index)
	assert.Empty(t, result.Diagnostics)
}

func TestSolveSelectorErrorFallsBackToFirst(t *testing.T) {
	reasoner := ReasonerFunc(func(_ context.Context, _ Problem, run int) (*Candidate, error) {
		return &Candidate{Answer: fmt.Sprint(run)}, nil
	})
	selector := SelectorFunc(func(context.Context, Problem, *Pool) (*Selection, error) {
		return nil, ErrInvokerUnavailable
	})
	p, _ := newTestPipeline(t, Stages{Reasoner: reasoner, Selector: selector})

	result, err := p.Solve(context.Background(), twoPlusThree, 3)
	require.NoError(t, err)
	assert.Equal(t, "1", result.Answer)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "invoker_unavailable", result.Diagnostics[0].Kind)
}

func TestSolveIncompleteVerdictFallsBackToSelection(t *testing.T) {
	reasoner := ReasonerFunc(func(context.Context, Problem, int) (*Candidate, error) {
		return &Candidate{Answer: "5"}, nil
	})
	validator := ValidatorFunc(func(context.Context, Problem, *Selection) (*Verdict, error) {
		return &Verdict{Flag: VerdictIncorrect}, nil
	})
	p, _ := newTestPipeline(t, Stages{Reasoner: reasoner, Selector: MajoritySelector{}, Validator: validator})

	result, err := p.Solve(context.Background(), twoPlusThree, 1)
	require.NoError(t, err)

	assert.Equal(t, "5", result.Answer)
	assert.Equal(t, SourceSelector, result.Source)
	assert.Nil(t, result.Verdict)
	require.Len(t, result.Diagnostics, 1)
	assert.ErrorIs(t, result.Diagnostics[0].Err, ErrVerdictIncomplete)
	assert.Equal(t, RecoverySelection, result.Diagnostics[0].Recovery)
}

func TestSolveIncorrectVerdictQuotingRejectedAnswer(t *testing.T) {
	tests := []struct {
		name      string
		validator string
	}{
		{"no replacement after header", "The proposed answer \\boxed{5} does not hold.\nVERIFICATION: INCORRECT\nREVISED SOLUTION: I could not determine the value."},
		{"replacement repeats rejected answer", "VERIFICATION: INCORRECT\nREVISED SOLUTION: \\boxed{ 5 }"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := newScriptedInvoker(map[string]func(context.Context, int) (string, error){
				"reasoner":  reply("2+3=5\n\\boxed{5}"),
				"validator": reply(tt.validator),
			})
			p, _ := newTestPipeline(t, modelStages(inv))

			result, err := p.Solve(context.Background(), twoPlusThree, 1)
			require.NoError(t, err)

			assert.Equal(t, "5", result.Answer)
			assert.Equal(t, SourceSelector, result.Source)
			assert.Nil(t, result.Verdict)
			require.Len(t, result.Diagnostics, 1)
			assert.ErrorIs(t, result.Diagnostics[0].Err, ErrVerdictIncomplete)
			assert.Equal(t, RecoverySelection, result.Diagnostics[0].Recovery)
		})
	}
}

func TestSolveUnclassifiedVerdictFallsBackToSelection(t *testing.T) {
	inv := newScriptedInvoker(map[string]func(context.Context, int) (string, error){
		"reasoner":  reply("\\boxed{5}"),
		"validator": reply("Looks plausible. \\boxed{6}"),
	})
	p, _ := newTestPipeline(t, modelStages(inv))

	result, err := p.Solve(context.Background(), twoPlusThree, 1)
	require.NoError(t, err)
	assert.Equal(t, "5", result.Answer)
	require.Len(t, result.Diagnostics, 1)
	assert.ErrorIs(t, result.Diagnostics[0].Err, ErrVerdictUnclassified)
}

func TestSolveIsIdempotentWithDeterministicInvoker(t *testing.T) {
	answers := []string{"5", "6", "5"}
	newInvoker := func() *scriptedInvoker {
		return newScriptedInvoker(map[string]func(context.Context, int) (string, error){
			"reasoner": func(_ context.Context, call int) (string, error) {
				return "\\boxed{" + answers[(call-1)%3] + "}", nil
			},
			"selector":  reply("\\boxed{5}"),
			"validator": reply("VERIFICATION: CORRECT"),
		})
	}

	var got []string
	for range 3 {
		p, _ := newTestPipeline(t, modelStages(newInvoker()), WithConcurrency(1))
		result, err := p.Solve(context.Background(), twoPlusThree, 3)
		require.NoError(t, err)
		got = append(got, result.Answer)
	}
	assert.Equal(t, []string{"5", "5", "5"}, got)
}

func TestSolveCancellation(t *testing.T) {
	started := make(chan struct{}, 3)
	reasoner := ReasonerFunc(func(ctx context.Context, _ Problem, _ int) (*Candidate, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	rec := &memoryRecorder{}
	p, _ := newTestPipeline(t, Stages{Reasoner: reasoner, Selector: MajoritySelector{}}, WithRecorder(rec))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	result, err := p.Solve(ctx, twoPlusThree, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
	assert.Empty(t, rec.all())
}

func TestSolveCallTimeout(t *testing.T) {
	reasoner := ReasonerFunc(func(_ context.Context, _ Problem, run int) (*Candidate, error) {
		if run == 1 {
			// Ignores its context on purpose.
			time.Sleep(300 * time.Millisecond)
		}
		return &Candidate{Answer: fmt.Sprint(run)}, nil
	})
	p, _ := newTestPipeline(t, Stages{Reasoner: reasoner, Selector: MajoritySelector{}},
		WithCallTimeout(30*time.Millisecond))

	result, err := p.Solve(context.Background(), twoPlusThree, 2)
	require.NoError(t, err)

	assert.Equal(t, "2", result.Answer)
	require.Len(t, result.Diagnostics, 1)
	assert.ErrorIs(t, result.Diagnostics[0].Err, ErrInvokerTimeout)
	assert.Equal(t, 1, result.Diagnostics[0].Run)
}

func TestSolveSelectorTimeoutFallsBackToFirst(t *testing.T) {
	reasoner := ReasonerFunc(func(_ context.Context, _ Problem, run int) (*Candidate, error) {
		return &Candidate{Answer: fmt.Sprint(run)}, nil
	})
	selector := SelectorFunc(func(context.Context, Problem, *Pool) (*Selection, error) {
		// Ignores its context on purpose.
		time.Sleep(300 * time.Millisecond)
		return nil, errors.New("too late")
	})
	p, metrics := newTestPipeline(t, Stages{Reasoner: reasoner, Selector: selector},
		WithCallTimeout(30*time.Millisecond))

	result, err := p.Solve(context.Background(), twoPlusThree, 2)
	require.NoError(t, err)

	assert.Equal(t, "1", result.Answer)
	assert.True(t, result.Selection.Fallback)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, StageSelect, result.Diagnostics[0].Stage)
	assert.ErrorIs(t, result.Diagnostics[0].Err, ErrInvokerTimeout)
	assert.Equal(t, RecoveryFirstCandidate, result.Diagnostics[0].Recovery)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.stageFailures.WithLabelValues("select", "invoker_timeout")))
}

func TestSolveValidatorTimeoutFallsBackToSelection(t *testing.T) {
	reasoner := ReasonerFunc(func(context.Context, Problem, int) (*Candidate, error) {
		return &Candidate{Answer: "5"}, nil
	})
	validator := ValidatorFunc(func(ctx context.Context, _ Problem, _ *Selection) (*Verdict, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p, _ := newTestPipeline(t, Stages{Reasoner: reasoner, Selector: MajoritySelector{}, Validator: validator},
		WithCallTimeout(30*time.Millisecond))

	result, err := p.Solve(context.Background(), twoPlusThree, 1)
	require.NoError(t, err)

	assert.Equal(t, "5", result.Answer)
	assert.Equal(t, SourceSelector, result.Source)
	assert.Nil(t, result.Verdict)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, StageValidate, result.Diagnostics[0].Stage)
	assert.ErrorIs(t, result.Diagnostics[0].Err, ErrInvokerTimeout)
	assert.Equal(t, RecoverySelection, result.Diagnostics[0].Recovery)
}

func TestSolveRetriesUnparsableRun(t *testing.T) {
	var attempts atomic.Int32
	reasoner := ReasonerFunc(func(_ context.Context, _ Problem, run int) (*Candidate, error) {
		if attempts.Add(1) == 1 {
			return nil, ErrUnparsableAnswer
		}
		return &Candidate{Run: run, Answer: "5"}, nil
	})
	p, metrics := newTestPipeline(t, Stages{Reasoner: reasoner, Selector: MajoritySelector{}},
		WithRetry(RetryPolicy{MaxRetries: 1}))

	result, err := p.Solve(context.Background(), twoPlusThree, 1)
	require.NoError(t, err)

	assert.Equal(t, "5", result.Answer)
	assert.Equal(t, int32(2), attempts.Load())
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, RecoveryRetried, result.Diagnostics[0].Recovery)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.stageRetries.WithLabelValues("reason")))
}

func TestSolveDoesNotRetryPermanentErrors(t *testing.T) {
	var attempts atomic.Int32
	reasoner := ReasonerFunc(func(context.Context, Problem, int) (*Candidate, error) {
		attempts.Add(1)
		return nil, errors.New("bad prompt template")
	})
	p, _ := newTestPipeline(t, Stages{Reasoner: reasoner, Selector: MajoritySelector{}},
		WithRetry(RetryPolicy{MaxRetries: 3}))

	_, err := p.Solve(context.Background(), twoPlusThree, 1)
	require.ErrorIs(t, err, ErrNoCandidateAvailable)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestSolveInvocationBound(t *testing.T) {
	tests := []struct {
		name       string
		runs       int
		maxRetries int
	}{
		{"no retries", 3, 0},
		{"with retries", 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := newScriptedInvoker(map[string]func(context.Context, int) (string, error){
				"reasoner": reply("no answer here"),
			})
			p, _ := newTestPipeline(t, modelStages(inv),
				WithRetry(RetryPolicy{MaxRetries: tt.maxRetries}))

			_, err := p.Solve(context.Background(), twoPlusThree, tt.runs)
			require.ErrorIs(t, err, ErrNoCandidateAvailable)
			assert.Equal(t, tt.runs*(1+tt.maxRetries), inv.total())
			assert.LessOrEqual(t, inv.total(), p.MaxInvocations(tt.runs))
		})
	}
}

func TestSolveRunsReasonersConcurrently(t *testing.T) {
	const runs = 3
	var wg sync.WaitGroup
	wg.Add(runs)
	reasoner := ReasonerFunc(func(ctx context.Context, _ Problem, run int) (*Candidate, error) {
		wg.Done()
		// Every run waits until all runs have started.
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return &Candidate{Answer: "5"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	p, _ := newTestPipeline(t, Stages{Reasoner: reasoner, Selector: MajoritySelector{}},
		WithConcurrency(runs), WithCallTimeout(5*time.Second))

	result, err := p.Solve(context.Background(), twoPlusThree, runs)
	require.NoError(t, err)
	assert.Len(t, result.Candidates, runs)
}

func TestSolveResultCache(t *testing.T) {
	var calls atomic.Int32
	reasoner := ReasonerFunc(func(context.Context, Problem, int) (*Candidate, error) {
		calls.Add(1)
		return &Candidate{Answer: "5"}, nil
	})
	p, _ := newTestPipeline(t, Stages{Reasoner: reasoner, Selector: MajoritySelector{}}, WithResultCache(8))

	first, err := p.Solve(context.Background(), twoPlusThree, 2)
	require.NoError(t, err)
	second, err := p.Solve(context.Background(), twoPlusThree, 2)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.RunID, second.RunID)

	// Cached copies are detached from each other.
	require.Len(t, second.Candidates, 2)
	second.Candidates[0].Answer = "changed"
	second.Diagnostics = append(second.Diagnostics, Diagnostic{Kind: "extra"})
	third, err := p.Solve(context.Background(), twoPlusThree, 2)
	require.NoError(t, err)
	assert.Equal(t, "5", third.Candidates[0].Answer)
	assert.Equal(t, "5", first.Candidates[0].Answer)
	assert.Empty(t, third.Diagnostics)
	assert.Same(t, third.Candidates[third.Selection.Index], third.Selection.Candidate)

	// A different run count is a different key.
	_, err = p.Solve(context.Background(), twoPlusThree, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSolveCacheHitEmitsCompletion(t *testing.T) {
	reasoner := ReasonerFunc(func(context.Context, Problem, int) (*Candidate, error) {
		return &Candidate{Answer: "5"}, nil
	})
	p, metrics := newTestPipeline(t, Stages{Reasoner: reasoner, Selector: MajoritySelector{}}, WithResultCache(8))

	first, err := p.Solve(context.Background(), twoPlusThree, 1)
	require.NoError(t, err)

	var mu sync.Mutex
	var events []Event
	p.OnEvent(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	_, err = p.Solve(context.Background(), twoPlusThree, 1)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, EventSolveCompleted, events[0].Type)
	assert.Equal(t, first.RunID, events[0].RunID)
	assert.Equal(t, "5", events[0].Answer)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.answers.WithLabelValues("selector")))
}

func TestSolveEmitsEvents(t *testing.T) {
	var mu sync.Mutex
	var types []EventType
	handler := func(e Event) {
		mu.Lock()
		types = append(types, e.Type)
		mu.Unlock()
		assert.NotEmpty(t, e.RunID)
	}

	inv := newScriptedInvoker(map[string]func(context.Context, int) (string, error){
		"reasoner":  reply("\\boxed{5}"),
		"validator": reply("VERIFICATION: CORRECT"),
	})
	p, _ := newTestPipeline(t, modelStages(inv), WithEventHandler(handler))

	_, err := p.Solve(context.Background(), twoPlusThree, 1)
	require.NoError(t, err)

	assert.Equal(t, []EventType{
		EventSolveStarted,
		EventCandidateAdded,
		EventSelected,
		EventVerified,
		EventSolveCompleted,
	}, types)
}

func TestSolveRecordsResult(t *testing.T) {
	inv := newScriptedInvoker(map[string]func(context.Context, int) (string, error){
		"reasoner":  reply("\\boxed{5}"),
		"validator": reply("VERIFICATION: CORRECT"),
	})
	rec := &memoryRecorder{err: errors.New("disk full")}
	p, _ := newTestPipeline(t, modelStages(inv), WithRecorder(rec))

	// A failing recorder does not fail the solve.
	result, err := p.Solve(context.Background(), twoPlusThree, 1)
	require.NoError(t, err)
	require.Len(t, rec.all(), 1)
	assert.Equal(t, result.RunID, rec.all()[0].RunID)
}

func TestSolveInvalidInput(t *testing.T) {
	p, _ := newTestPipeline(t, Stages{Reasoner: ReasonerFunc(nil), Selector: MajoritySelector{}})

	_, err := p.Solve(context.Background(), NewProblem("   "), 1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.Solve(context.Background(), twoPlusThree, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewRequiresStages(t *testing.T) {
	_, err := New(Stages{Selector: MajoritySelector{}}, WithMetrics(nil))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = New(Stages{Reasoner: ReasonerFunc(nil)}, WithMetrics(nil))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = New(Stages{Reasoner: ReasonerFunc(nil), Selector: MajoritySelector{}},
		WithMetrics(nil), WithRetry(RetryPolicy{MaxRetries: -1}))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// memoryRecorder keeps recorded results in memory.
type memoryRecorder struct {
	mu      sync.Mutex
	results []*Result
	err     error
}

func (m *memoryRecorder) RecordRun(_ context.Context, r *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return m.err
}

func (m *memoryRecorder) all() []*Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Result(nil), m.results...)
}
