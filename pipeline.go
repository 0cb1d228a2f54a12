package rigel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// Stages are the three collaborators of a pipeline. Reasoner and Selector
// are required; a nil Validator skips verification.
type Stages struct {
	Reasoner  Reasoner
	Selector  Selector
	Validator Validator
}

// Pipeline runs the generate, select and verify stages for one problem at
// a time. A Pipeline is safe for concurrent use by multiple solves.
type Pipeline struct {
	reasoner  Reasoner
	selector  Selector
	validator Validator

	// Configuration
	logger      *slog.Logger
	callTimeout time.Duration
	concurrency int
	retry       RetryPolicy
	metrics     *Metrics
	recorder    Recorder
	cacheSize   int
	cache       *lru.Cache[string, *Result]

	handlers  []EventHandler
	handlerMu sync.RWMutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithCallTimeout bounds every stage call. Zero disables the timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.callTimeout = d
	}
}

// WithConcurrency bounds concurrent reasoner runs. Zero or less removes the
// bound.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		p.concurrency = n
	}
}

// WithRetry configures retries of failed reasoner runs.
func WithRetry(policy RetryPolicy) Option {
	return func(p *Pipeline) {
		p.retry = policy
	}
}

// WithMetrics sets the metrics sink. Defaults to DefaultMetrics(); pass nil
// to disable metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithRecorder persists every solve result.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithResultCache keeps the last size solved results keyed by problem text
// and run count. A cached result is returned without invoking any stage.
func WithResultCache(size int) Option {
	return func(p *Pipeline) {
		p.cacheSize = size
	}
}

// WithEventHandler registers a handler for pipeline events.
func WithEventHandler(fn EventHandler) Option {
	return func(p *Pipeline) {
		p.handlers = append(p.handlers, fn)
	}
}

// New creates a Pipeline.
func New(stages Stages, opts ...Option) (*Pipeline, error) {
	if stages.Reasoner == nil {
		return nil, fmt.Errorf("%w: reasoner is required", ErrInvalidInput)
	}
	if stages.Selector == nil {
		return nil, fmt.Errorf("%w: selector is required", ErrInvalidInput)
	}

	p := &Pipeline{
		reasoner:    stages.Reasoner,
		selector:    stages.Selector,
		validator:   stages.Validator,
		logger:      slog.Default(),
		callTimeout: DefaultCallTimeout,
		concurrency: DefaultConcurrency,
		metrics:     DefaultMetrics(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.retry.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max retries must not be negative", ErrInvalidInput)
	}
	if p.cacheSize > 0 {
		cache, err := lru.New[string, *Result](p.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("result cache: %w", err)
		}
		p.cache = cache
	}

	return p, nil
}

// OnEvent registers a handler for pipeline events.
func (p *Pipeline) OnEvent(fn EventHandler) {
	p.handlerMu.Lock()
	p.handlers = append(p.handlers, fn)
	p.handlerMu.Unlock()
}

// MaxInvocations returns the most stage calls one solve with the given run
// count can make.
func (p *Pipeline) MaxInvocations(runs int) int {
	return runs*(1+p.retry.MaxRetries) + 2
}

// Solve answers problem from runs independent reasoner runs. It returns
// exactly one answer, or ErrNoCandidateAvailable when every run failed.
// Recovered stage failures are reported in Result.Diagnostics. When ctx is
// cancelled Solve returns the context error and no result.
func (p *Pipeline) Solve(ctx context.Context, problem Problem, runs int) (*Result, error) {
	if problem.Empty() {
		return nil, fmt.Errorf("%w: problem is empty", ErrInvalidInput)
	}
	if runs < 1 {
		return nil, fmt.Errorf("%w: runs must be at least 1, got %d", ErrInvalidInput, runs)
	}

	cacheKey := fmt.Sprintf("%d\x00%s", runs, problem.Text())
	if p.cache != nil {
		if cached, ok := p.cache.Get(cacheKey); ok {
			result := cached.clone()
			result.Cached = true
			p.logger.Debug("result cache hit", "run_id", result.RunID, "runs", runs)
			p.metrics.IncAnswer(result.Source)
			hit := &solve{pipeline: p, result: result}
			hit.emit(Event{Type: EventSolveCompleted, Answer: result.Answer, Message: string(result.Source)})
			return result, nil
		}
	}

	s := &solve{
		pipeline: p,
		result: &Result{
			RunID:     uuid.New().String(),
			Problem:   problem.Text(),
			Runs:      runs,
			StartedAt: time.Now(),
		},
	}

	p.metrics.IncActiveSolves()
	defer p.metrics.DecActiveSolves()

	s.emit(Event{Type: EventSolveStarted, Message: fmt.Sprintf("%d reasoner runs", runs)})
	p.logger.Debug("solve started", "run_id", s.result.RunID, "runs", runs)

	result, err := s.run(ctx, problem)
	if err != nil {
		if ctx.Err() != nil {
			p.logger.Debug("solve cancelled", "run_id", s.result.RunID, "error", err)
			return nil, ctx.Err()
		}
		s.fail(ctx, err)
		return nil, err
	}

	if p.cache != nil {
		p.cache.Add(cacheKey, result.clone())
	}
	return result, nil
}

// solve is the state of one Solve call.
type solve struct {
	pipeline *Pipeline
	result   *Result

	mu sync.Mutex
}

func (s *solve) run(ctx context.Context, problem Problem) (*Result, error) {
	p := s.pipeline

	pool, err := s.reason(ctx, problem)
	if err != nil {
		return nil, err
	}
	s.result.Candidates = pool.Candidates()
	if pool.Len() == 0 {
		return nil, &StageError{Stage: StageReason, Err: ErrNoCandidateAvailable}
	}

	sel, err := s.selectCandidate(ctx, problem, pool)
	if err != nil {
		return nil, err
	}
	s.result.Selection = sel
	s.emit(Event{Type: EventSelected, Answer: sel.Answer(), Message: fmt.Sprintf("solution %d of %d", sel.Index+1, pool.Len())})

	verdict, err := s.validate(ctx, problem, sel)
	if err != nil {
		return nil, err
	}
	s.result.Verdict = verdict

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.result.Answer = sel.Answer()
	s.result.Source = SourceSelector
	if verdict != nil && verdict.Flag == VerdictIncorrect {
		s.result.Answer = strings.TrimSpace(verdict.Replacement)
		s.result.Source = SourceValidator
	}
	s.result.Status = RunSolved
	s.result.Duration = time.Since(s.result.StartedAt)

	p.metrics.IncAnswer(s.result.Source)
	p.logger.Info("solve completed",
		"run_id", s.result.RunID,
		"answer", s.result.Answer,
		"source", s.result.Source,
		"candidates", pool.Len(),
		"diagnostics", len(s.result.Diagnostics),
		"duration_ms", s.result.Duration.Milliseconds(),
	)
	s.emit(Event{Type: EventSolveCompleted, Answer: s.result.Answer, Message: string(s.result.Source)})
	s.record(ctx)

	return s.result, nil
}

// reason fans the reasoner runs out and collects the surviving candidates
// in run order. Each run writes only its own slot.
func (s *solve) reason(ctx context.Context, problem Problem) (*Pool, error) {
	p := s.pipeline
	runs := s.result.Runs
	slots := make([]*Candidate, runs)

	g, gctx := errgroup.WithContext(ctx)
	if p.concurrency > 0 {
		g.SetLimit(p.concurrency)
	}

	for i := range runs {
		run := i + 1
		g.Go(func() error {
			c, err := s.runReasoner(gctx, problem, run)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.recover(StageReason, run, err, RecoveryDropped)
				return nil
			}
			slots[i] = c
			s.emit(Event{Type: EventCandidateAdded, Stage: StageReason, Run: run, Answer: c.Answer})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewPool(slots...), nil
}

// runReasoner performs one reasoner run, retrying retryable failures up to
// the configured limit.
func (s *solve) runReasoner(ctx context.Context, problem Problem, run int) (*Candidate, error) {
	p := s.pipeline

	op := func() (*Candidate, error) {
		start := time.Now()
		c, err := callStage(ctx, p.callTimeout, func(ctx context.Context) (*Candidate, error) {
			return p.reasoner.Reason(ctx, problem, run)
		})
		if err == nil && (c == nil || strings.TrimSpace(c.Answer) == "") {
			err = ErrUnparsableAnswer
		}
		if err != nil {
			p.metrics.ObserveStageDuration(StageReason, "error", time.Since(start))
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			if !retryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		p.metrics.ObserveStageDuration(StageReason, "ok", time.Since(start))

		if c.Run == 0 {
			c.Run = run
		}
		return c, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(p.retry.Backoff.newBackOff()),
		backoff.WithMaxTries(uint(p.retry.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.metrics.IncStageRetry(StageReason)
			s.recover(StageReason, run, err, RecoveryRetried)
		}),
	)
}

// selectCandidate returns the selection for a non-empty pool. Selector
// failures fall back to the first candidate; only cancellation is returned.
func (s *solve) selectCandidate(ctx context.Context, problem Problem, pool *Pool) (*Selection, error) {
	p := s.pipeline

	if pool.Len() == 1 {
		return &Selection{
			Candidate:     pool.First(),
			Index:         0,
			Justification: "only one candidate",
			Trivial:       true,
		}, nil
	}

	start := time.Now()
	sel, err := callStage(ctx, p.callTimeout, func(ctx context.Context) (*Selection, error) {
		return p.selector.Select(ctx, problem, pool)
	})
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err == nil && (sel == nil || !pool.Contains(sel.Candidate)) {
		err = ErrSelectionMismatch
	}
	if err != nil {
		p.metrics.ObserveStageDuration(StageSelect, "error", time.Since(start))
		s.recover(StageSelect, 0, err, RecoveryFirstCandidate)
		return &Selection{
			Candidate:     pool.First(),
			Index:         0,
			Justification: "selector failed, using the first candidate",
			Fallback:      true,
		}, nil
	}
	p.metrics.ObserveStageDuration(StageSelect, "ok", time.Since(start))

	sel.Index = pool.IndexOf(sel.Candidate)
	return sel, nil
}

// validate returns the verdict on sel, or nil when validation is skipped
// or failed. Only cancellation is returned as an error.
func (s *solve) validate(ctx context.Context, problem Problem, sel *Selection) (*Verdict, error) {
	p := s.pipeline
	if p.validator == nil {
		p.logger.Debug("validation skipped", "run_id", s.result.RunID)
		return nil, nil
	}

	start := time.Now()
	verdict, err := callStage(ctx, p.callTimeout, func(ctx context.Context) (*Verdict, error) {
		return p.validator.Validate(ctx, problem, sel)
	})
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err == nil {
		if verdict == nil {
			err = ErrVerdictUnclassified
		} else {
			err = verdict.Validate()
		}
	}
	if err == nil && verdict.Flag == VerdictIncorrect &&
		NormalizeAnswer(verdict.Replacement) == NormalizeAnswer(sel.Answer()) {
		err = fmt.Errorf("%w: replacement repeats the rejected answer", ErrVerdictIncomplete)
	}
	if err != nil {
		p.metrics.ObserveStageDuration(StageValidate, "error", time.Since(start))
		s.recover(StageValidate, 0, err, RecoverySelection)
		return nil, nil
	}
	p.metrics.ObserveStageDuration(StageValidate, "ok", time.Since(start))

	s.emit(Event{Type: EventVerified, Stage: StageValidate, Answer: verdict.Replacement, Message: string(verdict.Flag)})
	return verdict, nil
}

// recover reports a recovered stage failure on every diagnostics channel.
func (s *solve) recover(stage Stage, run int, err error, recovery Recovery) {
	d := newDiagnostic(stage, run, err, recovery)

	s.mu.Lock()
	s.result.Diagnostics = append(s.result.Diagnostics, d)
	s.mu.Unlock()

	p := s.pipeline
	p.metrics.IncStageFailure(stage, err)
	p.logger.Warn("stage failed",
		"run_id", s.result.RunID,
		"stage", stage,
		"run", run,
		"error", err.Error(),
		"kind", d.Kind,
		"recovery", recovery,
	)
	s.emit(Event{Type: EventStageFailed, Stage: stage, Run: run, Error: d.Message, Message: string(recovery)})
}

// fail finishes a solve that produced no answer.
func (s *solve) fail(ctx context.Context, err error) {
	p := s.pipeline

	s.mu.Lock()
	s.result.Status = RunFailed
	s.result.Error = err.Error()
	s.result.Duration = time.Since(s.result.StartedAt)
	s.mu.Unlock()

	var stageErr *StageError
	stage := StageReason
	if errors.As(err, &stageErr) {
		stage = stageErr.Stage
	}
	p.metrics.IncStageFailure(stage, err)
	p.logger.Error("solve failed", "run_id", s.result.RunID, "error", err, "diagnostics", len(s.result.Diagnostics))
	s.emit(Event{Type: EventSolveFailed, Error: err.Error()})
	s.record(ctx)
}

func (s *solve) record(ctx context.Context) {
	p := s.pipeline
	if p.recorder == nil {
		return
	}
	// A solve that finished is recorded even if the caller goes away now.
	if err := p.recorder.RecordRun(context.WithoutCancel(ctx), s.result); err != nil {
		p.logger.Warn("failed to record run", "run_id", s.result.RunID, "error", err)
	}
}

func (s *solve) emit(e Event) {
	e.RunID = s.result.RunID
	e.Timestamp = time.Now()

	p := s.pipeline
	p.handlerMu.RLock()
	handlers := make([]EventHandler, len(p.handlers))
	copy(handlers, p.handlers)
	p.handlerMu.RUnlock()

	for _, fn := range handlers {
		fn(e)
	}
}

// callStage runs fn under the per-call timeout. A stage that overruns its
// deadline yields ErrInvokerTimeout even if it ignores its context.
func callStage[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := fn(callCtx)
		done <- outcome{val, err}
	}()

	var zero T
	select {
	case out := <-done:
		if out.err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(out.err, ErrInvokerTimeout) {
			return zero, fmt.Errorf("%w: %w", ErrInvokerTimeout, out.err)
		}
		return out.val, out.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w after %s", ErrInvokerTimeout, timeout)
	}
}
