package rigel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/everydev1618/rigel/llm"
)

// Invoker calls a language model under a role and returns its free text.
type Invoker interface {
	Invoke(ctx context.Context, role Role, prompt string) (string, error)
}

// InvokerFunc adapts a function into an Invoker.
type InvokerFunc func(ctx context.Context, role Role, prompt string) (string, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, role Role, prompt string) (string, error) {
	return f(ctx, role, prompt)
}

// Usage accumulates token usage and cost across invocations.
type Usage struct {
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// LLMInvoker adapts an llm.LLM backend into an Invoker.
type LLMInvoker struct {
	backend llm.LLM
	model   string
	limiter *rate.Limiter

	mu    sync.Mutex
	usage Usage
}

// LLMInvokerOption configures an LLMInvoker.
type LLMInvokerOption func(*LLMInvoker)

// WithDefaultModel sets the model used for roles that don't name one.
func WithDefaultModel(model string) LLMInvokerOption {
	return func(i *LLMInvoker) {
		i.model = model
	}
}

// WithRateLimit throttles requests to the backend.
func WithRateLimit(limit RateLimit) LLMInvokerOption {
	return func(i *LLMInvoker) {
		if limit.RequestsPerMinute <= 0 {
			i.limiter = nil
			return
		}
		burst := limit.Burst
		if burst <= 0 {
			burst = 1
		}
		i.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(limit.RequestsPerMinute)), burst)
	}
}

// NewLLMInvoker creates an Invoker backed by an LLM.
func NewLLMInvoker(backend llm.LLM, opts ...LLMInvokerOption) *LLMInvoker {
	i := &LLMInvoker{backend: backend}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke renders the role into a system prompt and sends prompt as the
// user message. Errors are classified as ErrInvokerTimeout or
// ErrInvokerUnavailable; cancellation is returned as is.
func (i *LLMInvoker) Invoke(ctx context.Context, role Role, prompt string) (string, error) {
	if i.limiter != nil {
		if err := i.limiter.Wait(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return "", err
			}
			return "", fmt.Errorf("%w: rate limit wait: %w", ErrInvokerTimeout, err)
		}
	}

	model := role.Model
	if model == "" {
		model = i.model
	}

	resp, err := i.backend.Generate(ctx, &llm.Request{
		Model:       model,
		System:      role.SystemPrompt(),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: role.Temperature,
		MaxTokens:   role.MaxTokens,
	})
	if err != nil {
		return "", classifyInvokeError(err)
	}

	i.mu.Lock()
	i.usage.Calls++
	i.usage.InputTokens += resp.InputTokens
	i.usage.OutputTokens += resp.OutputTokens
	i.usage.CostUSD += resp.CostUSD
	i.mu.Unlock()

	slog.Debug("model invoked",
		"role", role.Name,
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"latency_ms", resp.LatencyMs,
		"stop_reason", resp.StopReason,
	)

	return resp.Content, nil
}

// Usage returns the accumulated usage.
func (i *LLMInvoker) Usage() Usage {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.usage
}

func classifyInvokeError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrInvokerTimeout, err)
	case errors.Is(err, ErrInvokerTimeout), errors.Is(err, ErrInvokerUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrInvokerUnavailable, err)
	}
}
