package dsl

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/everydev1618/rigel"
)

// Build turns a parsed document into a pipeline whose model-backed stages
// call inv. Settings become pipeline options; opts are applied after them
// and win on conflict.
func Build(doc *Document, inv rigel.Invoker, opts ...rigel.Option) (*rigel.Pipeline, error) {
	if doc == nil {
		return nil, fmt.Errorf("build pipeline: nil document")
	}
	if inv == nil {
		return nil, fmt.Errorf("build pipeline: %w", rigel.ErrInvokerUnavailable)
	}

	names := doc.Stages()
	var stages rigel.Stages

	reasonTask, err := doc.task(names.Reason)
	if err != nil {
		return nil, err
	}
	stages.Reasoner = &rigel.ModelReasoner{Invoker: inv, Task: reasonTask}

	if doc.SelectionStrategy() == SelectionMajority {
		stages.Selector = rigel.MajoritySelector{}
	} else {
		selectTask, err := doc.task(names.Select)
		if err != nil {
			return nil, err
		}
		stages.Selector = &rigel.ModelSelector{Invoker: inv, Task: selectTask}
	}

	if doc.Verifies() {
		validateTask, err := doc.task(names.Validate)
		if err != nil {
			return nil, err
		}
		stages.Validator = &rigel.ModelValidator{Invoker: inv, Task: validateTask}
	}

	all := append(doc.Options(), opts...)
	return rigel.New(stages, all...)
}

// Options converts settings into pipeline options.
func (d *Document) Options() []rigel.Option {
	s := d.Settings
	if s == nil {
		return nil
	}

	var opts []rigel.Option
	if s.CallTimeout != "" {
		if dur, err := time.ParseDuration(s.CallTimeout); err == nil {
			opts = append(opts, rigel.WithCallTimeout(dur))
		}
	}
	if s.Concurrency > 0 {
		opts = append(opts, rigel.WithConcurrency(s.Concurrency))
	}
	if s.MaxRetries > 0 {
		policy := rigel.RetryPolicy{MaxRetries: s.MaxRetries}
		if dur, err := time.ParseDuration(s.Backoff); err == nil {
			policy.Backoff = rigel.BackoffConfig{
				Initial:    dur,
				Multiplier: 2,
				Max:        30 * time.Second,
				Jitter:     0.1,
				Type:       rigel.BackoffExponential,
			}
		}
		opts = append(opts, rigel.WithRetry(policy))
	}
	return opts
}

// RateLimit returns the invoker rate limit from settings.
func (d *Document) RateLimit() rigel.RateLimit {
	if d.Settings == nil || d.Settings.RateLimit == nil {
		return rigel.RateLimit{}
	}
	return rigel.RateLimit{
		RequestsPerMinute: d.Settings.RateLimit.RequestsPerMinute,
		Burst:             d.Settings.RateLimit.Burst,
	}
}

// DefaultModel returns settings.default_model, or "" when unset.
func (d *Document) DefaultModel() string {
	if d.Settings == nil {
		return ""
	}
	return d.Settings.DefaultModel
}

// LogLevel returns settings.logging.level, or def when unset.
func (d *Document) LogLevel(def slog.Level) slog.Level {
	if d.Settings == nil || d.Settings.Logging == nil {
		return def
	}
	switch d.Settings.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return def
	}
}

// Roles returns the runtime role of every agent, keyed by agent name.
func (d *Document) Roles() map[string]rigel.Role {
	roles := make(map[string]rigel.Role, len(d.Agents))
	for name, agent := range d.Agents {
		roles[name] = d.role(name, agent)
	}
	return roles
}

func (d *Document) role(name string, agent *Agent) rigel.Role {
	model := agent.LLM
	if model == "" {
		model = d.DefaultModel()
	}
	return rigel.Role{
		Name:        name,
		Label:       agent.Role,
		Goal:        agent.Goal,
		Backstory:   agent.Backstory,
		Model:       model,
		Temperature: agent.Temperature,
		MaxTokens:   agent.MaxTokens,
	}
}

// task resolves a task name into a runtime task bound to its agent's role.
func (d *Document) task(name string) (rigel.Task, error) {
	t, ok := d.Tasks[name]
	if !ok {
		return rigel.Task{}, &ValidationError{
			Field:   "pipeline",
			Message: fmt.Sprintf("unknown task '%s'", name),
			Hint:    fmt.Sprintf("Did you mean '%s'?", findSimilar(name, sortedKeys(d.Tasks))),
		}
	}
	agent, ok := d.Agents[t.Agent]
	if !ok {
		return rigel.Task{}, &ValidationError{
			Field:   fmt.Sprintf("tasks.%s.agent", name),
			Message: fmt.Sprintf("unknown agent '%s'", t.Agent),
		}
	}
	return rigel.Task{
		Name:           name,
		Description:    t.Description,
		ExpectedOutput: t.ExpectedOutput,
		Role:           d.role(t.Agent, agent),
	}, nil
}
