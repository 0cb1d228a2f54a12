package dsl

import (
	"fmt"
	"strings"
)

// Document represents a parsed .rigel.yaml file.
type Document struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Agents      map[string]*Agent `yaml:"agents" validate:"required,min=1,dive"`
	Tasks       map[string]*Task  `yaml:"tasks" validate:"required,min=1,dive"`
	Pipeline    *PipelineDef      `yaml:"pipeline"`
	Settings    *Settings         `yaml:"settings"`
}

// Agent is a role definition: who the model plays for a stage.
type Agent struct {
	Name        string   `yaml:"-"`
	Role        string   `yaml:"role" validate:"required"`
	Goal        string   `yaml:"goal" validate:"required"`
	Backstory   string   `yaml:"backstory"`
	LLM         string   `yaml:"llm"`
	Temperature *float64 `yaml:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int      `yaml:"max_tokens" validate:"gte=0"`
}

// Task is a prompt template assigned to an agent.
type Task struct {
	Name           string `yaml:"-"`
	Agent          string `yaml:"agent" validate:"required"`
	Description    string `yaml:"description" validate:"required"`
	ExpectedOutput string `yaml:"expected_output"`
}

// PipelineDef maps each stage to a task. An empty Validate skips
// verification.
type PipelineDef struct {
	Reason   string `yaml:"reason"`
	Select   string `yaml:"select"`
	Validate string `yaml:"validate"`
}

// Default task names used when the document has no pipeline section.
const (
	DefaultReasonTask   = "reasoning_task"
	DefaultSelectTask   = "selection_task"
	DefaultValidateTask = "validation_task"
)

// Selection strategies.
const (
	SelectionModel    = "model"
	SelectionMajority = "majority"
)

// Providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Settings are global pipeline settings.
type Settings struct {
	DefaultModel string `yaml:"default_model"`
	Provider     string `yaml:"provider" validate:"omitempty,oneof=anthropic openai"`
	BaseURL      string `yaml:"base_url" validate:"omitempty,url"`

	// Rounds is the default reasoner run count
	Rounds      int    `yaml:"rounds" validate:"gte=0"`
	Concurrency int    `yaml:"concurrency" validate:"gte=0"`
	CallTimeout string `yaml:"call_timeout"` // e.g., "5m"
	MaxRetries  int    `yaml:"max_retries" validate:"gte=0,lte=10"`
	Backoff     string `yaml:"backoff"` // e.g., "1s"

	Selection string `yaml:"selection" validate:"omitempty,oneof=model majority"`
	Verify    *bool  `yaml:"verify"`

	RateLimit *RateLimitDef `yaml:"rate_limit"`
	Logging   *LoggingDef   `yaml:"logging"`
}

// RateLimitDef is DSL rate limit configuration.
type RateLimitDef struct {
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"gte=0"`
	Burst             int `yaml:"burst" validate:"gte=0"`
}

// LoggingDef is DSL logging configuration.
type LoggingDef struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// ValidationError provides detailed DSL validation errors.
type ValidationError struct {
	File    string
	Field   string
	Message string
	Hint    string
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Hint != "" {
		msg = msg + "\n  → " + e.Hint
	}
	return msg
}

// Stages returns the pipeline section with defaults applied.
func (d *Document) Stages() PipelineDef {
	if d.Pipeline == nil {
		return PipelineDef{
			Reason:   DefaultReasonTask,
			Select:   DefaultSelectTask,
			Validate: DefaultValidateTask,
		}
	}
	return *d.Pipeline
}

// Rounds returns the configured reasoner run count, or def when unset.
func (d *Document) Rounds(def int) int {
	if d.Settings != nil && d.Settings.Rounds > 0 {
		return d.Settings.Rounds
	}
	return def
}

// Verifies reports whether the validator stage runs.
func (d *Document) Verifies() bool {
	if d.Settings != nil && d.Settings.Verify != nil && !*d.Settings.Verify {
		return false
	}
	return d.Stages().Validate != ""
}

// SelectionStrategy returns the configured selection strategy.
func (d *Document) SelectionStrategy() string {
	if d.Settings != nil && d.Settings.Selection != "" {
		return d.Settings.Selection
	}
	return SelectionModel
}

// Summary is a one-line description of the document.
func (d *Document) Summary() string {
	s := d.Stages()
	parts := []string{fmt.Sprintf("reason=%s", s.Reason)}
	if d.SelectionStrategy() == SelectionMajority {
		parts = append(parts, "select=majority")
	} else {
		parts = append(parts, fmt.Sprintf("select=%s", s.Select))
	}
	if d.Verifies() {
		parts = append(parts, fmt.Sprintf("validate=%s", s.Validate))
	}
	return strings.Join(parts, " ")
}
