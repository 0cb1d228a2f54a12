package dsl

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/everydev1618/rigel"
)

// Parser parses .rigel.yaml files.
type Parser struct {
	validate *validator.Validate
}

// NewParser creates a new parser.
func NewParser() *Parser {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their YAML names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Parser{validate: v}
}

// ParseFile parses a .rigel.yaml file.
func (p *Parser) ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	doc, err := p.Parse(data)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.File = path
		}
		return nil, err
	}
	return doc, nil
}

// Parse parses YAML content into a Document.
func (p *Parser) Parse(data []byte) (*Document, error) {
	// First pass: parse into raw structure
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	// Second pass: parse into typed structure
	doc := &Document{
		Agents: make(map[string]*Agent),
		Tasks:  make(map[string]*Task),
	}

	if v, ok := raw["name"].(string); ok {
		doc.Name = v
	}
	if v, ok := raw["description"].(string); ok {
		doc.Description = v
	}

	if agents, ok := raw["agents"].(map[string]any); ok {
		for name, agentRaw := range agents {
			agent, err := p.parseAgent(name, agentRaw)
			if err != nil {
				return nil, fmt.Errorf("parse agent %s: %w", name, err)
			}
			doc.Agents[name] = agent
		}
	}

	if tasks, ok := raw["tasks"].(map[string]any); ok {
		for name, taskRaw := range tasks {
			task, err := p.parseTask(name, taskRaw)
			if err != nil {
				return nil, fmt.Errorf("parse task %s: %w", name, err)
			}
			doc.Tasks[name] = task
		}
	}

	if pl, ok := raw["pipeline"].(map[string]any); ok {
		doc.Pipeline = &PipelineDef{}
		if v, ok := pl["reason"].(string); ok {
			doc.Pipeline.Reason = v
		}
		if v, ok := pl["select"].(string); ok {
			doc.Pipeline.Select = v
		}
		if v, ok := pl["validate"].(string); ok {
			doc.Pipeline.Validate = v
		}
	}

	if settings, ok := raw["settings"].(map[string]any); ok {
		doc.Settings = p.parseSettings(settings)
	}

	if err := p.validateDocument(doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// parseAgent parses an agent definition.
func (p *Parser) parseAgent(name string, raw any) (*Agent, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected map")
	}

	agent := &Agent{Name: name}
	if v, ok := m["role"].(string); ok {
		agent.Role = strings.TrimSpace(v)
	}
	if v, ok := m["goal"].(string); ok {
		agent.Goal = strings.TrimSpace(v)
	}
	if v, ok := m["backstory"].(string); ok {
		agent.Backstory = strings.TrimSpace(v)
	}
	if v, ok := m["llm"].(string); ok {
		agent.LLM = v
	}
	if v, ok := toFloat(m["temperature"]); ok {
		agent.Temperature = &v
	}
	if v, ok := m["max_tokens"].(int); ok {
		agent.MaxTokens = v
	}

	return agent, nil
}

// parseTask parses a task definition.
func (p *Parser) parseTask(name string, raw any) (*Task, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected map")
	}

	task := &Task{Name: name}
	if v, ok := m["agent"].(string); ok {
		task.Agent = v
	}
	if v, ok := m["description"].(string); ok {
		task.Description = v
	}
	if v, ok := m["expected_output"].(string); ok {
		task.ExpectedOutput = v
	}

	return task, nil
}

// parseSettings parses global settings.
func (p *Parser) parseSettings(m map[string]any) *Settings {
	s := &Settings{}

	if v, ok := m["default_model"].(string); ok {
		s.DefaultModel = v
	}
	if v, ok := m["provider"].(string); ok {
		s.Provider = strings.ToLower(v)
	}
	if v, ok := m["base_url"].(string); ok {
		s.BaseURL = v
	}
	if v, ok := m["rounds"].(int); ok {
		s.Rounds = v
	}
	if v, ok := m["concurrency"].(int); ok {
		s.Concurrency = v
	}
	if v, ok := m["call_timeout"].(string); ok {
		s.CallTimeout = v
	}
	if v, ok := m["max_retries"].(int); ok {
		s.MaxRetries = v
	}
	if v, ok := m["backoff"].(string); ok {
		s.Backoff = v
	}
	if v, ok := m["selection"].(string); ok {
		s.Selection = strings.ToLower(v)
	}
	if v, ok := m["verify"].(bool); ok {
		s.Verify = &v
	}

	if rl, ok := m["rate_limit"].(map[string]any); ok {
		s.RateLimit = &RateLimitDef{}
		if v, ok := rl["requests_per_minute"].(int); ok {
			s.RateLimit.RequestsPerMinute = v
		}
		if v, ok := rl["burst"].(int); ok {
			s.RateLimit.Burst = v
		}
	}

	if log, ok := m["logging"].(map[string]any); ok {
		s.Logging = &LoggingDef{}
		if v, ok := log["level"].(string); ok {
			s.Logging.Level = strings.ToLower(v)
		}
	}

	return s
}

// validateDocument checks field constraints, then cross references.
func (p *Parser) validateDocument(doc *Document) error {
	if err := p.validate.Struct(doc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return err
	}

	if s := doc.Settings; s != nil {
		if s.CallTimeout != "" {
			if d, err := time.ParseDuration(s.CallTimeout); err != nil || d <= 0 {
				return &ValidationError{
					Field:   "settings.call_timeout",
					Message: fmt.Sprintf("invalid duration '%s'", s.CallTimeout),
					Hint:    "Use a Go duration such as '90s' or '5m'",
				}
			}
		}
		if s.Backoff != "" {
			if _, err := time.ParseDuration(s.Backoff); err != nil {
				return &ValidationError{
					Field:   "settings.backoff",
					Message: fmt.Sprintf("invalid duration '%s'", s.Backoff),
					Hint:    "Use a Go duration such as '500ms' or '2s'",
				}
			}
		}
	}

	for _, name := range sortedKeys(doc.Tasks) {
		task := doc.Tasks[name]
		if _, ok := doc.Agents[task.Agent]; !ok {
			return &ValidationError{
				Field:   fmt.Sprintf("tasks.%s.agent", name),
				Message: fmt.Sprintf("unknown agent '%s'", task.Agent),
				Hint:    fmt.Sprintf("Did you mean '%s'?", findSimilar(task.Agent, sortedKeys(doc.Agents))),
			}
		}
		for _, field := range []struct{ name, text string }{
			{"description", task.Description},
			{"expected_output", task.ExpectedOutput},
		} {
			for _, ph := range rigel.Placeholders(field.text) {
				if !isKnownPlaceholder(ph) {
					return &ValidationError{
						Field:   fmt.Sprintf("tasks.%s.%s", name, field.name),
						Message: fmt.Sprintf("unknown placeholder '{{%s}}'", ph),
						Hint:    fmt.Sprintf("Did you mean '{{%s}}'?", findSimilar(ph, rigel.KnownPlaceholders)),
					}
				}
			}
		}
	}

	stages := doc.Stages()
	if err := checkStageTask(doc, "reason", stages.Reason, rigel.VarProblem); err != nil {
		return err
	}
	if doc.SelectionStrategy() == SelectionModel {
		if err := checkStageTask(doc, "select", stages.Select, rigel.VarCandidates); err != nil {
			return err
		}
	}
	if doc.Verifies() {
		if err := checkStageTask(doc, "validate", stages.Validate, rigel.VarCandidate, rigel.VarAnswer); err != nil {
			return err
		}
	}

	return nil
}

// checkStageTask verifies that a stage names an existing task whose
// description uses at least one of the given placeholders.
func checkStageTask(doc *Document, stage, taskName string, anyOf ...string) error {
	field := "pipeline." + stage
	if taskName == "" {
		return &ValidationError{
			Field:   field,
			Message: "task is required",
			Hint:    fmt.Sprintf("Name one of: %s", strings.Join(sortedKeys(doc.Tasks), ", ")),
		}
	}
	task, ok := doc.Tasks[taskName]
	if !ok {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("unknown task '%s'", taskName),
			Hint:    fmt.Sprintf("Did you mean '%s'?", findSimilar(taskName, sortedKeys(doc.Tasks))),
		}
	}

	used := rigel.Placeholders(task.Description)
	for _, want := range anyOf {
		for _, ph := range used {
			if ph == want {
				return nil
			}
		}
	}
	return &ValidationError{
		Field:   fmt.Sprintf("tasks.%s.description", taskName),
		Message: fmt.Sprintf("%s task never receives {{%s}}", stage, anyOf[0]),
		Hint:    fmt.Sprintf("Add '{{%s}}' to the description", anyOf[0]),
	}
}

// fieldError converts a struct validation failure into a ValidationError.
func fieldError(fe validator.FieldError) *ValidationError {
	// Namespace is "Document.agents[reasoner].role"
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	field = strings.NewReplacer("[", ".", "]", "").Replace(field)

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "required field is missing"
	case "min":
		msg = fmt.Sprintf("at least %s entries are required", fe.Param())
	case "oneof":
		msg = fmt.Sprintf("must be one of: %s", strings.Join(strings.Fields(fe.Param()), ", "))
	case "gte":
		msg = fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		msg = fmt.Sprintf("must be at most %s", fe.Param())
	case "url":
		msg = "must be a valid URL"
	default:
		msg = fmt.Sprintf("failed '%s' validation", fe.Tag())
	}

	return &ValidationError{Field: field, Message: msg}
}

// Helper functions

func isKnownPlaceholder(name string) bool {
	for _, k := range rigel.KnownPlaceholders {
		if k == name {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// findSimilar finds the most similar string using simple edit distance.
func findSimilar(target string, candidates []string) string {
	target = strings.ToLower(target)
	best := ""
	bestScore := -1

	for _, c := range candidates {
		score := similarity(target, strings.ToLower(c))
		if score > bestScore {
			bestScore = score
			best = c
		}
	}

	return best
}

// similarity returns a simple similarity score.
func similarity(a, b string) int {
	if a == b {
		return 100
	}

	// Check prefix
	score := 0
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] == b[i] {
			score += 2
		} else {
			break
		}
	}

	// Check contains
	if strings.Contains(b, a) || strings.Contains(a, b) {
		score += 10
	}

	return score
}
