package rigel

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Role describes who the model plays for one stage. It's a blueprint: the
// same Role is reused for every invocation of its stage.
type Role struct {
	// Name is the identifier used in the pipeline document
	Name string

	// Label is the role title, e.g. "Deductive Reasoner"
	Label string

	// Goal is the role's personal goal
	Goal string

	// Backstory is the long-form system prompt text
	Backstory string

	// Model is the LLM model ID (optional, the invoker default is used if empty)
	Model string

	// Temperature for generation (optional)
	Temperature *float64

	// MaxTokens limits response length (optional)
	MaxTokens int
}

// SystemPrompt renders the role into a system prompt.
func (r Role) SystemPrompt() string {
	var b strings.Builder
	label := r.Label
	if label == "" {
		label = r.Name
	}
	fmt.Fprintf(&b, "You are %s.", label)
	if bs := strings.TrimSpace(r.Backstory); bs != "" {
		b.WriteString(" ")
		b.WriteString(bs)
	}
	if goal := strings.TrimSpace(r.Goal); goal != "" {
		b.WriteString("\nYour personal goal is: ")
		b.WriteString(goal)
	}
	return b.String()
}

// Template placeholders understood by the stages.
const (
	VarProblem    = "problem"
	VarCandidates = "candidates"
	VarCandidate  = "candidate"
	VarAnswer     = "answer"
	VarCount      = "count"
)

// KnownPlaceholders lists every placeholder a Task may reference.
var KnownPlaceholders = []string{VarProblem, VarCandidates, VarCandidate, VarAnswer, VarCount}

// exprPattern matches {{name}} and {{name | filter}} placeholders.
var exprPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Task is the prompt template of one stage.
type Task struct {
	Name string

	// Description is the prompt body with {{placeholders}}
	Description string

	// ExpectedOutput is appended as the required output format
	ExpectedOutput string

	// Role performs the task
	Role Role
}

// Render substitutes vars into the task and returns the prompt text.
// Unknown placeholders are left in place.
func (t Task) Render(vars map[string]string) string {
	prompt := interpolate(t.Description, vars)
	if expected := strings.TrimSpace(interpolate(t.ExpectedOutput, vars)); expected != "" {
		prompt = strings.TrimRight(prompt, "\n") + "\n\nExpected output: " + expected
	}
	return prompt
}

func interpolate(template string, vars map[string]string) string {
	return exprPattern.ReplaceAllStringFunc(template, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-2])

		name, filter, hasFilter := strings.Cut(expr, "|")
		name = strings.TrimSpace(name)
		val, ok := vars[name]
		if !ok {
			return match
		}
		if hasFilter {
			val = applyFilter(val, strings.TrimSpace(filter))
		}
		return val
	})
}

func applyFilter(s, filter string) string {
	name, arg, _ := strings.Cut(filter, ":")

	switch name {
	case "upper":
		return strings.ToUpper(s)
	case "lower":
		return strings.ToLower(s)
	case "trim":
		return strings.TrimSpace(s)
	case "default":
		if s == "" {
			return arg
		}
		return s
	case "truncate":
		var maxLen int
		fmt.Sscanf(arg, "%d", &maxLen)
		if maxLen > 0 && len(s) > maxLen {
			return s[:maxLen] + "..."
		}
		return s
	default:
		return s
	}
}

// Placeholders returns the distinct placeholder names used in s, sorted.
func Placeholders(s string) []string {
	seen := make(map[string]bool)
	for _, m := range exprPattern.FindAllStringSubmatch(s, -1) {
		name, _, _ := strings.Cut(m[1], "|")
		seen[strings.TrimSpace(name)] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
