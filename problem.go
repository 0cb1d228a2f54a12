package rigel

import (
	"strings"
	"time"
)

// Problem is the raw text of one problem. It is immutable once created.
type Problem struct {
	text string
}

// NewProblem creates a Problem from its statement.
func NewProblem(text string) Problem {
	return Problem{text: text}
}

// Text returns the problem statement.
func (p Problem) Text() string {
	return p.text
}

// Empty reports whether the statement is blank.
func (p Problem) Empty() bool {
	return strings.TrimSpace(p.text) == ""
}

// Candidate is one solution attempt produced by a single Reasoner run.
type Candidate struct {
	// Run is the 1-based reasoner run that produced this candidate
	Run int `json:"run"`

	// Steps are the reasoning steps preceding the answer
	Steps []string `json:"steps,omitempty"`

	// Answer is the extracted final answer
	Answer string `json:"answer"`

	// Raw is the full model output
	Raw string `json:"raw"`
}

// Pool is the ordered, append-only set of candidates for one problem.
// Order is generation order and carries no quality signal.
type Pool struct {
	candidates []*Candidate
}

// NewPool creates a pool holding the given candidates in order.
func NewPool(candidates ...*Candidate) *Pool {
	p := &Pool{}
	for _, c := range candidates {
		p.Append(c)
	}
	return p
}

// Append adds a candidate. Nil candidates are ignored.
func (p *Pool) Append(c *Candidate) {
	if c == nil {
		return
	}
	p.candidates = append(p.candidates, c)
}

// Len returns the number of candidates.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.candidates)
}

// At returns the i-th candidate (0-based) or nil when out of range.
func (p *Pool) At(i int) *Candidate {
	if i < 0 || i >= p.Len() {
		return nil
	}
	return p.candidates[i]
}

// First returns the earliest generated candidate.
func (p *Pool) First() *Candidate {
	return p.At(0)
}

// Candidates returns a copy of the candidate list.
func (p *Pool) Candidates() []*Candidate {
	out := make([]*Candidate, p.Len())
	if p != nil {
		copy(out, p.candidates)
	}
	return out
}

// Contains reports whether c is a member of the pool. Membership is by
// identity: an equal copy of a candidate is not a member.
func (p *Pool) Contains(c *Candidate) bool {
	return p.IndexOf(c) >= 0
}

// IndexOf returns the position of c in the pool, or -1.
func (p *Pool) IndexOf(c *Candidate) int {
	if c == nil || p == nil {
		return -1
	}
	for i, m := range p.candidates {
		if m == c {
			return i
		}
	}
	return -1
}

// Answers returns the candidates' answers in pool order.
func (p *Pool) Answers() []string {
	out := make([]string, 0, p.Len())
	for _, c := range p.Candidates() {
		out = append(out, c.Answer)
	}
	return out
}

// Selection references the chosen candidate of a pool.
type Selection struct {
	// Candidate points into the pool it was drawn from
	Candidate *Candidate `json:"candidate"`

	// Index is the candidate's 0-based position in the pool
	Index int `json:"index"`

	// Justification is the selector's reasoning
	Justification string `json:"justification,omitempty"`

	// Trivial is set when the pool held one candidate and no model was asked
	Trivial bool `json:"trivial,omitempty"`

	// Fallback is set when the selector failed and the first candidate was used
	Fallback bool `json:"fallback,omitempty"`
}

// Answer returns the selected candidate's answer.
func (s *Selection) Answer() string {
	if s == nil || s.Candidate == nil {
		return ""
	}
	return s.Candidate.Answer
}

// VerdictFlag is the outcome of verification.
type VerdictFlag string

const (
	VerdictCorrect   VerdictFlag = "CORRECT"
	VerdictIncorrect VerdictFlag = "INCORRECT"
)

// Verdict is the validator's judgement of a selection.
type Verdict struct {
	Flag VerdictFlag `json:"flag"`

	// Replacement is the corrected answer; only meaningful when INCORRECT
	Replacement string `json:"replacement,omitempty"`

	// Notes is the validator's raw output
	Notes string `json:"notes,omitempty"`
}

// Validate checks the verdict invariants.
func (v *Verdict) Validate() error {
	switch v.Flag {
	case VerdictCorrect:
		return nil
	case VerdictIncorrect:
		if strings.TrimSpace(v.Replacement) == "" {
			return ErrVerdictIncomplete
		}
		return nil
	default:
		return ErrVerdictUnclassified
	}
}

// AnswerSource records which stage produced the final answer.
type AnswerSource string

const (
	SourceSelector  AnswerSource = "selector"
	SourceValidator AnswerSource = "validator"
)

// RunStatus is the terminal status of a solve.
type RunStatus string

const (
	RunSolved RunStatus = "solved"
	RunFailed RunStatus = "failed"
)

// Result is the outcome of one solve.
type Result struct {
	RunID   string    `json:"run_id"`
	Problem string    `json:"problem"`
	Status  RunStatus `json:"status"`

	// Answer is the final answer; empty when the solve failed
	Answer string       `json:"answer,omitempty"`
	Source AnswerSource `json:"source,omitempty"`

	// Runs is the number of reasoner runs requested
	Runs int `json:"runs"`

	Candidates []*Candidate `json:"candidates"`
	Selection  *Selection   `json:"selection,omitempty"`
	Verdict    *Verdict     `json:"verdict,omitempty"`

	// Diagnostics lists every recovered stage failure
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`

	// Error is set when Status is failed
	Error string `json:"error,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// Cached is set when the result came from the result cache
	Cached bool `json:"cached,omitempty"`
}

// clone returns a copy of r that shares no mutable state with it. The
// copied Selection points into the copied candidates.
func (r *Result) clone() *Result {
	out := *r
	if r.Candidates != nil {
		out.Candidates = make([]*Candidate, len(r.Candidates))
		for i, c := range r.Candidates {
			cc := *c
			cc.Steps = append([]string(nil), c.Steps...)
			out.Candidates[i] = &cc
		}
	}
	if r.Selection != nil {
		sel := *r.Selection
		if sel.Index >= 0 && sel.Index < len(out.Candidates) {
			sel.Candidate = out.Candidates[sel.Index]
		}
		out.Selection = &sel
	}
	if r.Verdict != nil {
		v := *r.Verdict
		out.Verdict = &v
	}
	out.Diagnostics = append([]Diagnostic(nil), r.Diagnostics...)
	return &out
}
