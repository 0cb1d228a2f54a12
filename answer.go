package rigel

import (
	"regexp"
	"strconv"
	"strings"
)

// boxMarkers are the delimiters recognised around a final answer.
var boxMarkers = []string{`\boxed{`, `\fbox{`}

var (
	verdictPattern   = regexp.MustCompile(`(?im)^[\s*#>\-]*VERIFICATION\s*:\s*\**\s*(CORRECT|INCORRECT)\b`)
	selectionMarker  = regexp.MustCompile(`(?i)SELECTION\s*:`)
	solutionRefRegex = regexp.MustCompile(`(?i)\b(?:solution|candidate)\s*(?:#|no\.?)?\s*\[?\s*(\d+)\s*\]?`)
)

// ExtractBoxed returns the contents of the last \boxed{...} (or \fbox{...})
// span with balanced braces. Prose before and after the span is ignored.
// An unbalanced trailing span is skipped in favour of the previous one.
func ExtractBoxed(text string) (string, bool) {
	_, content, ok := lastBoxed(text)
	return content, ok
}

// lastBoxed returns the start offset and contents of the last usable span.
func lastBoxed(text string) (int, string, bool) {
	var starts []int
	for _, marker := range boxMarkers {
		for off := 0; ; {
			i := strings.Index(text[off:], marker)
			if i < 0 {
				break
			}
			starts = append(starts, off+i)
			off += i + len(marker)
		}
	}

	best := -1
	var bestContent string
	for _, start := range starts {
		if start <= best {
			continue
		}
		open := strings.IndexByte(text[start:], '{') + start
		content, ok := balanced(text, open)
		if !ok {
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		best, bestContent = start, content
	}
	if best < 0 {
		return -1, "", false
	}
	return best, bestContent, true
}

// balanced returns the text between the brace at open and its match.
func balanced(text string, open int) (string, bool) {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '\\':
			// Skip escaped braces such as \{ and \}.
			if i+1 < len(text) && (text[i+1] == '{' || text[i+1] == '}') {
				i++
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[open+1 : i], true
			}
		}
	}
	return "", false
}

var answerReplacer = strings.NewReplacer(
	`\left`, "",
	`\right`, "",
	`\!`, "",
	`\,`, "",
	`\;`, "",
	`\dfrac`, `\frac`,
	`\tfrac`, `\frac`,
	"$", "",
	" ", "",
	"\t", "",
	"\n", "",
)

// NormalizeAnswer reduces an answer to a canonical form for comparison:
// math-mode spacing and delimiters are dropped, \text{} wrappers unwrapped,
// and a trailing period removed. The result is lower-cased.
func NormalizeAnswer(s string) string {
	s = strings.TrimSpace(s)
	if inner, ok := unwrapCommand(s, `\text{`); ok {
		s = inner
	}
	s = answerReplacer.Replace(s)
	s = strings.TrimSuffix(s, ".")
	return strings.ToLower(s)
}

func unwrapCommand(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	inner, ok := balanced(s, len(prefix)-1)
	if !ok || len(inner)+len(prefix)+1 != len(s) {
		return "", false
	}
	return inner, true
}

// ReasoningSteps splits the text preceding the final boxed answer into
// non-empty lines.
func ReasoningSteps(text string) []string {
	if start, _, ok := lastBoxed(text); ok {
		// Keep the line that holds the answer.
		if nl := strings.IndexByte(text[start:], '\n'); nl >= 0 {
			text = text[:start+nl]
		}
	}

	var steps []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			steps = append(steps, line)
		}
	}
	return steps
}

// ParseCandidate builds a Candidate from one reasoner output.
func ParseCandidate(run int, raw string) (*Candidate, error) {
	answer, ok := ExtractBoxed(raw)
	if !ok {
		return nil, ErrUnparsableAnswer
	}
	return &Candidate{
		Run:    run,
		Steps:  ReasoningSteps(raw),
		Answer: answer,
		Raw:    raw,
	}, nil
}

// ParseVerdict classifies validator output. The last VERIFICATION header
// line wins. An INCORRECT verdict takes its replacement from the last boxed
// answer after that header; boxed text before it is the answer under review.
func ParseVerdict(text string) (*Verdict, error) {
	matches := verdictPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil, ErrVerdictUnclassified
	}
	last := matches[len(matches)-1]
	flag := VerdictFlag(strings.ToUpper(text[last[2]:last[3]]))

	v := &Verdict{Flag: flag, Notes: text}
	if flag == VerdictIncorrect {
		v.Replacement, _ = ExtractBoxed(text[last[1]:])
	}

	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// SolutionReference returns the "Solution N" or "Candidate N" reference
// naming the selector's pick. After the last "SELECTION:" marker the first
// reference wins, since later ones compare it with the rest. Without a
// marker the last reference in text is used.
func SolutionReference(text string) (int, bool) {
	if locs := selectionMarker.FindAllStringIndex(text, -1); len(locs) > 0 {
		matches := solutionRefRegex.FindAllStringSubmatch(text[locs[len(locs)-1][1]:], -1)
		if n, ok := referenceAt(matches, 0); ok {
			return n, true
		}
	}
	matches := solutionRefRegex.FindAllStringSubmatch(text, -1)
	return referenceAt(matches, len(matches)-1)
}

func referenceAt(matches [][]string, i int) (int, bool) {
	if i < 0 || i >= len(matches) {
		return 0, false
	}
	n, err := strconv.Atoi(matches[i][1])
	if err != nil {
		return 0, false
	}
	return n, true
}
