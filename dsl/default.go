package dsl

import (
	_ "embed"
	"fmt"
)

//go:embed defaults/math.rigel.yaml
var defaultDocument []byte

// DefaultYAML returns the embedded math document, e.g. for writing a
// starter file.
func DefaultYAML() []byte {
	out := make([]byte, len(defaultDocument))
	copy(out, defaultDocument)
	return out
}

// Default parses the embedded math document.
func Default() (*Document, error) {
	doc, err := NewParser().Parse(defaultDocument)
	if err != nil {
		return nil, fmt.Errorf("default document: %w", err)
	}
	return doc, nil
}

// Load parses the document at path, or the embedded default when path is
// empty.
func Load(path string) (*Document, error) {
	if path == "" {
		return Default()
	}
	return NewParser().ParseFile(path)
}
