// Package answer resolves visitor questions against the project Q&A corpus.
package answer

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidEntry is returned for corpus entries without keywords or answer.
var ErrInvalidEntry = errors.New("invalid corpus entry")

// Entry is one keyworded Q&A item. Entries are immutable once loaded.
type Entry struct {
	Name     string   `yaml:"name,omitempty" json:"name,omitempty"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Answer   string   `yaml:"answer" json:"answer"`
}

// LoadCorpus reads a YAML (or JSON) list of entries from path. An empty path
// yields an empty corpus.
func LoadCorpus(path string) ([]Entry, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return ParseCorpus(data)
}

// ParseCorpus decodes and validates corpus entries.
func ParseCorpus(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}

	for i, e := range entries {
		if strings.TrimSpace(e.Answer) == "" {
			return nil, fmt.Errorf("%w: entry %d has no answer", ErrInvalidEntry, i)
		}
		if !hasKeyword(e.Keywords) {
			return nil, fmt.Errorf("%w: entry %d has no keywords", ErrInvalidEntry, i)
		}
	}
	return entries, nil
}

func hasKeyword(keywords []string) bool {
	for _, k := range keywords {
		if strings.TrimSpace(k) != "" {
			return true
		}
	}
	return false
}
