package stoplist

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTerms are the leading tokens that mark a negated or possessive
// mention ("denies hypertension", "his diabetes").
var DefaultTerms = []string{"denied", "denies", "her", "his", "negative", "no"}

// Manager holds the leading-token stopword set.
// Lookups are case-insensitive.
type Manager struct {
	stops map[string]struct{}
}

// NewManager creates a stoplist from the given terms.
func NewManager(terms []string) *Manager {
	stops := make(map[string]struct{}, len(terms))
	for _, s := range terms {
		stops[strings.ToLower(s)] = struct{}{}
	}
	return &Manager{stops: stops}
}

// Default returns a manager seeded with DefaultTerms.
func Default() *Manager {
	return NewManager(DefaultTerms)
}

// IsStop checks if a token is a stopword
func (m *Manager) IsStop(token string) bool {
	_, ok := m.stops[strings.ToLower(token)]
	return ok
}

// Add adds a token to the stoplist
func (m *Manager) Add(token string) {
	m.stops[strings.ToLower(token)] = struct{}{}
}

// Remove removes a token from the stoplist
func (m *Manager) Remove(token string) {
	delete(m.stops, strings.ToLower(token))
}

// All returns all stopwords, sorted.
func (m *Manager) All() []string {
	result := make([]string, 0, len(m.stops))
	for s := range m.stops {
		result = append(result, s)
	}
	sort.Strings(result)
	return result
}

// Rejects reports whether a span should be discarded: its whitespace-split
// lowercase form is empty, or its first token is a stopword.
func (m *Manager) Rejects(text string) bool {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return true
	}
	return m.IsStop(words[0])
}

// File is the YAML layout of a stoplist file.
type File struct {
	Terms []string `yaml:"terms"`
}

// Load reads a stoplist from a YAML file with a top-level "terms" list.
func Load(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse stoplist %s: %w", path, err)
	}

	return NewManager(f.Terms), nil
}
