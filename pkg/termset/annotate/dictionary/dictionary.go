// Package dictionary is an offline annotate.Linker backed by a curated
// concept vocabulary. It finds synonyms in text with a greedy longest-match
// over tokens.
package dictionary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/termset/pkg/termset/annotate"
	"github.com/cognicore/termset/pkg/termset/internalerr"
)

// CaseFoldPenalty scales the score of a match whose casing differs from
// every listed synonym.
const CaseFoldPenalty = 0.9

// Entry is one concept of the vocabulary.
type Entry struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Synonyms []string `yaml:"synonyms"`
	Score    float64  `yaml:"score"`
}

type phraseRef struct {
	entry   int
	surface string // synonym tokens joined by a single space, original case
}

// Dictionary implements annotate.Linker.
type Dictionary struct {
	entries []Entry
	phrases map[string][]phraseRef // lowercase phrase -> synonyms
	maxLen  int
}

// New builds a dictionary from entries. Each entry's name is matched as a
// synonym of itself. Entries without an id are skipped.
func New(entries []Entry) *Dictionary {
	d := &Dictionary{phrases: make(map[string][]phraseRef), maxLen: 1}
	index := make(map[string]int)

	for _, e := range entries {
		if strings.TrimSpace(e.ID) == "" {
			continue
		}
		if e.Score == 0 {
			e.Score = 1.0
		}
		idx, ok := index[e.ID]
		if !ok {
			idx = len(d.entries)
			index[e.ID] = idx
			d.entries = append(d.entries, Entry{ID: e.ID, Name: e.Name, Score: e.Score})
		}
		if d.entries[idx].Name == "" {
			d.entries[idx].Name = e.Name
		}
		if e.Name != "" {
			d.addPhrase(idx, e.Name)
		}
		for _, syn := range e.Synonyms {
			d.addPhrase(idx, syn)
		}
	}
	return d
}

func (d *Dictionary) addPhrase(idx int, phrase string) {
	toks := tokenize(phrase)
	if len(toks) == 0 {
		return
	}
	surface := joinTokens(phrase, toks, false)
	key := joinTokens(phrase, toks, true)
	for _, ref := range d.phrases[key] {
		if ref.entry == idx && ref.surface == surface {
			return
		}
	}
	d.phrases[key] = append(d.phrases[key], phraseRef{entry: idx, surface: surface})
	d.entries[idx].Synonyms = append(d.entries[idx].Synonyms, phrase)
	if len(toks) > d.maxLen {
		d.maxLen = len(toks)
	}
}

// Len returns the number of concepts.
func (d *Dictionary) Len() int { return len(d.entries) }

// Entries returns the concepts in load order.
func (d *Dictionary) Entries() []Entry { return d.entries }

// Link finds dictionary synonyms in text, longest match first.
func (d *Dictionary) Link(ctx context.Context, text string) ([]annotate.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	toks := tokenize(text)
	var out []annotate.Entity

	i := 0
	for i < len(toks) {
		maxPhrase := d.maxLen
		if remaining := len(toks) - i; maxPhrase > remaining {
			maxPhrase = remaining
		}

		matched := 0
		for n := maxPhrase; n >= 1; n-- {
			window := toks[i : i+n]
			refs, ok := d.phrases[joinTokens(text, window, true)]
			if !ok {
				continue
			}
			out = append(out, annotate.Entity{
				Text:       text[window[0].start:window[n-1].end],
				Candidates: d.candidates(refs, joinTokens(text, window, false)),
			})
			matched = n
			break
		}

		if matched > 0 {
			i += matched
		} else {
			i++
		}
	}
	return out, nil
}

// candidates returns one candidate per concept, scored by whether any of
// the concept's synonyms matches the surface with its exact casing.
func (d *Dictionary) candidates(refs []phraseRef, surface string) []annotate.Candidate {
	var out []annotate.Candidate
	pos := make(map[int]int)
	for _, ref := range refs {
		e := d.entries[ref.entry]
		score := e.Score * CaseFoldPenalty
		if ref.surface == surface {
			score = e.Score
		}
		if p, ok := pos[ref.entry]; ok {
			if score > out[p].Score {
				out[p].Score = score
			}
			continue
		}
		pos[ref.entry] = len(out)
		out = append(out, annotate.Candidate{ConceptID: e.ID, CanonicalName: e.Name, Score: score})
	}
	return out
}

type token struct {
	start, end int // byte offsets
}

// tokenize splits on anything that is not a letter, digit, hyphen or
// apostrophe, keeping byte offsets into s.
func tokenize(s string) []token {
	var toks []token
	start := -1
	for i, r := range s {
		inWord := unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '\''
		switch {
		case inWord && start < 0:
			start = i
		case !inWord && start >= 0:
			toks = append(toks, token{start, i})
			start = -1
		}
	}
	if start >= 0 {
		toks = append(toks, token{start, len(s)})
	}
	return toks
}

func joinTokens(s string, toks []token, lower bool) string {
	var b strings.Builder
	for i, t := range toks {
		if i > 0 {
			b.WriteByte(' ')
		}
		w := s[t.start:t.end]
		if lower {
			w = strings.ToLower(w)
		}
		b.WriteString(w)
	}
	return b.String()
}

// yamlFile is the on-disk vocabulary format:
//
//	concepts:
//	  - id: C0020538
//	    name: Hypertensive disease
//	    synonyms: [hypertension, HTN, high blood pressure]
type yamlFile struct {
	Concepts []Entry `yaml:"concepts"`
}

// LoadYAML reads a YAML vocabulary.
func LoadYAML(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read dictionary: %w", internalerr.ErrConfiguration, err)
	}

	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse dictionary %s: %w", internalerr.ErrConfiguration, path, err)
	}

	return nonEmpty(New(f.Concepts), path)
}

// Open loads a vocabulary by file name: *.rrf files are read as UMLS
// MRCONSO tables, anything else as YAML.
func Open(path string, opts RRFOptions) (*Dictionary, error) {
	if strings.EqualFold(filepath.Ext(path), ".rrf") {
		return LoadMRCONSO(path, opts)
	}
	return LoadYAML(path)
}

func nonEmpty(d *Dictionary, path string) (*Dictionary, error) {
	if d.Len() == 0 {
		return nil, fmt.Errorf("%w: dictionary %s has no concepts", internalerr.ErrConfiguration, path)
	}
	return d, nil
}
