// Package termset turns an accumulated index into reviewed termsets: the
// spellings of a few concepts of interest that a downstream matcher should
// look for.
package termset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/termset/pkg/termset/accumulate"
	"github.com/cognicore/termset/pkg/termset/internalerr"
)

// Suffixes used by the generate and review steps when saving.
const (
	GeneratedSuffix = " termset.json"
	ReviewedSuffix  = " termset_reviewed.json"
)

// ConceptOfInterest groups the concept ids that make up one named concept.
type ConceptOfInterest struct {
	Name string
	CUIs []string
}

// LoadConcepts reads a concept file. CSV files need "concept" and "cui"
// columns, one row per id. JSON files map a concept name to a list of ids,
// a single id, or an object of ids. Concepts keep file order.
func LoadConcepts(path string) ([]ConceptOfInterest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []ConceptOfInterest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		out, err = readConceptCSV(f)
	case ".json":
		out, err = readConceptJSON(f)
	default:
		return nil, fmt.Errorf("%w: unsupported concept file %q", internalerr.ErrConfiguration, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

type conceptBuilder struct {
	order []string
	cuis  map[string][]string
}

func (b *conceptBuilder) add(name, cui string) {
	if b.cuis == nil {
		b.cuis = make(map[string][]string)
	}
	if _, ok := b.cuis[name]; !ok {
		b.order = append(b.order, name)
		b.cuis[name] = nil
	}
	if cui != "" {
		b.cuis[name] = append(b.cuis[name], cui)
	}
}

func (b *conceptBuilder) build() []ConceptOfInterest {
	out := make([]ConceptOfInterest, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, ConceptOfInterest{Name: name, CUIs: b.cuis[name]})
	}
	return out
}

func readConceptCSV(r io.Reader) ([]ConceptOfInterest, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: concept csv header: %w", internalerr.ErrInvalidInput, err)
	}
	nameCol, cuiCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "concept":
			nameCol = i
		case "cui":
			cuiCol = i
		}
	}
	if nameCol < 0 || cuiCol < 0 {
		return nil, fmt.Errorf("%w: concept csv needs concept and cui columns", internalerr.ErrInvalidInput)
	}

	var b conceptBuilder
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: concept csv: %w", internalerr.ErrInvalidInput, err)
		}
		if nameCol >= len(rec) || cuiCol >= len(rec) {
			continue
		}
		name := strings.TrimSpace(rec[nameCol])
		if name == "" {
			continue
		}
		b.add(name, strings.TrimSpace(rec[cuiCol]))
	}
	return b.build(), nil
}

func readConceptJSON(r io.Reader) ([]ConceptOfInterest, error) {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var b conceptBuilder
	for dec.More() {
		name, err := stringToken(dec)
		if err != nil {
			return nil, err
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: concept %q: %w", internalerr.ErrInvalidInput, name, err)
		}
		cuis, err := cuiValues(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: concept %q: %w", internalerr.ErrInvalidInput, name, err)
		}
		b.add(name, "")
		for _, c := range cuis {
			b.add(name, c)
		}
	}
	return b.build(), nil
}

// cuiValues accepts ["C1", "C2"], "C1", or {"0": "C1", "1": null}. Object
// values keep document order and nulls are skipped.
func cuiValues(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return nonEmpty([]string{s}), nil
	case '[':
		var list []*string
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return derefAll(list), nil
	case '{':
		dec := json.NewDecoder(bytes.NewReader(raw))
		if err := expectDelim(dec, '{'); err != nil {
			return nil, err
		}
		var list []*string
		for dec.More() {
			if _, err := stringToken(dec); err != nil {
				return nil, err
			}
			var v *string
			if err := dec.Decode(&v); err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return derefAll(list), nil
	case 'n':
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected value %s", raw)
	}
}

func derefAll(list []*string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != nil {
			out = append(out, *s)
		}
	}
	return nonEmpty(out)
}

func nonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", internalerr.ErrInvalidInput, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %v, got %v", internalerr.ErrInvalidInput, want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %w", internalerr.ErrInvalidInput, err)
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w: unexpected token %v", internalerr.ErrInvalidInput, tok)
	}
	return s, nil
}

// PhraseCounts holds the spellings found for one concept of interest and
// how often each occurred.
type PhraseCounts struct {
	Concept string
	Counts  map[string]int
}

// PhraseDict collects, for each selected concept, the spellings of its ids
// whose score is at least minConfidence. When two ids share a spelling the
// later id's count wins. A nil selected list means every concept. Concepts
// whose ids never occur in idx still appear with empty counts.
func PhraseDict(idx *accumulate.Index, concepts []ConceptOfInterest, selected []string, minConfidence float64) []PhraseCounts {
	var want map[string]bool
	if selected != nil {
		want = make(map[string]bool, len(selected))
		for _, s := range selected {
			want[s] = true
		}
	}

	var out []PhraseCounts
	for _, c := range concepts {
		if want != nil && !want[c.Name] {
			continue
		}
		counts := make(map[string]int)
		for _, cui := range c.CUIs {
			e, ok := idx.Get(cui)
			if !ok {
				continue
			}
			for _, v := range e.Variants {
				if v.Score >= minConfidence {
					counts[v.Text] = v.Count
				}
			}
		}
		out = append(out, PhraseCounts{Concept: c.Name, Counts: counts})
	}
	return out
}

// TermCount is one row of a ranked phrase table.
type TermCount struct {
	Term  string `json:"term" yaml:"term"`
	Count int    `json:"count" yaml:"count"`
}

// Rank orders counts by count descending, then term ascending.
func Rank(counts map[string]int) []TermCount {
	out := make([]TermCount, 0, len(counts))
	for term, n := range counts {
		out = append(out, TermCount{Term: term, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// Termset is the final list of spellings for one concept.
type Termset struct {
	Concept string
	Terms   []string
}

// FromCounts builds a termset from every spelling in counts, sorted.
func FromCounts(pc PhraseCounts) Termset {
	terms := make([]string, 0, len(pc.Counts))
	for t := range pc.Counts {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return Termset{Concept: pc.Concept, Terms: terms}
}

// AddTerms merges a comma-separated list of manual additions into terms.
// Entries are trimmed, blanks and duplicates dropped, and the result sorted.
func AddTerms(terms []string, list string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	add := func(t string) {
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		out = append(out, t)
	}
	for _, t := range terms {
		add(t)
	}
	if strings.TrimSpace(list) != "" {
		for _, t := range strings.Split(list, ",") {
			add(strings.TrimSpace(t))
		}
	}
	sort.Strings(out)
	return out
}

// Filename returns the file name Save uses for concept.
func Filename(concept, suffix string) string {
	name := strings.NewReplacer("/", "_", string(filepath.Separator), "_").Replace(concept)
	return name + suffix
}

// Encode writes ts as {"<concept>": [terms...]} with four-space indentation.
func Encode(w io.Writer, ts Termset) error {
	terms := ts.Terms
	if terms == nil {
		terms = []string{}
	}
	key, err := json.Marshal(ts.Concept)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("    ", "    ")
	if err := enc.Encode(terms); err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "{\n    %s: %s\n}", key, bytes.TrimRight(buf.Bytes(), "\n"))
	return err
}

// Save writes ts to dir/<concept><suffix>, creating dir when missing, and
// returns the path written.
func Save(dir, suffix string, ts Termset) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", internalerr.ErrPersistence, dir, err)
	}
	path := filepath.Join(dir, Filename(ts.Concept, suffix))

	var buf bytes.Buffer
	if err := Encode(&buf, ts); err != nil {
		return "", fmt.Errorf("%w: encode termset: %w", internalerr.ErrPersistence, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("%w: write %s: %w", internalerr.ErrPersistence, path, err)
	}
	return path, nil
}

// LoadSaved reads a saved termset file. Concepts are returned sorted by
// name with their terms sorted and deduplicated.
func LoadSaved(path string) ([]Termset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string][]*string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", internalerr.ErrInvalidInput, path, err)
	}

	out := make([]Termset, 0, len(raw))
	for concept, terms := range raw {
		out = append(out, Termset{Concept: concept, Terms: AddTerms(derefAll(terms), "")})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Concept < out[j].Concept })
	return out, nil
}

type lexiconFile struct {
	Synonyms []lexiconGroup `yaml:"synonyms"`
}

type lexiconGroup struct {
	Canonical string   `yaml:"canonical"`
	Variants  []string `yaml:"variants"`
}

// ExportLexicon writes termsets as a YAML synonym lexicon, one group per
// concept with the concept name as the canonical form.
func ExportLexicon(w io.Writer, termsets []Termset) error {
	var lf lexiconFile
	for _, ts := range termsets {
		variants := ts.Terms
		if variants == nil {
			variants = []string{}
		}
		lf.Synonyms = append(lf.Synonyms, lexiconGroup{Canonical: ts.Concept, Variants: variants})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(lf); err != nil {
		return fmt.Errorf("%w: lexicon: %w", internalerr.ErrPersistence, err)
	}
	return enc.Close()
}

// Describe renders "<id> <name> [t1, t2]" lines for ids. With no ids every
// concept is listed, fewest variants first.
func Describe(idx *accumulate.Index, ids []string) []string {
	var entries []*accumulate.ConceptEntry
	if len(ids) == 0 {
		entries = idx.Entries()
		sort.SliceStable(entries, func(i, j int) bool {
			return len(entries[i].Variants) < len(entries[j].Variants)
		})
	} else {
		for _, id := range ids {
			if e, ok := idx.Get(id); ok {
				entries = append(entries, e)
			}
		}
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		texts := make([]string, len(e.Variants))
		for i, v := range e.Variants {
			texts[i] = v.Text
		}
		out = append(out, fmt.Sprintf("%s %s [%s]", e.ID, e.Name, strings.Join(texts, ", ")))
	}
	return out
}
