package accumulate

import "strings"

// VariantEntry is one accepted spelling of a concept. Score is the linker
// confidence of the occurrence that created the entry; later matches only
// bump Count.
type VariantEntry struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
	Count int     `json:"count"`
}

// ConceptEntry is one row of the index.
type ConceptEntry struct {
	ID       string         `json:"-"`
	Name     string         `json:"name"`
	Variants []VariantEntry `json:"terms"`
}

// merge folds one normalized span into the variant list. The first
// matching entry wins:
//   - same text: count it
//   - existing text is the lowercase of the new text: count it
//   - lowercase of the existing text is the new text: count it and keep
//     the lowercase spelling
//
// Otherwise the span becomes a new variant. merge reports whether a new
// variant was appended.
func (c *ConceptEntry) merge(text string, score float64) bool {
	lower := strings.ToLower(text)
	for i := range c.Variants {
		v := &c.Variants[i]
		switch {
		case v.Text == text, v.Text == lower:
		case strings.ToLower(v.Text) == text:
			v.Text = text
		default:
			continue
		}
		v.Count++
		return false
	}
	c.Variants = append(c.Variants, VariantEntry{Text: text, Score: score, Count: 1})
	return true
}

func (c *ConceptEntry) clone() *ConceptEntry {
	out := &ConceptEntry{ID: c.ID, Name: c.Name, Variants: make([]VariantEntry, len(c.Variants))}
	copy(out.Variants, c.Variants)
	return out
}

// Index is the cumulative concept -> variants table. Concepts keep the
// order in which they were first observed.
type Index struct {
	order   []string
	entries map[string]*ConceptEntry
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]*ConceptEntry)}
}

// Len returns the number of concepts.
func (x *Index) Len() int { return len(x.order) }

// IDs returns concept ids in first-observed order.
func (x *Index) IDs() []string {
	out := make([]string, len(x.order))
	copy(out, x.order)
	return out
}

// Get returns the entry for id.
func (x *Index) Get(id string) (*ConceptEntry, bool) {
	e, ok := x.entries[id]
	return e, ok
}

// Entries returns the concepts in first-observed order.
func (x *Index) Entries() []*ConceptEntry {
	out := make([]*ConceptEntry, 0, len(x.order))
	for _, id := range x.order {
		out = append(out, x.entries[id])
	}
	return out
}

// Put appends or replaces a concept. Replacing keeps the original position.
// It is used when restoring a persisted index.
func (x *Index) Put(e ConceptEntry) {
	if _, ok := x.entries[e.ID]; !ok {
		x.order = append(x.order, e.ID)
	}
	x.entries[e.ID] = &e
}

// VariantCount returns the total number of variants over all concepts.
func (x *Index) VariantCount() int {
	n := 0
	for _, e := range x.entries {
		n += len(e.Variants)
	}
	return n
}

// Clone returns a deep copy.
func (x *Index) Clone() *Index {
	out := &Index{order: x.IDs(), entries: make(map[string]*ConceptEntry, len(x.entries))}
	for id, e := range x.entries {
		out.entries[id] = e.clone()
	}
	return out
}

// concept returns the entry for id, creating it with name on first sight.
// The first name recorded for a concept is kept.
func (x *Index) concept(id, name string) *ConceptEntry {
	if e, ok := x.entries[id]; ok {
		return e
	}
	e := &ConceptEntry{ID: id, Name: name, Variants: []VariantEntry{}}
	x.entries[id] = e
	x.order = append(x.order, id)
	return e
}
