// Package annotate wraps an external entity linker behind one narrow call:
// given a document's text, return the linked concepts with their spans.
package annotate

import (
	"context"
	"fmt"
	"strings"

	"github.com/cognicore/termset/pkg/termset/internalerr"
)

// DefaultThreshold is the minimum linker score kept by an Adapter.
const DefaultThreshold = 0.7

// Candidate is one concept a linker proposes for a span.
type Candidate struct {
	ConceptID     string
	CanonicalName string
	Score         float64
}

// Entity is a recognized text span and its linked candidates.
type Entity struct {
	Text       string
	Candidates []Candidate
}

// Linker is the entity recognition and linking collaborator.
type Linker interface {
	Link(ctx context.Context, text string) ([]Entity, error)
}

// LinkerFunc adapts a function to the Linker interface.
type LinkerFunc func(ctx context.Context, text string) ([]Entity, error)

// Link implements Linker.
func (f LinkerFunc) Link(ctx context.Context, text string) ([]Entity, error) {
	return f(ctx, text)
}

// RawSpan is one retained span of a document. It is never persisted.
type RawSpan struct {
	ConceptID     string
	CanonicalName string
	Text          string
	Score         float64
}

// Concept groups the spans of one concept within a document.
type Concept struct {
	Name  string
	Spans []RawSpan
}

// Result is the per-document output: concept id -> concept.
// Order holds the concept ids in first-appearance order.
type Result struct {
	Concepts map[string]*Concept
	Order    []string
}

// NewResult returns an empty result.
func NewResult() Result {
	return Result{Concepts: make(map[string]*Concept)}
}

// Add appends a span, creating the concept on first sight. The first name
// recorded for a concept is kept.
func (r *Result) Add(span RawSpan) {
	if r.Concepts == nil {
		r.Concepts = make(map[string]*Concept)
	}
	c, ok := r.Concepts[span.ConceptID]
	if !ok {
		c = &Concept{Name: span.CanonicalName}
		r.Concepts[span.ConceptID] = c
		r.Order = append(r.Order, span.ConceptID)
	}
	c.Spans = append(c.Spans, span)
}

// Len returns the number of concepts.
func (r Result) Len() int { return len(r.Order) }

// Options configures an Adapter.
type Options struct {
	// Threshold is the minimum candidate score; lower-scored candidates are
	// dropped. Zero means DefaultThreshold.
	Threshold float64
	// OnDrop, when set, is called once per discarded candidate.
	OnDrop func(c Candidate)
}

// Adapter applies the confidence threshold and span cleanup to a Linker.
type Adapter struct {
	linker    Linker
	threshold float64
	onDrop    func(Candidate)
}

// New builds an Adapter. The threshold is fixed for the adapter's lifetime.
func New(linker Linker, opts Options) (*Adapter, error) {
	if linker == nil {
		return nil, fmt.Errorf("%w: annotate: linker is required", internalerr.ErrConfiguration)
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: annotate: threshold %v outside [0,1]", internalerr.ErrConfiguration, threshold)
	}
	return &Adapter{linker: linker, threshold: threshold, onDrop: opts.OnDrop}, nil
}

// Threshold returns the configured minimum score.
func (a *Adapter) Threshold() float64 { return a.threshold }

// Annotate links one document and returns the retained spans by concept.
func (a *Adapter) Annotate(ctx context.Context, text string) (Result, error) {
	entities, err := a.linker.Link(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", internalerr.ErrAnnotation, err)
	}

	res := NewResult()
	for _, ent := range entities {
		for _, c := range ent.Candidates {
			if c.Score < a.threshold {
				if a.onDrop != nil {
					a.onDrop(c)
				}
				continue
			}
			res.Add(RawSpan{
				ConceptID:     c.ConceptID,
				CanonicalName: c.CanonicalName,
				Text:          CleanSpan(ent.Text),
				Score:         c.Score,
			})
		}
	}
	return res, nil
}

var spanReplacer = strings.NewReplacer("\r", " ", "\n", " ")

// CleanSpan replaces carriage returns and newlines with spaces and trims.
func CleanSpan(s string) string {
	return strings.TrimSpace(spanReplacer.Replace(s))
}
