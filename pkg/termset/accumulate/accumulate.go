// Package accumulate merges per-document annotation results into one
// corpus-wide, deduplicated concept -> variant index and checkpoints it
// while a batch run progresses.
package accumulate

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/termset/internal/logging"
	"github.com/cognicore/termset/internal/metrics"
	"github.com/cognicore/termset/pkg/termset/annotate"
	"github.com/cognicore/termset/pkg/termset/internalerr"
	"github.com/cognicore/termset/pkg/termset/stoplist"
)

// DefaultCheckpointInterval is the number of documents between snapshots.
const DefaultCheckpointInterval = 50

// Annotator produces the per-document concept spans. *annotate.Adapter
// satisfies it.
type Annotator interface {
	Annotate(ctx context.Context, text string) (annotate.Result, error)
}

// Source yields document texts in corpus order.
type Source interface {
	Next() (text string, ok bool)
}

// Checkpoint is one persisted view of a run.
type Checkpoint struct {
	RunID     string
	Documents int
	Final     bool
	At        time.Time
	Index     *Index
}

// Sink persists checkpoints.
type Sink interface {
	Write(ctx context.Context, cp Checkpoint) error
}

// Options configures an Accumulator.
type Options struct {
	// Stoplist holds the leading tokens that disqualify a span.
	// Nil means stoplist.Default().
	Stoplist *stoplist.Manager
	// CheckpointInterval is the number of documents between periodic
	// snapshots. Zero means DefaultCheckpointInterval; negative disables
	// periodic snapshots (the final one is still written).
	CheckpointInterval int
	// MaxDocs stops Run after this many documents. Zero means no cap.
	MaxDocs int
	// Sink receives checkpoints. Nil disables persistence.
	Sink Sink
	// Workers is the number of documents annotated concurrently by Run.
	// Merging always happens one document at a time in corpus order.
	Workers int
	// RunID labels checkpoints. Empty means a fresh ULID.
	RunID   string
	Logger  logging.Logger
	Metrics *metrics.Collector
	// Now defaults to time.Now.
	Now func() time.Time
}

// Stats summarizes a run so far.
type Stats struct {
	Documents    int
	Concepts     int
	Variants     int
	SpansAdded   int
	SpansMerged  int
	SpansDropped int
	Checkpoints  int
}

// Accumulator owns the index for the lifetime of one run.
type Accumulator struct {
	annotator Annotator
	stops     *stoplist.Manager
	interval  int
	maxDocs   int
	sink      Sink
	workers   int
	runID     string
	log       logging.Logger
	metrics   *metrics.Collector
	now       func() time.Time

	mu    sync.Mutex
	index *Index
	stats Stats
}

// New creates an accumulator with an empty index. The annotator may be nil
// when the caller feeds results through IngestDocument only.
func New(annotator Annotator, opts Options) *Accumulator {
	a := &Accumulator{
		annotator: annotator,
		stops:     opts.Stoplist,
		interval:  opts.CheckpointInterval,
		maxDocs:   opts.MaxDocs,
		sink:      opts.Sink,
		workers:   opts.Workers,
		runID:     opts.RunID,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
		index:     NewIndex(),
	}
	if a.stops == nil {
		a.stops = stoplist.Default()
	}
	if a.interval == 0 {
		a.interval = DefaultCheckpointInterval
	}
	if a.workers < 1 {
		a.workers = 1
	}
	if a.runID == "" {
		a.runID = ulid.MustNew(ulid.Now(), rand.Reader).String()
	}
	if a.log == nil {
		a.log = logging.NewNop()
	}
	a.log = a.log.Named("accumulate").With(logging.String("run_id", a.runID))
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// RunID returns the id stamped on this run's checkpoints.
func (a *Accumulator) RunID() string { return a.runID }

// Stats returns counters for the run so far.
func (a *Accumulator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.stats
	s.Concepts = a.index.Len()
	s.Variants = a.index.VariantCount()
	return s
}

// Snapshot returns a deep copy of the index.
func (a *Accumulator) Snapshot() *Index {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.index.Clone()
}

// Normalize lowercases span text unless it is made only of ASCII capital
// letters, which are kept as acronyms.
func Normalize(text string) string {
	if isAcronym(text) {
		return text
	}
	return strings.ToLower(text)
}

func isAcronym(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// IngestDocument merges one document's annotation result into the index
// and writes a periodic checkpoint when the document count reaches a
// multiple of the interval.
func (a *Accumulator) IngestDocument(ctx context.Context, res annotate.Result) error {
	a.mu.Lock()
	a.mergeLocked(res)
	a.stats.Documents++
	docs := a.stats.Documents
	concepts := a.index.Len()
	a.mu.Unlock()

	a.metrics.DocumentIngested(concepts)
	a.log.Debug("document ingested", logging.Int("document", docs), logging.Int("concepts", res.Len()))

	if a.interval > 0 && docs%a.interval == 0 {
		return a.checkpoint(ctx, false)
	}
	return nil
}

func (a *Accumulator) mergeLocked(res annotate.Result) {
	for _, id := range res.Order {
		c := res.Concepts[id]
		if c == nil {
			continue
		}
		entry := a.index.concept(id, c.Name)

		for _, span := range c.Spans {
			text := Normalize(span.Text)
			if a.stops.Rejects(text) {
				a.stats.SpansDropped++
				a.metrics.SpanOutcome(metrics.OutcomeStopword)
				continue
			}
			if entry.merge(text, span.Score) {
				a.stats.SpansAdded++
				a.metrics.SpanOutcome(metrics.OutcomeAdded)
			} else {
				a.stats.SpansMerged++
				a.metrics.SpanOutcome(metrics.OutcomeMerged)
			}
		}
	}
}

// Finalize writes the final snapshot regardless of interval alignment.
func (a *Accumulator) Finalize(ctx context.Context) error {
	return a.checkpoint(ctx, true)
}

func (a *Accumulator) checkpoint(ctx context.Context, final bool) error {
	if a.sink == nil {
		return nil
	}

	a.mu.Lock()
	cp := Checkpoint{
		RunID:     a.runID,
		Documents: a.stats.Documents,
		Final:     final,
		At:        a.now(),
		Index:     a.index.Clone(),
	}
	a.mu.Unlock()

	start := time.Now()
	if err := a.sink.Write(ctx, cp); err != nil {
		a.log.Error("checkpoint failed", logging.Int("documents", cp.Documents), logging.Err(err))
		if errors.Is(err, internalerr.ErrPersistence) {
			return err
		}
		return fmt.Errorf("%w: checkpoint after %d documents: %w", internalerr.ErrPersistence, cp.Documents, err)
	}
	took := time.Since(start)

	a.mu.Lock()
	a.stats.Checkpoints++
	a.mu.Unlock()

	a.metrics.CheckpointWritten(final, took)
	a.log.Info("checkpoint written",
		logging.Int("documents", cp.Documents),
		logging.Int("concepts", cp.Index.Len()),
		logging.Bool("final", final),
		logging.Duration("took", took),
	)
	return nil
}

// Run annotates and ingests documents from src until it is exhausted or
// MaxDocs is reached, then writes the final snapshot. The first annotation
// or persistence error aborts the run; the last checkpoint written is the
// recovery point. Cancellation is checked between documents.
func (a *Accumulator) Run(ctx context.Context, src Source) (*Index, error) {
	if a.annotator == nil {
		return nil, fmt.Errorf("%w: accumulate: no annotator", internalerr.ErrConfiguration)
	}

	a.log.Info("run started", logging.Int("workers", a.workers), logging.Int("checkpoint_interval", a.interval), logging.Int("max_docs", a.maxDocs))

	batch := make([]string, 0, a.workers)
	for !a.capReached() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch = batch[:0]
		for len(batch) < a.workers && !a.capReachedWith(len(batch)) {
			text, ok := src.Next()
			if !ok {
				break
			}
			batch = append(batch, text)
		}
		if len(batch) == 0 {
			break
		}

		if err := a.annotateBatch(ctx, batch); err != nil {
			return nil, err
		}
	}

	if err := a.Finalize(ctx); err != nil {
		return nil, err
	}
	stats := a.Stats()
	a.log.Info("run finished",
		logging.Int("documents", stats.Documents),
		logging.Int("concepts", stats.Concepts),
		logging.Int("variants", stats.Variants),
	)
	return a.Snapshot(), nil
}

func (a *Accumulator) capReached() bool { return a.capReachedWith(0) }

func (a *Accumulator) capReachedWith(pending int) bool {
	if a.maxDocs <= 0 {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats.Documents+pending >= a.maxDocs
}

// annotateBatch annotates batch concurrently and merges the results in
// order. A failure does not cancel its siblings, so the documents preceding
// the first failed one are merged exactly as a sequential run would merge
// them before the error is returned.
func (a *Accumulator) annotateBatch(ctx context.Context, batch []string) error {
	first := a.Stats().Documents + 1
	results := make([]annotate.Result, len(batch))
	errs := make([]error, len(batch))

	if len(batch) == 1 {
		results[0], errs[0] = a.annotate(ctx, batch[0], first)
	} else {
		var g errgroup.Group
		for i, text := range batch {
			g.Go(func() error {
				results[i], errs[i] = a.annotate(ctx, text, first+i)
				return nil
			})
		}
		_ = g.Wait()
	}

	for i := range batch {
		if errs[i] != nil {
			return errs[i]
		}
		if err := a.IngestDocument(ctx, results[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Accumulator) annotate(ctx context.Context, text string, doc int) (annotate.Result, error) {
	start := time.Now()
	res, err := a.annotator.Annotate(ctx, text)
	a.metrics.Annotated(time.Since(start))
	if err != nil {
		a.log.Error("annotation failed", logging.Int("document", doc), logging.Err(err))
		if errors.Is(err, internalerr.ErrAnnotation) {
			return annotate.Result{}, fmt.Errorf("document %d: %w", doc, err)
		}
		return annotate.Result{}, fmt.Errorf("%w: document %d: %w", internalerr.ErrAnnotation, doc, err)
	}
	return res, nil
}
