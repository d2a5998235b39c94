// Package metrics exposes Prometheus instruments for accumulation runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Span outcomes recorded by SpanOutcome.
const (
	OutcomeAdded     = "added"
	OutcomeMerged    = "merged"
	OutcomeStopword  = "stopword"
	OutcomeThreshold = "threshold"
)

// Collector groups the run instruments. A nil *Collector is valid and
// records nothing.
type Collector struct {
	Documents          prometheus.Counter
	Spans              *prometheus.CounterVec
	Concepts           prometheus.Gauge
	Checkpoints        *prometheus.CounterVec
	CheckpointDuration prometheus.Histogram
	AnnotateDuration   prometheus.Histogram
}

// New creates the instruments and registers them with reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Documents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "termset",
			Name:      "documents_ingested_total",
			Help:      "Documents merged into the index.",
		}),
		Spans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "termset",
			Name:      "spans_total",
			Help:      "Spans seen, by outcome.",
		}, []string{"outcome"}),
		Concepts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "termset",
			Name:      "concepts",
			Help:      "Distinct concepts in the index.",
		}),
		Checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "termset",
			Name:      "checkpoints_total",
			Help:      "Snapshots written, by kind.",
		}, []string{"kind"}),
		CheckpointDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "termset",
			Name:      "checkpoint_duration_seconds",
			Help:      "Time spent writing a snapshot.",
			Buckets:   prometheus.DefBuckets,
		}),
		AnnotateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "termset",
			Name:      "annotate_duration_seconds",
			Help:      "Time spent annotating one document.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(c.Documents, c.Spans, c.Concepts, c.Checkpoints, c.CheckpointDuration, c.AnnotateDuration)
	}
	return c
}

// DocumentIngested counts one merged document.
func (c *Collector) DocumentIngested(concepts int) {
	if c == nil {
		return
	}
	c.Documents.Inc()
	c.Concepts.Set(float64(concepts))
}

// SpanOutcome counts one span by outcome.
func (c *Collector) SpanOutcome(outcome string) {
	if c == nil {
		return
	}
	c.Spans.WithLabelValues(outcome).Inc()
}

// CheckpointWritten records a snapshot write.
func (c *Collector) CheckpointWritten(final bool, took time.Duration) {
	if c == nil {
		return
	}
	kind := "periodic"
	if final {
		kind = "final"
	}
	c.Checkpoints.WithLabelValues(kind).Inc()
	c.CheckpointDuration.Observe(took.Seconds())
}

// Annotated records the time spent in the annotation adapter.
func (c *Collector) Annotated(took time.Duration) {
	if c == nil {
		return
	}
	c.AnnotateDuration.Observe(took.Seconds())
}
