// Package metrics provides Prometheus metrics for rule dispatch.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Collector holds the dispatch metrics. It implements engine.Recorder.
type Collector struct {
	Events  *prometheus.CounterVec
	Matches *prometheus.CounterVec
	Writes  *prometheus.CounterVec
	Depth   prometheus.Histogram
	Errors  *prometheus.CounterVec
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector registered with reg.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ruleweave",
				Name:      "events_dispatched_total",
				Help:      "Mutation events dispatched, root and cascade",
			},
			[]string{"schema", "kind"},
		),
		Matches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ruleweave",
				Name:      "rules_matched_total",
				Help:      "Reaction rules surviving each dispatch phase",
			},
			[]string{"phase"},
		),
		Writes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ruleweave",
				Name:      "writes_total",
				Help:      "Action writes by outcome (applied or noop)",
			},
			[]string{"schema", "outcome"},
		),
		Depth: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "ruleweave",
				Name:      "cascade_depth",
				Help:      "Deepest event of each completed chain",
				Buckets:   []float64{0, 1, 2, 3, 4, 6, 8, 12, 16},
			},
		),
		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ruleweave",
				Name:      "chain_errors_total",
				Help:      "Aborted chains by error code",
			},
			[]string{"code"},
		),
	}
}

// EventDispatched counts an event entering dispatch. depth is not recorded
// per event; ChainFinished observes the deepest one.
func (c *Collector) EventDispatched(schema, kind string, depth int) {
	c.Events.WithLabelValues(schema, kind).Inc()
}

// RulesMatched adds n rules that passed phase ("index" or "conditions").
func (c *Collector) RulesMatched(phase string, n int) {
	c.Matches.WithLabelValues(phase).Add(float64(n))
}

// WriteApplied counts a write that changed a record of schema.
func (c *Collector) WriteApplied(schema string) {
	c.Writes.WithLabelValues(schema, "applied").Inc()
}

// WriteSkipped counts a write dropped because nothing would change.
func (c *Collector) WriteSkipped(schema string) {
	c.Writes.WithLabelValues(schema, "noop").Inc()
}

// ChainFinished observes the depth a completed chain reached.
func (c *Collector) ChainFinished(depth int) {
	c.Depth.Observe(float64(depth))
}

// ChainFailed counts an aborted chain under its error code.
func (c *Collector) ChainFailed(code string) {
	c.Errors.WithLabelValues(code).Inc()
}

// WriteText writes every family gathered from g in the Prometheus text
// exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
