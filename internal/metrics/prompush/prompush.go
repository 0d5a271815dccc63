// Package prompush pushes pipeline metrics to a Prometheus Pushgateway.
//
// A run is a short-lived batch job with nothing to scrape, so collectors
// live in a private registry that is pushed once on Flush. The "job" label
// is the Pushgateway grouping key and is not repeated on each series.
package prompush

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"epiviz/internal/metrics"
)

// counterLabels lists the label keys carried by each known counter.
var counterLabels = map[string][]string{
	metrics.StepTotal:      {"step", "status"},
	metrics.RecordsTotal:   {"kind"},
	metrics.BatchesTotal:   nil,
	metrics.TableRowsTotal: {"stage", "table"},
}

var counterHelp = map[string]string{
	metrics.StepTotal:      "Pipeline step executions by step and status.",
	metrics.RecordsTotal:   "Records seen by kind (extracted, rejected, inserted, ...).",
	metrics.BatchesTotal:   "Insert batches flushed to the warehouse.",
	metrics.TableRowsTotal: "Rows per star table, by stage (transform writes, load inserts).",
}

// Backend implements metrics.Backend on top of a Pushgateway.
type Backend struct {
	reg       *prometheus.Registry
	pusher    *push.Pusher
	counters  map[string]*prometheus.CounterVec
	durations *prometheus.SummaryVec
}

// NewBackend returns a Backend pushing to gatewayURL under job. An empty job
// defaults to "epiviz".
func NewBackend(job, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, errors.New("prompush: gateway URL is required")
	}
	if job == "" {
		job = "epiviz"
	}

	b := &Backend{
		reg:      prometheus.NewRegistry(),
		counters: make(map[string]*prometheus.CounterVec, len(counterLabels)),
	}
	for name, keys := range counterLabels {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: counterHelp[name]}, keys)
		if err := b.reg.Register(cv); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
		b.counters[name] = cv
	}
	b.durations = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name:       metrics.StepDuration,
		Help:       "Pipeline step duration in seconds by step and status.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"step", "status"})
	if err := b.reg.Register(b.durations); err != nil {
		return nil, fmt.Errorf("prompush: register %s: %w", metrics.StepDuration, err)
	}

	b.pusher = push.New(gatewayURL, job).Gatherer(b.reg)
	return b, nil
}

// values picks the label values for keys out of labels. Missing keys become
// empty strings.
func values(keys []string, labels metrics.Labels) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = labels[k]
	}
	return out
}

// IncCounter adds delta to a known counter. Unknown names are dropped.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	cv, ok := b.counters[name]
	if !ok || cv == nil {
		return
	}
	cv.WithLabelValues(values(counterLabels[name], labels)...).Add(delta)
}

// ObserveHistogram records step durations. Other names are dropped.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration || b.durations == nil {
		return
	}
	b.durations.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the registry, replacing the job's previous group.
func (b *Backend) Flush() error {
	if b.pusher == nil {
		return nil
	}
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}
