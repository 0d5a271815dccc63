// Package metrics records pipeline counters and step timings through a
// pluggable Backend. The default backend discards everything, so callers
// never need to check whether metrics are enabled. Concrete backends live in
// the prompush and datadog subpackages.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metric names shared by every backend.
const (
	StepTotal      = "epiviz_step_total"
	StepDuration   = "epiviz_step_duration_seconds"
	RecordsTotal   = "epiviz_records_total"
	BatchesTotal   = "epiviz_batches_total"
	TableRowsTotal = "epiviz_table_rows_total"
)

// Labels are the key/value pairs attached to one observation.
type Labels map[string]string

// Backend receives observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush sends buffered data. Push-based backends do their work here.
	Flush() error
}

type discard struct{}

func (discard) IncCounter(string, float64, Labels)       {}
func (discard) ObserveHistogram(string, float64, Labels) {}
func (discard) Flush() error                             { return nil }

// holder gives atomic.Value a single concrete type.
type holder struct{ Backend }

var backend atomic.Value

func init() { backend.Store(holder{discard{}}) }

func current() Backend { return backend.Load().(holder).Backend }

// SetBackend installs b. A nil b is ignored.
func SetBackend(b Backend) {
	if b != nil {
		backend.Store(holder{b})
	}
}

// Flush flushes the installed backend.
func Flush() error { return current().Flush() }

// RecordStep counts one run of a pipeline stage and observes its duration.
// The status label is "success" or "failure".
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	l := Labels{"job": job, "step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDuration, d.Seconds(), l)
}

// RecordRow adds delta records of kind, such as extracted, rejected,
// duplicates or inserted. Non-positive deltas are dropped.
func RecordRow(job, kind string, delta int64) {
	count(RecordsTotal, delta, Labels{"job": job, "kind": kind})
}

// RecordBatches adds delta flushed insert batches.
func RecordBatches(job string, delta int64) {
	count(BatchesTotal, delta, Labels{"job": job})
}

// Stages that report table rows.
const (
	StageTransform = "transform"
	StageLoad      = "load"
)

// RecordTable adds rows of a star table handled by stage: written to its
// file by StageTransform or inserted into the warehouse by StageLoad.
func RecordTable(job, stage, table string, rows int64) {
	count(TableRowsTotal, rows, Labels{"job": job, "stage": stage, "table": table})
}

func count(name string, delta int64, l Labels) {
	if delta > 0 {
		current().IncCounter(name, float64(delta), l)
	}
}
