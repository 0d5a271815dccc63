package pipeline

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// thisMany is how many distinct row errors a summary shows.
const thisMany = 3

// counters holds cross-goroutine statistics for one streamed table load.
type counters struct {
	processed        atomic.Int64 // rows entering the coerce stage
	parseErrors      atomic.Int64 // lines the CSV reader could not parse
	validateRejects  atomic.Int64 // rows rejected by required-field validation
	transformRejects atomic.Int64 // rows dropped by coercion
	inserted         atomic.Int64 // rows reported inserted by the backend
	batches          atomic.Int64 // batches flushed
}

// errAgg aggregates row errors: it counts all of them and keeps the first
// limit messages verbatim.
type errAgg struct {
	mu      sync.Mutex
	limit   int
	count   int
	first   []string
	buckets map[string]int
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit, buckets: make(map[string]int)}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	a.buckets[msg]++
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}

func (a *errAgg) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// top returns the most frequent messages, at most n, most frequent first.
func (a *errAgg) top(n int) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.buckets))
	for msg := range a.buckets {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool {
		if a.buckets[out[i]] != a.buckets[out[j]] {
			return a.buckets[out[i]] > a.buckets[out[j]]
		}
		return out[i] < out[j]
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// log reports the aggregate under what, if any error was seen.
func (a *errAgg) log(log *zap.Logger, what string) {
	if a.total() == 0 {
		return
	}
	a.mu.Lock()
	first := append([]string(nil), a.first...)
	count := a.count
	a.mu.Unlock()
	log.Warn(what,
		zap.Int("count", count),
		zap.Strings("first", first),
		zap.Strings("most_frequent", a.top(thisMany)),
	)
}

// logTableSummary logs the final statistics of a table load.
//
// Every data line is accounted for:
//
//	processed + parse_errors == total_data_rows
//	processed == inserted + validate_rejected + transform_dropped
//
// transform_dropped includes coerce rejects and rows freed under
// cancellation.
func logTableSummary(log *zap.Logger, c *counters) {
	processed := c.processed.Load()
	parseErrs := c.parseErrors.Load()
	validateRejected := c.validateRejects.Load()
	transformRejected := c.transformRejects.Load()
	inserted := c.inserted.Load()
	transformDropped := processed - validateRejected - inserted

	log.Info("table loaded",
		zap.String("processed", humanize.Comma(processed)),
		zap.Int64("parse_errors", parseErrs),
		zap.Int64("validate_rejected", validateRejected),
		zap.Int64("transform_rejected", transformRejected),
		zap.Int64("transform_dropped", transformDropped),
		zap.String("inserted", humanize.Comma(inserted)),
		zap.Int64("batches", c.batches.Load()),
	)

	total := processed + parseErrs
	accounted := parseErrs + validateRejected + transformDropped + inserted
	if accounted != total {
		log.Warn("row accounting mismatch",
			zap.Int64("total", total),
			zap.Int64("accounted", accounted),
			zap.Int64("delta", total-accounted),
		)
	}
}
