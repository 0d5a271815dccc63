// Package datadog sends pipeline metrics to a DogStatsD agent. Labels are
// sent as "key:value" tags.
package datadog

import (
	"errors"
	"fmt"
	"slices"

	"github.com/DataDog/datadog-go/v5/statsd"

	"epiviz/internal/metrics"
)

// client is the part of *statsd.Client the backend needs.
type client interface {
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Close() error
}

// Config selects the agent and the tags shared by every metric.
type Config struct {
	Addr       string   // host:port or unix:///path
	Namespace  string   // optional metric name prefix
	GlobalTags []string // e.g. "service:epiviz"
}

// Backend implements metrics.Backend over DogStatsD.
type Backend struct {
	client client
}

// NewBackend dials the agent at cfg.Addr. DogStatsD is fire-and-forget so
// an unreachable agent is not an error here.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, errors.New("datadog: agent address is required")
	}
	opts := []statsd.Option{statsd.WithTags(cfg.GlobalTags)}
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: %w", err)
	}
	return &Backend{client: c}, nil
}

// IncCounter sends a count. Fractional deltas are truncated.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client != nil {
		_ = b.client.Count(name, int64(delta), tags(labels), 1)
	}
}

// ObserveHistogram sends a histogram sample.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client != nil {
		_ = b.client.Histogram(name, value, tags(labels), 1)
	}
}

// Flush closes the client, which sends anything still buffered. The backend
// must not be used afterwards.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// tags renders labels as sorted "key:value" strings.
func tags(labels metrics.Labels) []string {
	if len(labels) == 0 {
		return nil
	}
	out := make([]string, 0, len(labels))
	for k, v := range labels {
		out = append(out, k+":"+v)
	}
	slices.Sort(out)
	return out
}
