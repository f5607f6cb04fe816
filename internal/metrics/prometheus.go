// Package metrics provides the default, non-no-op common.MetricsSink
// implementation. It owns counters/gauges/histograms only — the HTTP
// exposition endpoint is the out-of-scope external collaborator described
// at the spec's §6 boundary and is never wired up here.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/neuroquantum/neuroquantumdb/internal/common"
)

// PrometheusSink backs common.MetricsSink with a prometheus.Registry.
// Vectors are created lazily per metric name the first time they're seen,
// keyed by the label names of that first call, in map iteration order — mirroring how
// cuemby/warren's pkg/metrics registers collectors on demand rather than
// pre-declaring every metric up front.
type PrometheusSink struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusSink creates a sink backed by a fresh registry. Callers that
// want to expose it over HTTP (an out-of-scope collaborator) can fetch the
// registry with Registry().
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func (s *PrometheusSink) Registry() *prometheus.Registry { return s.registry }

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}

func (s *PrometheusSink) IncCounter(name string, labels map[string]string, delta float64) {
	s.mu.Lock()
	vec, ok := s.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelNames(labels))
		s.registry.MustRegister(vec)
		s.counters[name] = vec
	}
	s.mu.Unlock()
	vec.With(labels).Add(delta)
}

func (s *PrometheusSink) SetGauge(name string, labels map[string]string, value float64) {
	s.mu.Lock()
	vec, ok := s.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, labelNames(labels))
		s.registry.MustRegister(vec)
		s.gauges[name] = vec
	}
	s.mu.Unlock()
	vec.With(labels).Set(value)
}

func (s *PrometheusSink) ObserveHistogram(name string, labels map[string]string, value float64) {
	s.mu.Lock()
	vec, ok := s.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name}, labelNames(labels))
		s.registry.MustRegister(vec)
		s.histograms[name] = vec
	}
	s.mu.Unlock()
	vec.With(labels).Observe(value)
}

var _ common.MetricsSink = (*PrometheusSink)(nil)
