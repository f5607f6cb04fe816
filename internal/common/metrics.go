package common

// MetricsSink decouples the engine from any particular metrics backend.
// The engine calls these methods on well-defined events (§9: "the design
// separates them behind a MetricsSink... the sink may be a no-op"). Naming
// follows the counters documented at the §6 boundary (query durations,
// buffer hits/misses, WAL bytes, shard transfers) but those names carry no
// load-bearing semantics for correctness.
type MetricsSink interface {
	IncCounter(name string, labels map[string]string, delta float64)
	SetGauge(name string, labels map[string]string, value float64)
	ObserveHistogram(name string, labels map[string]string, value float64)
}

// NoopMetrics is the identity/no-op MetricsSink the core must run correctly
// with (§9).
type NoopMetrics struct{}

func (NoopMetrics) IncCounter(string, map[string]string, float64)      {}
func (NoopMetrics) SetGauge(string, map[string]string, float64)        {}
func (NoopMetrics) ObserveHistogram(string, map[string]string, float64) {}

var _ MetricsSink = NoopMetrics{}
