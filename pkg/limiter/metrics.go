package limiter

// Metric names emitted by the limiters.
const (
	metricCall       = "ratelimit.call"
	metricDenied     = "ratelimit.denied"
	metricStoreError = "ratelimit.store_error"
	metricLatency    = "ratelimit.latency"
)

// MetricsRecorder receives counters and timings from the limiters. Inject an
// implementation with WithRecorder / WithMemoryRecorder to bridge to your
// metrics backend.
type MetricsRecorder interface {
	Add(name string, value float64, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
}

// NoOpMetricsRecorder is a placeholder that does nothing.
// It ensures we never have to check 'if r.recorder != nil' in our hot path.
type NoOpMetricsRecorder struct{}

func (n *NoOpMetricsRecorder) Add(name string, value float64, tags map[string]string)     {}
func (n *NoOpMetricsRecorder) Observe(name string, value float64, tags map[string]string) {}
