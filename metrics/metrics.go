// Package metrics exposes admission decisions as Prometheus metrics.
//
// Metrics:
//   - <namespace>_decisions_total: admission decisions by algorithm and result
//   - <namespace>_check_duration_seconds: time spent in IsAllowed by algorithm
//   - <namespace>_tracked_keys: keys holding state, per instrumented strategy
//
// Keys are never used as label values so cardinality stays bounded no matter
// how many clients are seen.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gabisonia/admission-limiter/strategies"
)

const defaultNamespace = "ratelimit"

// Collector owns the registry and the decision metrics.
type Collector struct {
	namespace string
	registry  *prometheus.Registry

	decisions     *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
}

// NewCollector creates a collector registering into registry. If registry is nil
// a fresh one is created. An empty namespace defaults to "ratelimit".
func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = defaultNamespace
	}

	c := &Collector{
		namespace: namespace,
		registry:  registry,
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Total number of admission decisions",
			},
			[]string{"algorithm", "result"},
		),
		checkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_duration_seconds",
				Help:      "Duration of admission checks in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
			[]string{"algorithm"},
		),
	}

	registry.MustRegister(c.decisions, c.checkDuration)
	return c
}

// Instrument wraps strategy so every decision is counted and timed, and
// registers a gauge reporting its tracked keys. Each algorithm can be
// instrumented once per collector.
func (c *Collector) Instrument(algorithm strategies.Algorithm, strategy strategies.RateLimitStrategy) (strategies.RateLimitStrategy, error) {
	trackedKeys := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   c.namespace,
			Name:        "tracked_keys",
			Help:        "Number of keys holding rate limiting state",
			ConstLabels: prometheus.Labels{"algorithm": string(algorithm)},
		},
		func() float64 { return float64(strategy.Len()) },
	)
	if err := c.registry.Register(trackedKeys); err != nil {
		return nil, fmt.Errorf("register tracked keys gauge for %s: %w", algorithm, err)
	}

	return &instrumentedStrategy{
		RateLimitStrategy: strategy,
		allowed:           c.decisions.WithLabelValues(string(algorithm), "allowed"),
		rejected:          c.decisions.WithLabelValues(string(algorithm), "rejected"),
		duration:          c.checkDuration.WithLabelValues(string(algorithm)),
	}, nil
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

type instrumentedStrategy struct {
	strategies.RateLimitStrategy

	allowed  prometheus.Counter
	rejected prometheus.Counter
	duration prometheus.Observer
}

func (s *instrumentedStrategy) IsAllowed(key string) bool {
	start := time.Now()
	allowed := s.RateLimitStrategy.IsAllowed(key)
	s.duration.Observe(time.Since(start).Seconds())

	if allowed {
		s.allowed.Inc()
	} else {
		s.rejected.Inc()
	}
	return allowed
}
