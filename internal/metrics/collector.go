// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector gathers engine metrics.
type Collector struct {
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	inFlight  prometheus.Gauge
	coalesced prometheus.Counter
	cancelled prometheus.Counter

	poolRejected prometheus.Counter
	poolTimedOut prometheus.Counter
}

// NewCollector creates a collector registered on reg. Pass
// prometheus.NewRegistry() in tests to keep registrations independent.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	c := &Collector{}

	c.dispatchTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Total number of dispatched requests",
		},
		[]string{"function", "outcome"}, // outcome: complete, error, cancelled, cache_hit
	)

	c.dispatchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Request duration from dispatch to terminal event",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"function"},
	)

	c.cacheHits = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Total number of response cache hits",
	})

	c.cacheMisses = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Total number of response cache misses",
	})

	c.inFlight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "inflight_requests",
		Help:      "Number of outstanding upstream calls",
	})

	c.coalesced = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "coalesced_subscribers_total",
		Help:      "Total number of callers attached to an existing in-flight request",
	})

	c.cancelled = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "superseded_requests_total",
		Help:      "Total number of requests cancelled by supersession",
	})

	c.poolRejected = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pool_rejected_total",
		Help:      "Total number of blocking tasks rejected by the saturated pool",
	})

	c.poolTimedOut = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pool_timedout_total",
		Help:      "Total number of blocking tasks whose deadline elapsed",
	})

	return c
}

// RecordDispatch records a terminal dispatch outcome.
func (c *Collector) RecordDispatch(function, outcome string, elapsed time.Duration) {
	c.dispatchTotal.WithLabelValues(function, outcome).Inc()
	c.dispatchDuration.WithLabelValues(function).Observe(elapsed.Seconds())
}

// RecordCacheHit records a response cache hit.
func (c *Collector) RecordCacheHit() { c.cacheHits.Inc() }

// RecordCacheMiss records a response cache miss.
func (c *Collector) RecordCacheMiss() { c.cacheMisses.Inc() }

// InFlightStarted marks a new outstanding upstream call.
func (c *Collector) InFlightStarted() { c.inFlight.Inc() }

// InFlightFinished marks an upstream call leaving the in-flight table.
func (c *Collector) InFlightFinished() { c.inFlight.Dec() }

// RecordCoalesced records a caller joining an existing in-flight request.
func (c *Collector) RecordCoalesced() { c.coalesced.Inc() }

// RecordSuperseded records a request cancelled by a newer one.
func (c *Collector) RecordSuperseded() { c.cancelled.Inc() }

// RecordPoolRejected records a POOL_SATURATED rejection.
func (c *Collector) RecordPoolRejected() { c.poolRejected.Inc() }

// RecordPoolTimedOut records a blocking task deadline expiry.
func (c *Collector) RecordPoolTimedOut() { c.poolTimedOut.Inc() }
