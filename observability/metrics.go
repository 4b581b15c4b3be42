package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type blockMetrics struct {
	processed prometheus.Counter
	failures  prometheus.Counter
	duration  prometheus.Histogram
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics

	blockMetricsOnce sync.Once
	blockRegistry    *blockMetrics
)

// RPC returns the lazily-initialised registry recording JSON-RPC activity.
func RPC() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lstake",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lstake",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lstake",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lstake",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter or authenticator.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records one handled call. code is the JSON-RPC error code, zero on
// success.
func (m *rpcMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, strconv.Itoa(code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request. Reasons should be stable strings
// such as "rate_limit" or "unauthenticated".
func (m *rpcMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// Blocks returns the registry tracking the local block loop.
func Blocks() *blockMetrics {
	blockMetricsOnce.Do(func() {
		blockRegistry = &blockMetrics{
			processed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lstake",
				Subsystem: "blocks",
				Name:      "processed_total",
				Help:      "Blocks whose hooks ran and committed.",
			}),
			failures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lstake",
				Subsystem: "blocks",
				Name:      "failures_total",
				Help:      "Blocks whose hooks failed and were discarded.",
			}),
			duration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "lstake",
				Subsystem: "blocks",
				Name:      "hook_duration_seconds",
				Help:      "Time spent running per-block hooks and committing state.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(blockRegistry.processed, blockRegistry.failures, blockRegistry.duration)
	})
	return blockRegistry
}

// RecordBlock records the outcome of one block step.
func (m *blockMetrics) RecordBlock(duration time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.failures.Inc()
	} else {
		m.processed.Inc()
	}
	m.duration.Observe(duration.Seconds())
}
