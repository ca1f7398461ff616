// Package metrics exposes prometheus counters for link resolution.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pahedl"

// Resolution paths.
const (
	PathFast = "fast"
	PathSlow = "slow"
	PathHop  = "hop"
)

// Resolution outcomes.
const (
	OutcomeOK                  = "ok"
	OutcomeUpstreamUnavailable = "upstream_unavailable"
	OutcomeRedirectNotFound    = "redirect_not_found"
	OutcomeRetryLimit          = "retry_limit"
	OutcomeCanceled            = "canceled"
	OutcomeError               = "error"
)

// Metrics groups the collectors of one process on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	attempts  prometheus.Counter
	paths     *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	duration  prometheus.Histogram
	episodes  *prometheus.CounterVec
	bytes     prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locker_attempts_total",
			Help:      "Locker page fetch attempts.",
		}),
		paths: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locker_path_total",
			Help:      "Extraction paths taken inside attempts.",
		}, []string{"path"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Finished resolutions by outcome.",
		}, []string{"outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decoder_fallback_total",
			Help:      "Payloads handed to a script engine after native decoding failed.",
		}, []string{"engine", "result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_duration_seconds",
			Help:      "Wall time of a full resolution.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "episodes_total",
			Help:      "Episodes processed in batches.",
		}, []string{"result"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes written by the downloader.",
		}),
	}
	m.registry.MustRegister(
		m.attempts, m.paths, m.outcomes, m.fallbacks, m.duration, m.episodes, m.bytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Attempt counts one locker fetch.
func (m *Metrics) Attempt() {
	if m == nil {
		return
	}
	m.attempts.Inc()
}

// Path counts an extraction path.
func (m *Metrics) Path(path string) {
	if m == nil {
		return
	}
	m.paths.WithLabelValues(path).Inc()
}

// Outcome records a finished resolution and its duration.
func (m *Metrics) Outcome(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
	m.duration.Observe(took.Seconds())
}

// Fallback records a script engine run.
func (m *Metrics) Fallback(engine string, ok bool) {
	if m == nil {
		return
	}
	result := "fail"
	if ok {
		result = "ok"
	}
	m.fallbacks.WithLabelValues(engine, result).Inc()
}

// Episode records a batch item.
func (m *Metrics) Episode(ok bool) {
	if m == nil {
		return
	}
	result := "fail"
	if ok {
		result = "ok"
	}
	m.episodes.WithLabelValues(result).Inc()
}

// Downloaded adds n written bytes.
func (m *Metrics) Downloaded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.Add(float64(n))
}
