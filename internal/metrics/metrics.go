package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	// Registry holds the server's collectors. It is separate from the global
	// registry so tests can read values without interference.
	Registry = prometheus.NewRegistry()

	// FetchDuration observes remote fetch latency by service method.
	FetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bookworm",
		Name:      "fetch_duration_seconds",
		Help:      "Latency of requests to the counting service.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	// FetchTotal counts remote fetches by method and outcome.
	FetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookworm",
		Name:      "fetch_total",
		Help:      "Requests to the counting service.",
	}, []string{"method", "outcome"})

	// CacheLookups counts field value cache lookups by outcome (hit or miss).
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookworm",
		Name:      "field_values_cache_lookups_total",
		Help:      "Field value cache lookups.",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(FetchDuration, FetchTotal, CacheLookups)
}

// ObserveFetch records one remote fetch.
func ObserveFetch(method string, elapsed time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	FetchDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	FetchTotal.WithLabelValues(method, outcome).Inc()
}

// ObserveCacheLookup records a cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if hit {
		CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	CacheLookups.WithLabelValues("miss").Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
