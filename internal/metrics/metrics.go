// Package metrics holds the Prometheus collectors shared by the server and
// the worker. Collectors register on the default registry at init.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Computation outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

var (
	returnsComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "optreturns",
			Name:      "returns_computations_total",
			Help:      "Monthly returns computations by outcome",
		},
		[]string{"outcome"},
	)
	returnsDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "optreturns",
			Name:      "returns_computation_duration_seconds",
			Help:      "Time to load records and compute the monthly series",
			Buckets:   prometheus.DefBuckets,
		},
	)
	monthsReported = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "optreturns",
			Name:      "months_reported",
			Help:      "Number of months in the last computed series",
		},
	)
	recordsImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "optreturns",
			Name:      "trade_records_imported_total",
			Help:      "Trade records accepted by imports",
		},
		[]string{"backend"},
	)
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "optreturns",
			Name:      "cache_lookups_total",
			Help:      "Series cache lookups by result",
		},
		[]string{"result"},
	)
	syncMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "optreturns",
			Name:      "sync_messages_total",
			Help:      "Summary sync messages handled by the worker",
		},
		[]string{"outcome"},
	)
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "optreturns",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "optreturns",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	rateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "optreturns",
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the rate limiter",
		},
	)
)

// ObserveComputation records one computation of the monthly series.
func ObserveComputation(outcome string, months int, d time.Duration) {
	returnsComputed.WithLabelValues(outcome).Inc()
	returnsDuration.Observe(d.Seconds())
	if outcome == OutcomeOK {
		monthsReported.Set(float64(months))
	} else if outcome == OutcomeEmpty {
		monthsReported.Set(0)
	}
}

func AddImported(backend string, n int) {
	recordsImported.WithLabelValues(backend).Add(float64(n))
}

func CacheHit()  { cacheLookups.WithLabelValues("hit").Inc() }
func CacheMiss() { cacheLookups.WithLabelValues("miss").Inc() }

func SyncMessage(outcome string) {
	syncMessages.WithLabelValues(outcome).Inc()
}

func RateLimited() { rateLimited.Inc() }

// ObserveHTTP records a finished request.
func ObserveHTTP(route, method string, status int, d time.Duration) {
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
