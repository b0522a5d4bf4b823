// Package metrics exposes Prometheus instrumentation for the marketplace engine
// and its HTTP surface. Scrape GET /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "grub"

var (
	// Acceptances counts acceptance attempts by listing kind (bid, offer) and result.
	Acceptances = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "acceptances_total",
			Help:      "Bid and offer acceptance attempts by outcome.",
		},
		[]string{"kind", "result"},
	)

	// LedgerMovements counts balance mutations by ledger entry kind.
	LedgerMovements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "movements_total",
			Help:      "Credits and debits applied to balances.",
		},
		[]string{"kind"},
	)

	Suspensions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reputation",
		Name:      "suspensions_total",
		Help:      "Accounts suspended by the reputation engine.",
	})

	RedFlags = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reputation",
			Name:      "red_flags_total",
			Help:      "Red flags raised by reason.",
		},
		[]string{"reason"},
	)

	LockWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "market",
		Name:      "listing_lock_wait_seconds",
		Help:      "Time spent acquiring the per-listing acceptance lock.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 3},
	})

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		Acceptances,
		LedgerMovements,
		Suspensions,
		RedFlags,
		LockWait,
		RequestDuration,
	)
}

// Registry is exposed for tests that gather metric values.
func Registry() *prometheus.Registry {
	return registry
}

func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Middleware records request latency by route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		RequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
