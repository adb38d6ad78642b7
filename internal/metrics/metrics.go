// Package metrics exposes LedgerLens Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledgerlens"

// Collector holds LedgerLens metrics in a private registry.
type Collector struct {
	registry *prometheus.Registry

	ledgerLoads    *prometheus.CounterVec
	ledgerLoadTime prometheus.Histogram
	ledgerRows     prometheus.Gauge
	cacheRequests  *prometheus.CounterVec
	scoreVerdicts  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewCollector creates a collector with process and Go runtime metrics registered.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		ledgerLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_loads_total",
			Help:      "Ledger load passes by result.",
		}, []string{"result"}),
		ledgerLoadTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_load_duration_seconds",
			Help:      "Time spent reading and normalizing the ledger.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		ledgerRows: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_rows",
			Help:      "Rows in the published snapshot.",
		}),
		cacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_cache_requests_total",
			Help:      "Aggregation cache lookups by result.",
		}, []string{"result"}),
		scoreVerdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_verdicts_total",
			Help:      "Fraud scorer verdicts.",
		}, []string{"verdict"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// ObserveLoad records one ledger load pass.
func (c *Collector) ObserveLoad(duration time.Duration, rows int, err error) {
	if err != nil {
		c.ledgerLoads.WithLabelValues("error").Inc()
		return
	}
	c.ledgerLoads.WithLabelValues("ok").Inc()
	c.ledgerLoadTime.Observe(duration.Seconds())
	c.ledgerRows.Set(float64(rows))
}

// ObserveCache records an aggregation cache lookup.
func (c *Collector) ObserveCache(op string, hit bool) {
	if hit {
		c.cacheRequests.WithLabelValues("hit").Inc()
	} else {
		c.cacheRequests.WithLabelValues("miss").Inc()
	}
}

// ObserveVerdict records a scorer verdict.
func (c *Collector) ObserveVerdict(isFraud bool) {
	if isFraud {
		c.scoreVerdicts.WithLabelValues("fraud").Inc()
	} else {
		c.scoreVerdicts.WithLabelValues("normal").Inc()
	}
}

// ObserveRequest records a finished HTTP request.
func (c *Collector) ObserveRequest(method string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
