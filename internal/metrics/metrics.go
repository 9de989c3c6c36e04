// Package metrics exposes service metrics in Prometheus exposition format.
// All metrics live in a dedicated registry so they do not interfere with
// the default global registry.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates request, RPC, and guard metrics.
type Collector struct {
	registry *prometheus.Registry

	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	rpcRequests  *prometheus.CounterVec
	rpcLatency   prometheus.Histogram
	rpcFailovers prometheus.Counter

	buildCount      *prometheus.CounterVec
	simulationCount *prometheus.CounterVec

	rateLimited      prometheus.Counter
	killSwitchActive prometheus.Gauge

	goroutineCount prometheus.Gauge
	uptimeSeconds  prometheus.Gauge

	startTime time.Time
}

// NewCollector creates a collector with a dedicated registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	requestCount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teleburn",
		Name:      "request_count",
		Help:      "Total number of API requests by endpoint and status.",
	}, []string{"endpoint", "status"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "teleburn",
		Name:      "request_duration_seconds",
		Help:      "API request latency histogram by endpoint.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"endpoint"})

	rpcRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teleburn",
		Name:      "rpc_requests_total",
		Help:      "Upstream RPC attempts by endpoint and result.",
	}, []string{"endpoint", "result"})

	rpcLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "teleburn",
		Name:      "rpc_latency_seconds",
		Help:      "Upstream RPC latency histogram.",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
	})

	rpcFailovers := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "teleburn",
		Name:      "rpc_failovers_total",
		Help:      "Number of times a request moved to a backup endpoint.",
	})

	buildCount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teleburn",
		Name:      "builds_total",
		Help:      "Transaction builds by kind and outcome.",
	}, []string{"kind", "outcome"})

	simulationCount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teleburn",
		Name:      "simulations_total",
		Help:      "Dry-run rehearsals by outcome.",
	}, []string{"outcome"})

	rateLimited := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "teleburn",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})

	killSwitchActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "teleburn",
		Name:      "kill_switch_active",
		Help:      "Whether the kill switch is active (1) or not (0).",
	})

	goroutineCount := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "teleburn",
		Name:      "goroutine_count",
		Help:      "Number of goroutines.",
	})

	uptimeSeconds := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "teleburn",
		Name:      "uptime_seconds",
		Help:      "Time since the service started in seconds.",
	})

	reg.MustRegister(requestCount)
	reg.MustRegister(requestDuration)
	reg.MustRegister(rpcRequests)
	reg.MustRegister(rpcLatency)
	reg.MustRegister(rpcFailovers)
	reg.MustRegister(buildCount)
	reg.MustRegister(simulationCount)
	reg.MustRegister(rateLimited)
	reg.MustRegister(killSwitchActive)
	reg.MustRegister(goroutineCount)
	reg.MustRegister(uptimeSeconds)

	return &Collector{
		registry:         reg,
		requestCount:     requestCount,
		requestDuration:  requestDuration,
		rpcRequests:      rpcRequests,
		rpcLatency:       rpcLatency,
		rpcFailovers:     rpcFailovers,
		buildCount:       buildCount,
		simulationCount:  simulationCount,
		rateLimited:      rateLimited,
		killSwitchActive: killSwitchActive,
		goroutineCount:   goroutineCount,
		uptimeSeconds:    uptimeSeconds,
		startTime:        time.Now(),
	}
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordRequest records one API request.
func (c *Collector) RecordRequest(endpoint, status string, duration time.Duration) {
	c.requestCount.WithLabelValues(endpoint, status).Inc()
	c.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordBuild records a transaction build attempt.
func (c *Collector) RecordBuild(kind, outcome string) {
	c.buildCount.WithLabelValues(kind, outcome).Inc()
}

// RecordSimulation records a dry-run rehearsal.
func (c *Collector) RecordSimulation(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.simulationCount.WithLabelValues(outcome).Inc()
}

// RecordRateLimited records a request rejected by the limiter.
func (c *Collector) RecordRateLimited() {
	c.rateLimited.Inc()
}

// SetKillSwitch mirrors the kill-switch state.
func (c *Collector) SetKillSwitch(active bool) {
	if active {
		c.killSwitchActive.Set(1)
	} else {
		c.killSwitchActive.Set(0)
	}
}

// RPCResult implements rpc.Observer.
func (c *Collector) RPCResult(endpoint string, ok bool, latency time.Duration) {
	result := "error"
	if ok {
		result = "ok"
		c.rpcLatency.Observe(latency.Seconds())
	}
	c.rpcRequests.WithLabelValues(endpoint, result).Inc()
}

// Failover implements rpc.Observer.
func (c *Collector) Failover(from, to string) {
	c.rpcFailovers.Inc()
}

// Handler returns the exposition handler, refreshing the runtime gauges
// on each scrape.
func (c *Collector) Handler() http.Handler {
	inner := promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.goroutineCount.Set(float64(runtime.NumGoroutine()))
		c.uptimeSeconds.Set(time.Since(c.startTime).Seconds())
		inner.ServeHTTP(w, r)
	})
}
