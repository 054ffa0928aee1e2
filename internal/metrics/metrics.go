// Package metrics bundles the Prometheus collectors of the valley server.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Layout cache outcomes
const (
	LayoutHit   = "hit"
	LayoutMiss  = "miss"
	LayoutError = "error"
)

// Collector holds every metric. A nil *Collector records nothing, so
// components can be built without metrics in tests.
type Collector struct {
	gatherer prometheus.Gatherer

	LayoutLookups   *prometheus.CounterVec
	LayoutFetches   prometheus.Histogram
	SimulationRuns  *prometheus.CounterVec
	SimulationTimes prometheus.Histogram
	HTTPRequests    *prometheus.CounterVec
	HTTPDurations   *prometheus.HistogramVec
	Sessions        prometheus.Gauge
}

// New registers the collectors against reg, defaulting to the global
// registry when nil. Registering twice on the same registry reuses the
// existing collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.LayoutLookups, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hydrovalley_layout_lookups_total",
		Help: "Layout cache lookups, labeled by result (hit, miss, error).",
	}, []string{"result"}), "hydrovalley_layout_lookups_total"); err != nil {
		return nil, err
	}
	if c.LayoutFetches, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hydrovalley_layout_fetch_seconds",
		Help:    "Latency of calls to the external layout service.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}), "hydrovalley_layout_fetch_seconds"); err != nil {
		return nil, err
	}
	if c.SimulationRuns, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hydrovalley_simulation_runs_total",
		Help: "Simulation runs, labeled by outcome (completed, failed).",
	}, []string{"outcome"}), "hydrovalley_simulation_runs_total"); err != nil {
		return nil, err
	}
	if c.SimulationTimes, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hydrovalley_simulation_seconds",
		Help:    "Duration of simulation runs.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}), "hydrovalley_simulation_seconds"); err != nil {
		return nil, err
	}
	if c.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hydrovalley_http_requests_total",
		Help: "Handled HTTP requests, labeled by method, route and status code.",
	}, []string{"method", "route", "code"}), "hydrovalley_http_requests_total"); err != nil {
		return nil, err
	}
	if c.HTTPDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hydrovalley_http_request_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"}), "hydrovalley_http_request_seconds"); err != nil {
		return nil, err
	}
	if c.Sessions, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hydrovalley_sessions",
		Help: "Current number of open sessions.",
	}), "hydrovalley_sessions"); err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveLayout counts one cache lookup
func (c *Collector) ObserveLayout(result string) {
	if c == nil {
		return
	}
	c.LayoutLookups.WithLabelValues(result).Inc()
}

// ObserveLayoutFetch records the latency of one remote layout call
func (c *Collector) ObserveLayoutFetch(d time.Duration) {
	if c == nil {
		return
	}
	c.LayoutFetches.Observe(d.Seconds())
}

// ObserveSimulation records one finished run
func (c *Collector) ObserveSimulation(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.SimulationRuns.WithLabelValues(outcome).Inc()
	c.SimulationTimes.Observe(d.Seconds())
}

// ObserveHTTP records one handled request
func (c *Collector) ObserveHTTP(method, route string, code int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.HTTPDurations.WithLabelValues(method, route).Observe(d.Seconds())
}

// SetSessions sets the open session gauge
func (c *Collector) SetSessions(n int) {
	if c == nil {
		return
	}
	c.Sessions.Set(float64(n))
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T, name string) (T, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return collector, nil
}
