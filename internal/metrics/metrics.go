// Package metrics exposes the context's lifecycle and exchange events as
// Prometheus metrics.
//
// Metrics listens to the event notifier; route status and inflight counts
// are read from the context when scraped.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"switchyard/internal/api"
	"switchyard/internal/events"
)

const namespace = "switchyard"

// RouteSource lists the routes of a context.
type RouteSource interface {
	RouteInfos() []api.RouteInfo
}

// InflightSource counts inflight exchanges.
type InflightSource interface {
	Size() int
}

// Metrics owns a registry with the switchyard collectors.
type Metrics struct {
	registry *prometheus.Registry

	contextEvents    *prometheus.CounterVec
	routeEvents      *prometheus.CounterVec
	restarts         *prometheus.CounterVec
	restartFailures  *prometheus.CounterVec
	exchanges        *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
}

var _ events.Listener = (*Metrics)(nil)

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		contextEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_events_total",
			Help:      "Count of context lifecycle events by reason.",
		}, []string{"reason"}),
		routeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_events_total",
			Help:      "Count of route lifecycle events by route and reason.",
		}, []string{"route", "reason"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_restarts_total",
			Help:      "Count of restart attempts made by the supervising controller.",
		}, []string{"route"}),
		restartFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_restart_failures_total",
			Help:      "Count of failed restart attempts; exhausted is true for the last one.",
		}, []string{"route", "exhausted"}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Count of completed exchanges by route and outcome.",
		}, []string{"route", "outcome"}),
		exchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Time from exchange creation to completion.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		m.contextEvents,
		m.routeEvents,
		m.restarts,
		m.restartFailures,
		m.exchanges,
		m.exchangeDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Watch registers the collectors reading route status and inflight counts.
func (m *Metrics) Watch(routes RouteSource, inflight InflightSource) error {
	if err := m.registry.Register(newRouteCollector(routes)); err != nil {
		return err
	}
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "inflight_exchanges",
		Help:      "Number of exchanges currently being processed.",
	}, func() float64 { return float64(inflight.Size()) }))
}

// Notify records e.
func (m *Metrics) Notify(e events.Event) {
	switch e.Reason {
	case events.ReasonExchangeCreated:
		return
	case events.ReasonExchangeCompleted, events.ReasonExchangeFailed:
		outcome := "completed"
		if e.Reason == events.ReasonExchangeFailed {
			outcome = "failed"
		}
		m.exchanges.WithLabelValues(e.RouteID, outcome).Inc()
		m.exchangeDuration.WithLabelValues(e.RouteID).Observe(e.Duration.Seconds())
	case events.ReasonRouteRestarting:
		m.restarts.WithLabelValues(e.RouteID).Inc()
	case events.ReasonRouteRestartingFailure:
		m.restartFailures.WithLabelValues(e.RouteID, strconv.FormatBool(e.Exhausted)).Inc()
	default:
		if e.RouteID == "" {
			m.contextEvents.WithLabelValues(string(e.Reason)).Inc()
			return
		}
		m.routeEvents.WithLabelValues(e.RouteID, string(e.Reason)).Inc()
	}
}

// routeCollector reports one series per route and status, set to 1 for
// the route's current status.
type routeCollector struct {
	routes   RouteSource
	status   *prometheus.Desc
	inflight *prometheus.Desc
	uptime   *prometheus.Desc
}

func newRouteCollector(routes RouteSource) *routeCollector {
	return &routeCollector{
		routes: routes,
		status: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "route", "status"),
			"Current status of each route.",
			[]string{"route", "status"}, nil),
		inflight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "route", "inflight_exchanges"),
			"Number of exchanges currently being processed by each route.",
			[]string{"route"}, nil),
		uptime: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "route", "uptime_seconds"),
			"Time since each route started.",
			[]string{"route"}, nil),
	}
}

func (c *routeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.status
	ch <- c.inflight
	ch <- c.uptime
}

func (c *routeCollector) Collect(ch chan<- prometheus.Metric) {
	for _, info := range c.routes.RouteInfos() {
		ch <- prometheus.MustNewConstMetric(c.status, prometheus.GaugeValue, 1, info.ID, string(info.Status))
		ch <- prometheus.MustNewConstMetric(c.inflight, prometheus.GaugeValue, float64(info.Inflight), info.ID)
		ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, info.Uptime.Seconds(), info.ID)
	}
}
