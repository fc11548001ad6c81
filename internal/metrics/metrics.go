package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wesleywu/routesock/route"
	"github.com/wesleywu/routesock/routing"
)

const namespace = "routesock"

// Time buckets for a kernel round trip, in seconds.
var operationBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.1,
}

// Metrics records route operations and monitored changes. It implements
// routing.Observer.
type Metrics struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	events            *prometheus.CounterVec
	lastEvent         prometheus.Gauge
}

// NewMetrics creates a metrics instance with its own registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

// NewMetricsWithRegistry registers the collectors with registry.
func NewMetricsWithRegistry(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Route operations by action and result.",
		}, []string{"action", "result"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Buckets:   operationBuckets,
			Help:      "Histogram of the time (in seconds) each route operation took.",
		}, []string{"action"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Monitored routing messages by change kind.",
		}, []string{"change"}),
		lastEvent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_event_timestamp_seconds",
			Help:      "Unix time of the last monitored routing message.",
		}),
	}
	registry.MustRegister(m.operations, m.operationDuration, m.events, m.lastEvent)
	return m
}

// ObserveOperation records the operation metrics
func (m *Metrics) ObserveOperation(action string, d time.Duration, err error) {
	m.operations.WithLabelValues(action, Result(err)).Inc()
	m.operationDuration.WithLabelValues(action).Observe(d.Seconds())
}

// ObserveEvent records a monitored change
func (m *Metrics) ObserveEvent(change route.RouteChange) {
	m.events.WithLabelValues(change.Kind.String()).Inc()
	m.lastEvent.SetToCurrentTime()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Result is the result label for err: "success", or the error kind.
func Result(err error) string {
	if err == nil {
		return "success"
	}
	var rerr *route.Error
	if errors.As(err, &rerr) {
		return rerr.Kind.String()
	}
	return "UnknownError"
}

var _ routing.Observer = (*Metrics)(nil)
