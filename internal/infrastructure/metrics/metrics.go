// Package metrics exposes bridge activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-starlink/internal/bridge"
)

const namespace = "starlink_bridge"

var _ bridge.Observer = (*Metrics)(nil)

// Metrics implements bridge.Observer on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	cycles     *prometheus.CounterVec
	published  *prometheus.CounterVec
	commands   *prometheus.CounterVec
	reconnects prometheus.Counter
	state      prometheus.Gauge
	fields     prometheus.Gauge
}

// New creates Metrics with every collector registered, including the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by result (ok, fetch_error, publish_error).",
		}, []string{"result"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Messages published to the broker by kind.",
		}, []string{"kind"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands handled by outcome.",
		}, []string{"outcome"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Broker connections lost and retried.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Session state: 0 disconnected, 1 connecting, 2 connected, 3 degraded.",
		}),
		fields: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_fields",
			Help:      "Fields selected in the most recent poll cycle.",
		}),
	}

	m.registry.MustRegister(
		m.cycles, m.published, m.commands, m.reconnects, m.state, m.fields,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry holding every bridge collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CycleCompleted counts a poll cycle. The field gauge only moves on
// cycles that fetched a snapshot.
func (m *Metrics) CycleCompleted(result string, fields int) {
	m.cycles.WithLabelValues(result).Inc()
	if result != bridge.CycleFetchError {
		m.fields.Set(float64(fields))
	}
}

func (m *Metrics) MessagePublished(kind string) {
	m.published.WithLabelValues(kind).Inc()
}

func (m *Metrics) CommandHandled(outcome bridge.Outcome) {
	m.commands.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) Reconnecting() {
	m.reconnects.Inc()
}

func (m *Metrics) StateChanged(state bridge.SessionState) {
	m.state.Set(float64(state))
}
