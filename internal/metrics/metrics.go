// Package metrics holds the Prometheus collectors shared by the edge proxy
// and the write queue. A nil *Metrics is valid and records nothing, so
// components can be built without a registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the process counters. A nil *Metrics discards everything.
type Metrics struct {
	requests   *prometheus.CounterVec
	installs   *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	pending    *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_requests_total",
			Help: "Requests served by the edge controller, by strategy and cache outcome.",
		}, []string{"strategy", "cache"}),
		installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_install_total",
			Help: "Cache generation installs, by result.",
		}, []string{"result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_deliveries_total",
			Help: "Delivery attempts of queued records, by kind and status.",
		}, []string{"kind", "status"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_pending",
			Help: "Unsynced records in the offline write queue.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.requests, m.installs, m.deliveries, m.pending)
	return m
}

func (m *Metrics) ObserveRequest(strategy, cache string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(strategy, cache).Inc()
}

func (m *Metrics) ObserveInstall(result string) {
	if m == nil {
		return
	}
	m.installs.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDelivery(kind, status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) SetPending(kind string, n int) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(kind).Set(float64(n))
}
