package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/akshitbansal010/warehouse-compliance-system/domain"
)

const (
	reasonReplaced   = "replaced"
	reasonSendFailed = "send_failed"
	reasonStale      = "stale"
	reasonForced     = "forced"
	reasonClosed     = "closed"
	reasonShutdown   = "shutdown"
)

type metrics struct {
	connections      *prometheus.GaugeVec
	registrations    *prometheus.CounterVec
	evictions        *prometheus.CounterVec
	deliveryFailures prometheus.Counter
	envelopesSent    *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		connections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "warehouse",
			Subsystem: "broker",
			Name:      "connections",
			Help:      "Live registered connections by role",
		}, []string{"role"}),
		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warehouse",
			Subsystem: "broker",
			Name:      "registrations_total",
			Help:      "Connections registered by role",
		}, []string{"role"}),
		evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warehouse",
			Subsystem: "broker",
			Name:      "evictions_total",
			Help:      "Connections removed from the registry by reason",
		}, []string{"reason"}),
		deliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "warehouse",
			Subsystem: "broker",
			Name:      "delivery_failures_total",
			Help:      "Sends that failed and ended a connection",
		}),
		envelopesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warehouse",
			Subsystem: "broker",
			Name:      "envelopes_sent_total",
			Help:      "Envelopes handed to connections by type",
		}, []string{"type"}),
	}
}

func (m *metrics) added(role domain.Role) {
	m.connections.WithLabelValues(string(role)).Inc()
	m.registrations.WithLabelValues(string(role)).Inc()
}

func (m *metrics) removed(role domain.Role, reason string) {
	m.connections.WithLabelValues(string(role)).Dec()
	m.evictions.WithLabelValues(reason).Inc()
}
