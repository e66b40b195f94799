package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the audit pipeline counters.
type Metrics struct {
	LogsGenerated *prometheus.CounterVec
	LogsSkipped   *prometheus.CounterVec
	BatchErrors   *prometheus.CounterVec
	Outbox        *prometheus.CounterVec
}

// New creates the counters and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		LogsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_logs_generated_total",
			Help: "Audit logs queued for persistence",
		}, []string{"event_type"}),
		LogsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_logs_skipped_total",
			Help: "Audit logs vetoed by an AuditLogGenerated subscriber",
		}, []string{"event_type"}),
		BatchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_batch_errors_total",
			Help: "Audit batches aborted by an error",
		}, []string{"batch"}),
		Outbox: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_outbox_dispatch_total",
			Help: "Outbox delivery attempts by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncGenerated(eventType string) {
	if m == nil {
		return
	}
	m.LogsGenerated.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncSkipped(eventType string) {
	if m == nil {
		return
	}
	m.LogsSkipped.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncBatchError(batch string) {
	if m == nil {
		return
	}
	m.BatchErrors.WithLabelValues(batch).Inc()
}

func (m *Metrics) IncOutbox(result string) {
	if m == nil {
		return
	}
	m.Outbox.WithLabelValues(result).Inc()
}
