package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics tracks the publisher loop.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
	dlq       prometheus.Counter
	backlog   prometheus.Gauge
}

// NewOutboxMetrics registers the outbox publisher metrics.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Outbox events published to Pub/Sub.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_failed_total",
		Help: "Outbox publish attempts that failed.",
	}, []string{"event_type"})
	dlq := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_dead_lettered_total",
		Help: "Outbox events moved to the DLQ.",
	})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_backlog",
		Help: "Unpublished outbox rows seen by the last poll.",
	})
	reg.MustRegister(published, failed, dlq, backlog)
	return &OutboxMetrics{
		published: published,
		failed:    failed,
		dlq:       dlq,
		backlog:   backlog,
	}
}

// IncPublished counts a successful publish for the event type.
func (o *OutboxMetrics) IncPublished(eventType string) {
	if o == nil || o.published == nil {
		return
	}
	o.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncFailed counts a failed publish attempt for the event type.
func (o *OutboxMetrics) IncFailed(eventType string) {
	if o == nil || o.failed == nil {
		return
	}
	o.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncDeadLettered counts an event moved to the DLQ.
func (o *OutboxMetrics) IncDeadLettered() {
	if o == nil || o.dlq == nil {
		return
	}
	o.dlq.Inc()
}

// SetBacklog records the unpublished row count from the latest poll.
func (o *OutboxMetrics) SetBacklog(n int) {
	if o == nil || o.backlog == nil {
		return
	}
	o.backlog.Set(float64(n))
}
