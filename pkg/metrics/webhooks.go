package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics counts webhook deliveries by source and outcome.
type WebhookMetrics struct {
	deliveries *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook counters on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Webhook deliveries by source and outcome.",
	}, []string{"source", "outcome"})
	reg.MustRegister(deliveries)
	return &WebhookMetrics{deliveries: deliveries}
}

// Inc records one delivery outcome (processed, duplicate, rejected, dropped).
func (w *WebhookMetrics) Inc(source, outcome string) {
	if w == nil || w.deliveries == nil {
		return
	}
	w.deliveries.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}
