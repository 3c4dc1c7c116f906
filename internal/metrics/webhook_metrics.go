package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы обработки webhook-события.
const (
	WebhookResultApplied   = "applied"
	WebhookResultDuplicate = "duplicate"
	WebhookResultIgnored   = "ignored"
	WebhookResultRejected  = "rejected"
	WebhookResultFailed    = "failed"
	// WebhookResultDeferred: доставка занята параллельной обработкой, провайдер повторит.
	WebhookResultDeferred = "deferred"
)

// WebhookMetrics: метрики обработки уведомлений платёжного провайдера.
type WebhookMetrics struct {
	events   *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewWebhookMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewWebhookMetrics() *WebhookMetrics {
	return NewWebhookMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWebhookMetricsWithRegisterer(registerer prometheus.Registerer) *WebhookMetrics {
	return &WebhookMetrics{
		events: newCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_webhook_events_total",
			Help: "Payment provider notifications by event type and result",
		}, "type", "result"),
		duration: newHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_webhook_duration_seconds",
			Help:    "Duration of webhook handling in seconds",
			Buckets: latencyBuckets,
		}),
	}
}

// RecordEvent учитывает одно событие; пустой тип (неподписанное тело) пишется как "unknown".
func (m *WebhookMetrics) RecordEvent(eventType, result string, duration time.Duration) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType, result).Inc()
	m.duration.Observe(duration.Seconds())
}
