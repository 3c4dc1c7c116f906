package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Шаги оформления заказа для гистограммы длительности.
const (
	StepAddress = "address"
	StepPricing = "pricing"
	StepPersist = "persist"
	StepPayment = "payment_link"
)

// CheckoutMetrics содержит метрики оформления заказа.
// Методы безопасны для nil-получателя: сервисы могут работать без метрик.
type CheckoutMetrics struct {
	started      prometheus.Counter
	completed    prometheus.Counter
	failed       *prometheus.CounterVec
	droppedItems prometheus.Counter
	linkFailures prometheus.Counter

	duration     prometheus.Histogram
	stepDuration *prometheus.HistogramVec

	inFlight prometheus.Gauge
}

// NewCheckoutMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer регистрирует метрики в переданном реестре.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	return &CheckoutMetrics{
		started: newCounter(registerer, prometheus.CounterOpts{
			Name: "shop_checkout_started_total",
			Help: "Total number of checkout attempts",
		}),
		completed: newCounter(registerer, prometheus.CounterOpts{
			Name: "shop_checkout_completed_total",
			Help: "Total number of checkouts that produced a payment link",
		}),
		failed: newCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_checkout_failed_total",
			Help: "Total number of failed checkouts by reason",
		}, "reason"),
		droppedItems: newCounter(registerer, prometheus.CounterOpts{
			Name: "shop_checkout_dropped_items_total",
			Help: "Cart items skipped because the product could not be resolved",
		}),
		linkFailures: newCounter(registerer, prometheus.CounterOpts{
			Name: "shop_checkout_payment_link_failures_total",
			Help: "Orders left pending because no payment link was created",
		}),
		duration: newHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_checkout_duration_seconds",
			Help:    "Duration of checkout operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: newHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "shop_checkout_step_duration_seconds",
			Help:    "Duration of individual checkout steps in seconds",
			Buckets: latencyBuckets,
		}, "step"),
		inFlight: newGauge(registerer, prometheus.GaugeOpts{
			Name: "shop_checkout_in_flight",
			Help: "Number of checkouts currently being assembled",
		}),
	}
}

// RecordStarted увеличивает счётчик попыток и число активных оформлений.
func (m *CheckoutMetrics) RecordStarted() {
	if m == nil {
		return
	}
	m.started.Inc()
	m.inFlight.Inc()
}

// RecordFinished фиксирует завершение оформления (успешное или нет).
func (m *CheckoutMetrics) RecordFinished(duration time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.duration.Observe(duration.Seconds())
}

func (m *CheckoutMetrics) RecordCompleted() {
	if m == nil {
		return
	}
	m.completed.Inc()
}

// RecordFailed увеличивает счётчик неудач с указанной причиной.
func (m *CheckoutMetrics) RecordFailed(reason string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(reason).Inc()
}

func (m *CheckoutMetrics) RecordDroppedItems(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.droppedItems.Add(float64(n))
}

func (m *CheckoutMetrics) RecordPaymentLinkFailure() {
	if m == nil {
		return
	}
	m.linkFailures.Inc()
}

// RecordStepDuration записывает время выполнения шага.
func (m *CheckoutMetrics) RecordStepDuration(step string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}
