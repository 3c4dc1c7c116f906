package checkout

import (
	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

// Option настраивает Service.
type Option func(*Service)

// WithMetrics включает метрики оформления.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithOutbox включает запись события OrderCreated после сохранения заказа.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) {
		s.outbox = outbox
	}
}

// WithShippingRate задаёт тариф доставки. Отрицательные значения игнорируются.
func WithShippingRate(rate FlatRate) Option {
	return func(s *Service) {
		if rate.CostMinor >= 0 && rate.Days >= 0 {
			s.shipping = rate
		}
	}
}

// WithLookupConcurrency ограничивает число параллельных запросов товаров.
func WithLookupConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.lookupConcurrency = n
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов и позиций.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}
