package app

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop/internal/service/payment"
)

// newPaymentGateway выбирает Stripe при наличии ключа, иначе разрешённый mock.
func newPaymentGateway(cfg Config, logger *log.Entry) (domain.PaymentGateway, error) {
	if cfg.StripeSecretKey != "" {
		logger.WithField("currency", cfg.StripeCurrency).Info("stripe payment gateway enabled")
		return payment.NewStripeGateway(payment.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			FrontendURL:   cfg.FrontendURL,
			Currency:      cfg.StripeCurrency,
		}, logger.WithField("layer", "stripe")), nil
	}
	if cfg.AllowMockPayments {
		logger.Warn("mock payment gateway enabled, payments are not real")
		return payment.NewMockGateway(cfg.FrontendURL, cfg.StripeWebhookSecret), nil
	}
	return nil, errPaymentNotConfigured
}

// initKafkaProducer возвращает nil, nil, если брокеры не заданы.
func initKafkaProducer(cfg Config, logger *log.Entry) (*kafka.Producer, error) {
	brokers := cfg.kafkaBrokers()
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:  brokers,
		ClientID: "shop-service",
	}, logger.WithField("layer", "kafka"))
	if err != nil {
		return nil, fmt.Errorf("init kafka producer: %w", err)
	}
	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает producer, если он создан.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
