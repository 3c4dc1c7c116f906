package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// StorageDriverMemory хранит данные в памяти процесса с демо-каталогом.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres использует PostgreSQL через pgx.
	StorageDriverPostgres = "postgres"
)

var (
	errUnsupportedStorage   = errors.New("unsupported storage driver")
	errPaymentNotConfigured = errors.New("payment gateway is not configured")
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	// BaseURL: публичный адрес API, префикс ссылок на медиа.
	BaseURL string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers: список брокеров через запятую; пусто отключает outbox.
	KafkaBrokers string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeCurrency      string
	FrontendURL         string
	// AllowMockPayments разрешает in-process шлюз без ключей Stripe.
	AllowMockPayments bool

	BcryptCost   int
	HistoryLimit int

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int

	DeliveryTTL              time.Duration
	DeliveryCleanupInterval  time.Duration
	DeliveryCleanupBatchSize int

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                 ":8080",
		MetricsAddr:              ":9090",
		StorageDriver:            StorageDriverMemory,
		PostgresAutoMigrate:      true,
		StripeCurrency:           "usd",
		FrontendURL:              "http://localhost:3000",
		BcryptCost:               10,
		HistoryLimit:             100,
		OutboxPollInterval:       time.Second,
		OutboxBatchSize:          100,
		OutboxMaxAttempts:        10,
		DeliveryTTL:              72 * time.Hour,
		DeliveryCleanupInterval:  time.Hour,
		DeliveryCleanupBatchSize: 500,
		ShutdownTimeout:          10 * time.Second,
	}
}

// Validate проверяет согласованность настроек до старта компонентов.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return errors.New("postgres dsn is required for postgres storage")
		}
	default:
		return fmt.Errorf("%w: %q", errUnsupportedStorage, c.StorageDriver)
	}

	if c.StripeSecretKey == "" && !c.AllowMockPayments {
		return fmt.Errorf("%w: set STRIPE_SECRET_KEY or allow mock payments", errPaymentNotConfigured)
	}
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		return fmt.Errorf("%w: webhook secret is required with a stripe key", errPaymentNotConfigured)
	}
	return nil
}

// kafkaBrokers разбирает KafkaBrokers, отбрасывая пустые элементы.
func (c Config) kafkaBrokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
