package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/app"
)

const (
	envHTTPAddr                 = "SHOP_HTTP_ADDR"
	envMetricsAddr              = "SHOP_METRICS_ADDR"
	envBaseURL                  = "BASE_URL"
	envStorageDriver            = "SHOP_STORAGE_DRIVER"
	envPostgresDSN              = "SHOP_POSTGRES_DSN"
	envPostgresAutoMigrate      = "SHOP_POSTGRES_AUTO_MIGRATE"
	envKafkaBrokers             = "KAFKA_BROKERS"
	envStripeSecretKey          = "STRIPE_SECRET_KEY"
	envStripeWebhookSecret      = "STRIPE_WEBHOOK_SECRET"
	envStripeCurrency           = "STRIPE_CURRENCY"
	envFrontendURL              = "FRONTEND_URL"
	envAllowMockPayments        = "SHOP_ALLOW_MOCK_PAYMENTS"
	envBcryptCost               = "SHOP_BCRYPT_COST"
	envHistoryLimit             = "SHOP_HISTORY_LIMIT"
	envOutboxPollInterval       = "SHOP_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize          = "SHOP_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts        = "SHOP_OUTBOX_MAX_ATTEMPTS"
	envDeliveryTTL              = "SHOP_WEBHOOK_DELIVERY_TTL"
	envDeliveryCleanupInterval  = "SHOP_WEBHOOK_CLEANUP_INTERVAL"
	envDeliveryCleanupBatchSize = "SHOP_WEBHOOK_CLEANUP_BATCH_SIZE"
	envShutdownTimeout          = "SHOP_SHUTDOWN_TIMEOUT"
)

// envLookup совпадает по сигнатуре с os.LookupEnv.
type envLookup func(string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию
// и возвращается предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, value, err))
	}

	strVars := []struct {
		key string
		dst *string
	}{
		{envHTTPAddr, &cfg.HTTPAddr},
		{envMetricsAddr, &cfg.MetricsAddr},
		{envBaseURL, &cfg.BaseURL},
		{envPostgresDSN, &cfg.PostgresDSN},
		{envKafkaBrokers, &cfg.KafkaBrokers},
		{envStripeSecretKey, &cfg.StripeSecretKey},
		{envStripeWebhookSecret, &cfg.StripeWebhookSecret},
		{envFrontendURL, &cfg.FrontendURL},
	}
	for _, v := range strVars {
		if value, ok := lookup(v.key); ok && strings.TrimSpace(value) != "" {
			*v.dst = strings.TrimSpace(value)
		}
	}
	if value, ok := lookup(envStorageDriver); ok && strings.TrimSpace(value) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(value))
	}
	if value, ok := lookup(envStripeCurrency); ok && strings.TrimSpace(value) != "" {
		cfg.StripeCurrency = strings.ToLower(strings.TrimSpace(value))
	}

	boolVars := []struct {
		key string
		dst *bool
	}{
		{envPostgresAutoMigrate, &cfg.PostgresAutoMigrate},
		{envAllowMockPayments, &cfg.AllowMockPayments},
	}
	for _, v := range boolVars {
		value, ok := lookup(v.key)
		if !ok {
			continue
		}
		parsed, err := parseBool(value)
		if err != nil {
			warn(v.key, value, err)
			continue
		}
		*v.dst = parsed
	}

	positive := func(v int) bool { return v > 0 }
	intVars := []struct {
		key   string
		dst   *int
		valid func(int) bool
		rule  string
	}{
		{envBcryptCost, &cfg.BcryptCost, func(v int) bool { return v >= 4 && v <= 31 }, "must be in [4, 31]"},
		{envHistoryLimit, &cfg.HistoryLimit, positive, "must be > 0"},
		{envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0"},
		{envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0"},
		{envDeliveryCleanupBatchSize, &cfg.DeliveryCleanupBatchSize, positive, "must be > 0"},
	}
	for _, v := range intVars {
		value, ok := lookup(v.key)
		if !ok {
			continue
		}
		parsed, err := parseInt(value, v.valid, v.rule)
		if err != nil {
			warn(v.key, value, err)
			continue
		}
		*v.dst = parsed
	}

	positiveDuration := func(v time.Duration) bool { return v > 0 }
	durationVars := []struct {
		key string
		dst *time.Duration
	}{
		{envOutboxPollInterval, &cfg.OutboxPollInterval},
		{envDeliveryTTL, &cfg.DeliveryTTL},
		{envDeliveryCleanupInterval, &cfg.DeliveryCleanupInterval},
		{envShutdownTimeout, &cfg.ShutdownTimeout},
	}
	for _, v := range durationVars {
		value, ok := lookup(v.key)
		if !ok {
			continue
		}
		parsed, err := parseDuration(value, positiveDuration, "must be > 0")
		if err != nil {
			warn(v.key, value, err)
			continue
		}
		*v.dst = parsed
	}

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}
