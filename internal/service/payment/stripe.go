package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	// MetadataOrderID: ключ metadata сессии, по которому событие связывается с заказом.
	MetadataOrderID = "orderId"

	shippingLineName   = "Shipping"
	defaultCurrency    = "usd"
	defaultHTTPTimeout = 10 * time.Second
)

// SessionAPI: часть клиента Checkout Sessions, которой пользуется шлюз.
// session.Client удовлетворяет интерфейсу; в тестах подставляется заглушка.
type SessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeConfig: параметры подключения к Stripe.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// FrontendURL: база для success/cancel редиректов.
	FrontendURL string
	Currency    string
	HTTPTimeout time.Duration
}

// StripeGateway реализует domain.PaymentGateway поверх Stripe Checkout.
type StripeGateway struct {
	sessions      SessionAPI
	webhookSecret string
	successURL    string
	cancelURL     string
	currency      string
	logger        *log.Entry
}

// NewStripeGateway создаёт шлюз с HTTP-бэкендом Stripe. Сетевые ретраи SDK отключены:
// повтор оформления остаётся решением вызывающего.
func NewStripeGateway(cfg StripeConfig, logger *log.Entry) *StripeGateway {
	logger = ensureLogger(logger)

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		LeveledLogger:     logger.WithField("layer", "stripe-sdk"),
		MaxNetworkRetries: stripe.Int64(0),
	})

	return NewStripeGatewayWithAPI(cfg, session.Client{B: backend, Key: cfg.SecretKey}, logger)
}

// NewStripeGatewayWithAPI создаёт шлюз с произвольной реализацией SessionAPI.
func NewStripeGatewayWithAPI(cfg StripeConfig, api SessionAPI, logger *log.Entry) *StripeGateway {
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	frontend := strings.TrimRight(cfg.FrontendURL, "/")

	return &StripeGateway{
		sessions:      api,
		webhookSecret: cfg.WebhookSecret,
		successURL:    frontend + "/cart/success?session_id={CHECKOUT_SESSION_ID}",
		cancelURL:     frontend + "/my-orders",
		currency:      currency,
		logger:        ensureLogger(logger),
	}
}

// CreateCheckoutLink создаёт Checkout Session и возвращает её URL.
func (g *StripeGateway) CreateCheckoutLink(ctx context.Context, items []domain.PricedItem, shippingMinor int64, orderID string) (string, error) {
	logger := g.logger.WithField("order_id", orderID)

	lines := buildLineItems(items, shippingMinor, g.currency)
	if orderID == "" || len(lines) == 0 {
		logger.Warn("checkout session skipped: nothing to charge")
		return "", domain.ErrPaymentLink
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  lines,
		SuccessURL: stripe.String(g.successURL),
		CancelURL:  stripe.String(g.cancelURL),
	}
	params.Context = ctx
	params.AddMetadata(MetadataOrderID, orderID)

	cs, err := g.sessions.New(params)
	if err != nil {
		logger.WithError(err).Error("stripe checkout session creation failed")
		return "", fmt.Errorf("%w: %v", domain.ErrPaymentLink, err)
	}
	if cs == nil || cs.URL == "" {
		logger.Error("stripe returned checkout session without url")
		return "", domain.ErrPaymentLink
	}

	logger.WithField("session_id", cs.ID).Info("checkout session created")
	return cs.URL, nil
}

// ResolveOrderID читает orderId из metadata сессии.
func (g *StripeGateway) ResolveOrderID(ctx context.Context, sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", domain.ErrSessionUnresolved
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := g.sessions.Get(sessionID, params)
	if err != nil || cs == nil {
		g.logger.WithError(err).WithField("session_id", sessionID).Warn("checkout session lookup failed")
		return "", domain.ErrSessionUnresolved
	}

	orderID, ok := orderIDFromMetadata(cs.Metadata)
	if !ok {
		g.logger.WithField("session_id", sessionID).Warn("checkout session carries no valid order id")
		return "", domain.ErrSessionUnresolved
	}
	return orderID, nil
}

// VerifyWebhook проверяет подпись Stripe-Signature над сырым телом запроса.
// Причина отказа не раскрывается: наружу уходит только ErrInvalidSignature.
func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (domain.GatewayEvent, error) {
	if g.webhookSecret == "" || signature == "" {
		return domain.GatewayEvent{}, domain.ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		g.logger.WithError(err).Debug("webhook signature rejected")
		return domain.GatewayEvent{}, domain.ErrInvalidSignature
	}

	result := domain.GatewayEvent{ID: event.ID, Type: string(event.Type)}
	if !strings.HasPrefix(result.Type, "checkout.session.") || event.Data == nil {
		return result, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		g.logger.WithError(err).WithField("event_id", event.ID).Warn("checkout session payload is malformed")
		return domain.GatewayEvent{}, domain.ErrInvalidSignature
	}
	result.SessionID = cs.ID
	result.PaymentStatus = string(cs.PaymentStatus)
	if orderID, ok := orderIDFromMetadata(cs.Metadata); ok {
		result.OrderID = orderID
	}
	return result, nil
}

// buildLineItems: одна позиция на товар и отдельная строка доставки, если она платная.
func buildLineItems(items []domain.PricedItem, shippingMinor int64, currency string) []*stripe.CheckoutSessionLineItemParams {
	lines := make([]*stripe.CheckoutSessionLineItemParams, 0, len(items)+1)
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		lines = append(lines, lineItem(item.Label, item.PriceMinor, int64(item.Quantity), currency))
	}
	if shippingMinor > 0 {
		lines = append(lines, lineItem(shippingLineName, shippingMinor, 1, currency))
	}
	return lines
}

func lineItem(name string, unitAmount, quantity int64, currency string) *stripe.CheckoutSessionLineItemParams {
	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency: stripe.String(currency),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(name),
			},
			UnitAmount: stripe.Int64(unitAmount),
		},
		Quantity: stripe.Int64(quantity),
	}
}

func orderIDFromMetadata(metadata map[string]string) (string, bool) {
	raw := strings.TrimSpace(metadata[MetadataOrderID])
	if raw == "" {
		return "", false
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", false
	}
	return raw, true
}

func ensureLogger(logger *log.Entry) *log.Entry {
	if logger == nil {
		logger = log.New().WithField("component", "payment-gateway")
	}
	return logger
}

var _ domain.PaymentGateway = (*StripeGateway)(nil)
