package payment

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// MockGateway: конфигурируемая in-process реализация PaymentGateway для локального
// запуска без ключей Stripe и для тестов.
type MockGateway struct {
	mu sync.Mutex

	// BaseURL: префикс ссылок оплаты.
	BaseURL string
	// WebhookSecret сравнивается с заголовком подписи как есть.
	WebhookSecret string
	// LinkErr, если задан, возвращается из CreateCheckoutLink.
	LinkErr error
	// EmptyURL имитирует сессию без URL.
	EmptyURL bool

	sessions map[string]string

	CreateCalls   int
	LastItems     []domain.PricedItem
	LastShipping  int64
	LastOrderID   string
	ResolveCalls  int
	VerifiedCalls int
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway(baseURL, webhookSecret string) *MockGateway {
	return &MockGateway{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		WebhookSecret: webhookSecret,
		sessions:      make(map[string]string),
	}
}

// MockSessionID: детерминированный id сессии для заказа.
func MockSessionID(orderID string) string {
	return "cs_mock_" + orderID
}

// CreateCheckoutLink запоминает аргументы и регистрирует сессию для ResolveOrderID.
func (m *MockGateway) CreateCheckoutLink(_ context.Context, items []domain.PricedItem, shippingMinor int64, orderID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	m.LastItems = append([]domain.PricedItem(nil), items...)
	m.LastShipping = shippingMinor
	m.LastOrderID = orderID

	if m.LinkErr != nil {
		return "", m.LinkErr
	}
	if m.EmptyURL || orderID == "" {
		return "", domain.ErrPaymentLink
	}

	sessionID := MockSessionID(orderID)
	if m.sessions == nil {
		m.sessions = make(map[string]string)
	}
	m.sessions[sessionID] = orderID
	return m.BaseURL + "/mock-checkout/" + sessionID, nil
}

// ResolveOrderID возвращает заказ ранее созданной сессии.
func (m *MockGateway) ResolveOrderID(_ context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ResolveCalls++
	orderID, ok := m.sessions[sessionID]
	if !ok {
		return "", domain.ErrSessionUnresolved
	}
	return orderID, nil
}

// MockEvent: JSON-формат тела webhook для MockGateway.
type MockEvent struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	SessionID     string `json:"sessionId"`
	OrderID       string `json:"orderId"`
	PaymentStatus string `json:"paymentStatus"`
}

// VerifyWebhook принимает тело, только если подпись совпадает с WebhookSecret.
func (m *MockGateway) VerifyWebhook(payload []byte, signature string) (domain.GatewayEvent, error) {
	m.mu.Lock()
	m.VerifiedCalls++
	secret := m.WebhookSecret
	m.mu.Unlock()

	if secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(signature)) != 1 {
		return domain.GatewayEvent{}, domain.ErrInvalidSignature
	}

	var ev MockEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.ID == "" {
		return domain.GatewayEvent{}, domain.ErrInvalidSignature
	}
	return domain.GatewayEvent{
		ID:            ev.ID,
		Type:          ev.Type,
		SessionID:     ev.SessionID,
		OrderID:       ev.OrderID,
		PaymentStatus: ev.PaymentStatus,
	}, nil
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
