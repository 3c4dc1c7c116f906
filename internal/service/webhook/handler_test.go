package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/payment"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

const testSecret = "whsec_test"

type pendingLister interface {
	domain.OutboxRepository
	AllPending() []domain.OutboxMessage
}

type fixture struct {
	handler    *Handler
	gateway    *payment.MockGateway
	orders     domain.OrderRepository
	deliveries domain.IdempotencyRepository
	outbox     pendingLister
}

func loggerForTests() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gateway := payment.NewMockGateway("http://pay.local", testSecret)
	orders := memory.NewOrderRepository()
	deliveries := memory.NewIdempotencyRepository()
	outbox := memory.NewOutboxRepository()

	h := NewHandler(gateway, orders, loggerForTests(),
		WithDeliveries(deliveries),
		WithOutbox(outbox),
		WithMetrics(metrics.NewWebhookMetricsWithRegisterer(prometheus.NewRegistry())),
	)
	return fixture{handler: h, gateway: gateway, orders: orders, deliveries: deliveries, outbox: outbox}
}

func createPendingOrder(t *testing.T, orders domain.OrderRepository) domain.Order {
	t.Helper()
	now := time.Now().UTC()
	order := domain.Order{
		ID:                uuid.NewString(),
		UserID:            7,
		Status:            domain.OrderStatusPending,
		TotalMinor:        9990,
		ShippingCostMinor: 1000,
		ShippingDays:      3,
		Items:             []domain.OrderItem{{ID: uuid.NewString(), ProductID: 1, Quantity: 1, PriceMinor: 8990}},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	order.Items[0].OrderID = order.ID
	require.NoError(t, orders.Create(context.Background(), order))
	return order
}

func mockBody(t *testing.T, ev payment.MockEvent) []byte {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return body
}

func orderStatus(t *testing.T, orders domain.OrderRepository, id string) domain.OrderStatus {
	t.Helper()
	order, err := orders.Get(context.Background(), id)
	require.NoError(t, err)
	return order.Status
}

func TestHandleGatewayEvent_CompletedMarksPaid(t *testing.T) {
	f := newFixture(t)
	order := createPendingOrder(t, f.orders)

	body := mockBody(t, payment.MockEvent{
		ID:            "evt_1",
		Type:          domain.GatewayEventCheckoutCompleted,
		SessionID:     "cs_1",
		OrderID:       order.ID,
		PaymentStatus: domain.GatewayPaymentStatusPaid,
	})
	outcome, err := f.handler.HandleGatewayEvent(context.Background(), body, testSecret)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	require.Equal(t, domain.OrderStatusPaid, orderStatus(t, f.orders, order.ID))

	record, err := f.deliveries.Get(context.Background(), "evt_1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, record.Status)
	require.Len(t, record.PayloadHash, 64)

	pending := f.outbox.AllPending()
	require.Len(t, pending, 1)
	require.Equal(t, domain.OutboxEventOrderPaid, pending[0].EventType)
	require.Equal(t, order.ID, pending[0].AggregateID)
}

func TestHandleGatewayEvent_InvalidSignatureNeverMutates(t *testing.T) {
	f := newFixture(t)
	order := createPendingOrder(t, f.orders)

	body := mockBody(t, payment.MockEvent{
		ID:            "evt_forged",
		Type:          domain.GatewayEventCheckoutCompleted,
		OrderID:       order.ID,
		PaymentStatus: domain.GatewayPaymentStatusPaid,
	})
	for _, sig := range []string{"", "wrong", testSecret + "x"} {
		outcome, err := f.handler.HandleGatewayEvent(context.Background(), body, sig)
		require.ErrorIs(t, err, domain.ErrInvalidSignature)
		require.Empty(t, outcome)
	}

	require.Equal(t, domain.OrderStatusPending, orderStatus(t, f.orders, order.ID))
	_, err := f.deliveries.Get(context.Background(), "evt_forged")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	require.Empty(t, f.outbox.AllPending())
}

func TestHandleGatewayEvent_DuplicateDeliveryIsNoop(t *testing.T) {
	f := newFixture(t)
	order := createPendingOrder(t, f.orders)

	body := mockBody(t, payment.MockEvent{
		ID:            "evt_dup",
		Type:          domain.GatewayEventAsyncPaymentSucceeded,
		SessionID:     "cs_dup",
		OrderID:       order.ID,
		PaymentStatus: domain.GatewayPaymentStatusPaid,
	})

	first, err := f.handler.HandleGatewayEvent(context.Background(), body, testSecret)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, first)

	second, err := f.handler.HandleGatewayEvent(context.Background(), body, testSecret)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, second)

	require.Equal(t, domain.OrderStatusPaid, orderStatus(t, f.orders, order.ID))
	require.Len(t, f.outbox.AllPending(), 1)
}

func TestHandleGatewayEvent_SameTransitionWithNewEventIDIsNoop(t *testing.T) {
	f := newFixture(t)
	order := createPendingOrder(t, f.orders)

	for i, id := range []string{"evt_a", "evt_b"} {
		body := mockBody(t, payment.MockEvent{
			ID:            id,
			Type:          domain.GatewayEventCheckoutCompleted,
			OrderID:       order.ID,
			PaymentStatus: domain.GatewayPaymentStatusPaid,
		})
		outcome, err := f.handler.HandleGatewayEvent(context.Background(), body, testSecret)
		require.NoError(t, err)
		if i == 0 {
			require.Equal(t, OutcomeApplied, outcome)
		} else {
			require.Equal(t, OutcomeDuplicate, outcome)
		}
	}
	require.Equal(t, domain.OrderStatusPaid, orderStatus(t, f.orders, order.ID))
}

func TestHandleGatewayEvent_StatusMapping(t *testing.T) {
	tests := []struct {
		name          string
		eventType     string
		paymentStatus string
		wantOutcome   Outcome
		wantStatus    domain.OrderStatus
	}{
		{name: "completed paid", eventType: domain.GatewayEventCheckoutCompleted, paymentStatus: "paid", wantOutcome: OutcomeApplied, wantStatus: domain.OrderStatusPaid},
		{name: "completed free", eventType: domain.GatewayEventCheckoutCompleted, paymentStatus: "no_payment_required", wantOutcome: OutcomeApplied, wantStatus: domain.OrderStatusPaid},
		{name: "completed unpaid waits", eventType: domain.GatewayEventCheckoutCompleted, paymentStatus: "unpaid", wantOutcome: OutcomeIgnored, wantStatus: domain.OrderStatusPending},
		{name: "async succeeded", eventType: domain.GatewayEventAsyncPaymentSucceeded, wantOutcome: OutcomeApplied, wantStatus: domain.OrderStatusPaid},
		{name: "async failed", eventType: domain.GatewayEventAsyncPaymentFailed, wantOutcome: OutcomeApplied, wantStatus: domain.OrderStatusCancelled},
		{name: "expired", eventType: domain.GatewayEventCheckoutExpired, wantOutcome: OutcomeApplied, wantStatus: domain.OrderStatusCancelled},
		{name: "other type", eventType: "payment_intent.created", wantOutcome: OutcomeIgnored, wantStatus: domain.OrderStatusPending},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			order := createPendingOrder(t, f.orders)

			body := mockBody(t, payment.MockEvent{
				ID:            "evt_" + tc.name,
				Type:          tc.eventType,
				OrderID:       order.ID,
				PaymentStatus: tc.paymentStatus,
			})
			outcome, err := f.handler.HandleGatewayEvent(context.Background(), body, testSecret)
			require.NoError(t, err)
			require.Equal(t, tc.wantOutcome, outcome)
			require.Equal(t, tc.wantStatus, orderStatus(t, f.orders, order.ID))
		})
	}
}

func TestHandleGatewayEvent_FinalStatusNotOverwritten(t *testing.T) {
	f := newFixture(t)
	order := createPendingOrder(t, f.orders)
	require.NoError(t, f.orders.UpdateStatus(context.Background(), order.ID, domain.OrderStatusPending, domain.OrderStatusPaid))

	body := mockBody(t, payment.MockEvent{
		ID:      "evt_late_expire",
		Type:    domain.GatewayEventCheckoutExpired,
		OrderID: order.ID,
	})
	outcome, err := f.handler.HandleGatewayEvent(context.Background(), body, testSecret)
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, outcome)
	require.Equal(t, domain.OrderStatusPaid, orderStatus(t, f.orders, order.ID))
	require.Empty(t, f.outbox.AllPending())
}

func TestHandleGatewayEvent_ResolvesOrderFromSession(t *testing.T) {
	f := newFixture(t)
	order := createPendingOrder(t, f.orders)

	_, err := f.gateway.CreateCheckoutLink(context.Background(), nil, 1000, order.ID)
	require.NoError(t, err)

	body := mockBody(t, payment.MockEvent{
		ID:            "evt_resolve",
		Type:          domain.GatewayEventCheckoutCompleted,
		SessionID:     payment.MockSessionID(order.ID),
		PaymentStatus: domain.GatewayPaymentStatusPaid,
	})
	outcome, err := f.handler.HandleGatewayEvent(context.Background(), body, testSecret)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	require.Equal(t, 1, f.gateway.ResolveCalls)
	require.Equal(t, domain.OrderStatusPaid, orderStatus(t, f.orders, order.ID))
}

func TestHandleGatewayEvent_UnknownOrderIsNoop(t *testing.T) {
	f := newFixture(t)

	tests := []payment.MockEvent{
		{ID: "evt_unknown_order", Type: domain.GatewayEventCheckoutExpired, OrderID: uuid.NewString()},
		{ID: "evt_unknown_session", Type: domain.GatewayEventCheckoutExpired, SessionID: "cs_missing"},
	}
	for _, ev := range tests {
		outcome, err := f.handler.HandleGatewayEvent(context.Background(), mockBody(t, ev), testSecret)
		require.NoError(t, err)
		require.Equal(t, OutcomeIgnored, outcome)
	}
}

type flakyOrders struct {
	domain.OrderRepository
	failUpdates int
}

func (f *flakyOrders) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) error {
	if f.failUpdates > 0 {
		f.failUpdates--
		return errors.New("connection lost")
	}
	return f.OrderRepository.UpdateStatus(ctx, id, from, to)
}

func TestHandleGatewayEvent_FailedDeliveryIsRetriedOnRedelivery(t *testing.T) {
	f := newFixture(t)
	order := createPendingOrder(t, f.orders)
	f.handler.orders = &flakyOrders{OrderRepository: f.orders, failUpdates: 1}

	body := mockBody(t, payment.MockEvent{
		ID:            "evt_retry",
		Type:          domain.GatewayEventCheckoutCompleted,
		OrderID:       order.ID,
		PaymentStatus: domain.GatewayPaymentStatusPaid,
	})

	_, err := f.handler.HandleGatewayEvent(context.Background(), body, testSecret)
	require.ErrorContains(t, err, "connection lost")
	record, err := f.deliveries.Get(context.Background(), "evt_retry")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusFailed, record.Status)
	require.Equal(t, domain.OrderStatusPending, orderStatus(t, f.orders, order.ID))

	outcome, err := f.handler.HandleGatewayEvent(context.Background(), body, testSecret)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	require.Equal(t, domain.OrderStatusPaid, orderStatus(t, f.orders, order.ID))
}

type racingOrders struct {
	domain.OrderRepository
}

// UpdateStatus имитирует параллельную доставку, успевшую перевести заказ раньше.
func (r racingOrders) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) error {
	if err := r.OrderRepository.UpdateStatus(ctx, id, from, to); err != nil {
		return err
	}
	return domain.ErrOrderStatusConflict
}

func TestHandleGatewayEvent_ConcurrentConflictBecomesNoop(t *testing.T) {
	f := newFixture(t)
	order := createPendingOrder(t, f.orders)
	f.handler.orders = racingOrders{OrderRepository: f.orders}

	body := mockBody(t, payment.MockEvent{
		ID:      "evt_race",
		Type:    domain.GatewayEventCheckoutExpired,
		OrderID: order.ID,
	})
	outcome, err := f.handler.HandleGatewayEvent(context.Background(), body, testSecret)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)
	require.Empty(t, f.outbox.AllPending())
}

func TestHandleGatewayEvent_StripeSignatureOverRawBytes(t *testing.T) {
	gateway := payment.NewStripeGatewayWithAPI(payment.StripeConfig{WebhookSecret: testSecret}, nil, loggerForTests())
	orders := memory.NewOrderRepository()
	h := NewHandler(gateway, orders, loggerForTests(), WithDeliveries(memory.NewIdempotencyRepository()))
	order := createPendingOrder(t, orders)

	payload, err := json.Marshal(map[string]any{
		"id":          "evt_stripe",
		"object":      "event",
		"type":        domain.GatewayEventCheckoutCompleted,
		"api_version": "2020-08-27",
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_stripe",
				"object":         "checkout.session",
				"payment_status": "paid",
				"metadata":       map[string]string{payment.MetadataOrderID: order.ID},
			},
		},
	})
	require.NoError(t, err)
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSecret,
		Timestamp: time.Now(),
	})

	// пересериализованное тело не проходит проверку
	tampered := append([]byte(nil), signed.Payload...)
	tampered = append(tampered, '\n')
	_, err = h.HandleGatewayEvent(context.Background(), tampered, signed.Header)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
	require.Equal(t, domain.OrderStatusPending, orderStatus(t, orders, order.ID))

	outcome, err := h.HandleGatewayEvent(context.Background(), signed.Payload, signed.Header)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	require.Equal(t, domain.OrderStatusPaid, orderStatus(t, orders, order.ID))
}

func TestHandleGatewayEvent_WithoutOptionalDependencies(t *testing.T) {
	gateway := payment.NewMockGateway("", testSecret)
	orders := memory.NewOrderRepository()
	h := NewHandler(gateway, orders, nil)
	order := createPendingOrder(t, orders)

	body := mockBody(t, payment.MockEvent{ID: "evt_plain", Type: domain.GatewayEventCheckoutExpired, OrderID: order.ID})
	outcome, err := h.HandleGatewayEvent(context.Background(), body, testSecret)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	require.Equal(t, domain.OrderStatusCancelled, orderStatus(t, orders, order.ID))
}

func TestHandleGatewayEvent_StaleProcessingDeliveryIsReclaimed(t *testing.T) {
	f := newFixture(t)
	order := createPendingOrder(t, f.orders)

	// предыдущий обработчик упал между регистрацией доставки и её завершением
	_, err := f.deliveries.CreateProcessing(context.Background(), "evt_crash", domain.GatewayEventCheckoutCompleted, "hash", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	later := time.Now().UTC().Add(defaultProcessingLease + time.Minute)
	f.handler.now = func() time.Time { return later }

	body := mockBody(t, payment.MockEvent{
		ID:            "evt_crash",
		Type:          domain.GatewayEventCheckoutCompleted,
		OrderID:       order.ID,
		PaymentStatus: domain.GatewayPaymentStatusPaid,
	})
	outcome, err := f.handler.HandleGatewayEvent(context.Background(), body, testSecret)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	require.Equal(t, domain.OrderStatusPaid, orderStatus(t, f.orders, order.ID))

	record, err := f.deliveries.Get(context.Background(), "evt_crash")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, record.Status)
}

func TestHandleGatewayEvent_InFlightDeliveryIsDeferred(t *testing.T) {
	f := newFixture(t)
	order := createPendingOrder(t, f.orders)

	_, err := f.deliveries.CreateProcessing(context.Background(), "evt_busy", domain.GatewayEventCheckoutCompleted, "hash", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)

	body := mockBody(t, payment.MockEvent{
		ID:            "evt_busy",
		Type:          domain.GatewayEventCheckoutCompleted,
		OrderID:       order.ID,
		PaymentStatus: domain.GatewayPaymentStatusPaid,
	})
	outcome, err := f.handler.HandleGatewayEvent(context.Background(), body, testSecret)
	require.ErrorIs(t, err, domain.ErrDeliveryInProgress)
	require.Empty(t, outcome)
	require.Equal(t, domain.OrderStatusPending, orderStatus(t, f.orders, order.ID))

	// после истечения lease повтор провайдера доводит событие до конца
	later := time.Now().UTC().Add(defaultProcessingLease + time.Minute)
	f.handler.now = func() time.Time { return later }
	outcome, err = f.handler.HandleGatewayEvent(context.Background(), body, testSecret)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	require.Equal(t, domain.OrderStatusPaid, orderStatus(t, f.orders, order.ID))
}

// ctxAwareDeliveries отказывает в записи итога по отменённому контексту, как это делает БД.
type ctxAwareDeliveries struct {
	domain.IdempotencyRepository
}

func (d ctxAwareDeliveries) MarkDone(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.IdempotencyRepository.MarkDone(ctx, key)
}

func (d ctxAwareDeliveries) MarkFailed(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.IdempotencyRepository.MarkFailed(ctx, key)
}

type cancellingOrders struct {
	domain.OrderRepository
	cancel context.CancelFunc
	fail   bool
}

// UpdateStatus имитирует обрыв соединения клиента сразу после записи статуса.
func (c cancellingOrders) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) error {
	defer c.cancel()
	if c.fail {
		return errors.New("connection lost")
	}
	return c.OrderRepository.UpdateStatus(ctx, id, from, to)
}

func TestHandleGatewayEvent_OutcomeRecordedAfterRequestCancel(t *testing.T) {
	tests := []struct {
		name       string
		fail       bool
		wantStatus domain.IdempotencyStatus
	}{
		{name: "applied", wantStatus: domain.IdempotencyStatusDone},
		{name: "failed", fail: true, wantStatus: domain.IdempotencyStatusFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gateway := payment.NewMockGateway("", testSecret)
			orders := memory.NewOrderRepository()
			deliveries := memory.NewIdempotencyRepository()
			order := createPendingOrder(t, orders)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			h := NewHandler(gateway, cancellingOrders{OrderRepository: orders, cancel: cancel, fail: tc.fail}, loggerForTests(),
				WithDeliveries(ctxAwareDeliveries{IdempotencyRepository: deliveries}),
			)

			body := mockBody(t, payment.MockEvent{ID: "evt_cancel", Type: domain.GatewayEventCheckoutExpired, OrderID: order.ID})
			_, _ = h.HandleGatewayEvent(ctx, body, testSecret)
			require.Error(t, ctx.Err())

			record, err := deliveries.Get(context.Background(), "evt_cancel")
			require.NoError(t, err)
			require.Equal(t, tc.wantStatus, record.Status)
		})
	}
}
