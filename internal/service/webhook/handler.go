package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

const (
	defaultDeliveryTTL     = 72 * time.Hour
	defaultProcessingLease = 2 * time.Minute
)

// Outcome: результат обработки одного уведомления.
type Outcome string

const (
	// OutcomeApplied: статус заказа изменён.
	OutcomeApplied Outcome = metrics.WebhookResultApplied
	// OutcomeDuplicate: событие уже обработано или заказ уже в целевом статусе.
	OutcomeDuplicate Outcome = metrics.WebhookResultDuplicate
	// OutcomeIgnored: тип события не интересен или заказ не найден.
	OutcomeIgnored Outcome = metrics.WebhookResultIgnored
)

// Option настраивает Handler.
type Option func(*Handler)

// WithDeliveries включает дедупликацию доставок по id события провайдера.
func WithDeliveries(repo domain.IdempotencyRepository) Option {
	return func(h *Handler) {
		h.deliveries = repo
	}
}

// WithDeliveryTTL задаёт срок хранения записи о доставке.
func WithDeliveryTTL(ttl time.Duration) Option {
	return func(h *Handler) {
		if ttl > 0 {
			h.deliveryTTL = ttl
		}
	}
}

// WithProcessingLease задаёт, через сколько processing-запись без обновлений
// считается брошенной и может быть забрана повторной доставкой.
func WithProcessingLease(lease time.Duration) Option {
	return func(h *Handler) {
		if lease > 0 {
			h.processingLease = lease
		}
	}
}

// WithOutbox включает публикацию OrderPaid/OrderCancelled.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(h *Handler) {
		h.outbox = outbox
	}
}

// WithMetrics включает метрики обработки уведомлений.
func WithMetrics(m *metrics.WebhookMetrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// Handler применяет уведомления платёжного провайдера к заказам.
type Handler struct {
	gateway    domain.PaymentGateway
	orders     domain.OrderRepository
	deliveries domain.IdempotencyRepository
	outbox     domain.OutboxRepository

	deliveryTTL     time.Duration
	processingLease time.Duration
	now             func() time.Time

	metrics *metrics.WebhookMetrics
	logger  *log.Entry
}

// NewHandler создаёт обработчик уведомлений.
func NewHandler(gateway domain.PaymentGateway, orders domain.OrderRepository, logger *log.Entry, opts ...Option) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "webhook")
	}
	h := &Handler{
		gateway:         gateway,
		orders:          orders,
		deliveryTTL:     defaultDeliveryTTL,
		processingLease: defaultProcessingLease,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleGatewayEvent проверяет подпись и применяет событие к заказу.
// Тело должно быть передано байт-в-байт как пришло от провайдера.
// Непроверенное событие → domain.ErrInvalidSignature без изменения состояния.
func (h *Handler) HandleGatewayEvent(ctx context.Context, rawBody []byte, signature string) (Outcome, error) {
	start := time.Now()

	event, err := h.gateway.VerifyWebhook(rawBody, signature)
	if err != nil {
		h.metrics.RecordEvent("", metrics.WebhookResultRejected, time.Since(start))
		h.logger.Warn("webhook rejected: signature verification failed")
		return "", domain.ErrInvalidSignature
	}

	logger := h.logger.WithFields(log.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"session_id": event.SessionID,
	})

	outcome, err := h.handleVerified(ctx, event, rawBody, logger)
	if errors.Is(err, domain.ErrDeliveryInProgress) {
		h.metrics.RecordEvent(event.Type, metrics.WebhookResultDeferred, time.Since(start))
		logger.Info("webhook delivery deferred: same event is being processed")
		return "", err
	}
	if err != nil {
		h.metrics.RecordEvent(event.Type, metrics.WebhookResultFailed, time.Since(start))
		logger.WithError(err).Error("webhook processing failed")
		return "", err
	}

	h.metrics.RecordEvent(event.Type, string(outcome), time.Since(start))
	logger.WithField("outcome", outcome).Debug("webhook processed")
	return outcome, nil
}

func (h *Handler) handleVerified(ctx context.Context, event domain.GatewayEvent, rawBody []byte, logger *log.Entry) (Outcome, error) {
	target, ok := targetStatus(event)
	if !ok {
		return OutcomeIgnored, nil
	}

	fresh, err := h.claimDelivery(ctx, event, rawBody)
	if err != nil {
		return "", err
	}
	if !fresh {
		logger.Info("duplicate webhook delivery skipped")
		return OutcomeDuplicate, nil
	}

	outcome, err := h.apply(ctx, event, target, logger)
	if err != nil {
		h.releaseDelivery(ctx, event.ID, logger)
		return "", err
	}
	h.completeDelivery(ctx, event.ID, logger)
	return outcome, nil
}

// targetStatus сопоставляет тип события целевому статусу заказа.
// Завершённая сессия без оплаты ждёт асинхронного события.
func targetStatus(event domain.GatewayEvent) (domain.OrderStatus, bool) {
	switch event.Type {
	case domain.GatewayEventCheckoutCompleted:
		switch event.PaymentStatus {
		case domain.GatewayPaymentStatusPaid, domain.GatewayPaymentStatusNoPaymentNeeded:
			return domain.OrderStatusPaid, true
		}
		return "", false
	case domain.GatewayEventAsyncPaymentSucceeded:
		return domain.OrderStatusPaid, true
	case domain.GatewayEventCheckoutExpired, domain.GatewayEventAsyncPaymentFailed:
		return domain.OrderStatusCancelled, true
	default:
		return "", false
	}
}

// claimDelivery регистрирует доставку. false означает, что событие уже обработано.
// Упавшая или брошенная дольше lease доставка переоткрывается; живая параллельная
// обработка → domain.ErrDeliveryInProgress, чтобы провайдер повторил позже.
func (h *Handler) claimDelivery(ctx context.Context, event domain.GatewayEvent, rawBody []byte) (bool, error) {
	if h.deliveries == nil {
		return true, nil
	}

	sum := sha256.Sum256(rawBody)
	existing, err := h.deliveries.CreateProcessing(ctx, event.ID, event.Type, hex.EncodeToString(sum[:]), h.now().Add(h.deliveryTTL))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		if existing.Status == domain.IdempotencyStatusDone {
			return false, nil
		}
		reopenErr := h.deliveries.Reopen(ctx, event.ID, h.now().Add(-h.processingLease))
		if errors.Is(reopenErr, domain.ErrIdempotencyKeyAlreadyExists) {
			current, getErr := h.deliveries.Get(ctx, event.ID)
			if getErr == nil && current.Status == domain.IdempotencyStatusDone {
				return false, nil
			}
			return false, domain.ErrDeliveryInProgress
		}
		if reopenErr != nil {
			return false, fmt.Errorf("reopen delivery: %w", reopenErr)
		}
		return true, nil
	default:
		return false, fmt.Errorf("register delivery: %w", err)
	}
}

// completeDelivery и releaseDelivery пишут итог и после отмены запроса,
// иначе запись останется processing.
func (h *Handler) completeDelivery(ctx context.Context, eventID string, logger *log.Entry) {
	if h.deliveries == nil {
		return
	}
	if err := h.deliveries.MarkDone(context.WithoutCancel(ctx), eventID); err != nil {
		logger.WithError(err).Warn("mark delivery done failed")
	}
}

func (h *Handler) releaseDelivery(ctx context.Context, eventID string, logger *log.Entry) {
	if h.deliveries == nil {
		return
	}
	if err := h.deliveries.MarkFailed(context.WithoutCancel(ctx), eventID); err != nil {
		logger.WithError(err).Warn("mark delivery failed failed")
	}
}

// apply переводит заказ в целевой статус, если он ещё pending.
func (h *Handler) apply(ctx context.Context, event domain.GatewayEvent, target domain.OrderStatus, logger *log.Entry) (Outcome, error) {
	orderID := event.OrderID
	if orderID == "" {
		resolved, err := h.gateway.ResolveOrderID(ctx, event.SessionID)
		if err != nil {
			logger.WithError(err).Warn("order id could not be resolved from session")
			return OutcomeIgnored, nil
		}
		orderID = resolved
	}
	logger = logger.WithField("order_id", orderID)

	order, err := h.orders.Get(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		logger.Warn("webhook references unknown order")
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("load order: %w", err)
	}

	if outcome, done := guard(order.Status, target, logger); done {
		return outcome, nil
	}

	err = h.orders.UpdateStatus(ctx, order.ID, order.Status, target)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrOrderStatusConflict):
		current, getErr := h.orders.Get(ctx, order.ID)
		if getErr != nil {
			return "", fmt.Errorf("reload order after conflict: %w", getErr)
		}
		outcome, _ := guard(current.Status, target, logger)
		return outcome, nil
	case errors.Is(err, domain.ErrOrderNotFound):
		return OutcomeIgnored, nil
	default:
		return "", fmt.Errorf("update order status: %w", err)
	}

	logger.WithFields(log.Fields{
		"from": order.Status,
		"to":   target,
	}).Info("order status updated from webhook")

	order.Status = target
	h.emitStatusEvent(ctx, order, event, logger)
	return OutcomeApplied, nil
}

// guard сообщает, что переход не нужен: заказ уже в целевом статусе
// или в другом конечном статусе.
func guard(current, target domain.OrderStatus, logger *log.Entry) (Outcome, bool) {
	if current == target {
		return OutcomeDuplicate, true
	}
	if !domain.CanTransition(current, target) {
		logger.WithFields(log.Fields{
			"status": current,
			"target": target,
		}).Warn("webhook transition skipped for order in final status")
		return OutcomeIgnored, true
	}
	return "", false
}

func (h *Handler) emitStatusEvent(ctx context.Context, order domain.Order, event domain.GatewayEvent, logger *log.Entry) {
	if h.outbox == nil {
		return
	}

	eventType := domain.OutboxEventOrderPaid
	if order.Status == domain.OrderStatusCancelled {
		eventType = domain.OutboxEventOrderCancel
	}

	payload, err := json.Marshal(map[string]interface{}{
		"order_id":        order.ID,
		"user_id":         order.UserID,
		"status":          string(order.Status),
		"total_minor":     order.TotalMinor,
		"gateway_event":   event.ID,
		"gateway_session": event.SessionID,
		"ts":              h.now().Format(time.RFC3339Nano),
	})
	if err != nil {
		logger.WithError(err).Error("marshal status event failed")
		return
	}

	if _, err := h.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.OutboxAggregateOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		logger.WithError(err).Error("enqueue status event failed")
	}
}
