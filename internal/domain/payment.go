package domain

// Типы событий Stripe Checkout, на которые реагирует обработчик уведомлений.
const (
	GatewayEventCheckoutCompleted       = "checkout.session.completed"
	GatewayEventAsyncPaymentSucceeded   = "checkout.session.async_payment_succeeded"
	GatewayEventAsyncPaymentFailed      = "checkout.session.async_payment_failed"
	GatewayEventCheckoutExpired         = "checkout.session.expired"
	GatewayPaymentStatusPaid            = "paid"
	GatewayPaymentStatusUnpaid          = "unpaid"
	GatewayPaymentStatusNoPaymentNeeded = "no_payment_required"
)

// GatewayEvent — проверенное уведомление платёжного провайдера.
type GatewayEvent struct {
	ID        string
	Type      string
	SessionID string
	// OrderID берётся из metadata сессии и может быть пустым.
	OrderID       string
	PaymentStatus string
}
