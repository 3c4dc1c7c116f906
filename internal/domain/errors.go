package domain

import "errors"

var (
	// ErrInvalidCart — корзина пустая или содержит некорректные позиции.
	ErrInvalidCart = errors.New("invalid cart")
	// ErrInvalidZipcode — почтовый индекс не прошёл проверку формата.
	ErrInvalidZipcode = errors.New("invalid zip code")
	// ErrItemQtyInvalid — количество товара в позиции должно быть > 0.
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// ErrItemPriceInvalid — цена позиции не может быть отрицательной.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// ErrUserRequired — у заказа должен быть владелец.
	ErrUserRequired = errors.New("user_id is required")
	// ErrTotalMismatch — итог заказа не совпадает с суммой позиций и доставки.
	ErrTotalMismatch = errors.New("order total does not match items sum plus shipping")
	// ErrShippingNegative — стоимость доставки отрицательная.
	ErrShippingNegative = errors.New("shipping cost must be non-negative")

	// ErrUnauthorized — токен отсутствует или не принадлежит ни одному пользователю.
	ErrUnauthorized = errors.New("access denied")
	// ErrInvalidCredentials — неверная пара email/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordTooLong — пароль длиннее 72 байт, bcrypt такой не примет.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrEmailTaken — пользователь с таким email уже зарегистрирован.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUserNotFound возвращается хранилищем пользователей.
	ErrUserNotFound = errors.New("user not found")

	// ErrAddressNotFound — адрес не найден у данного пользователя.
	ErrAddressNotFound = errors.New("address not found")
	// ErrInvalidAddress — адрес для оформления заказа не принадлежит покупателю.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrCategoryNotFound возвращается, если категория не найдена.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists — заказ с таким ID уже сохранён.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOrderStatusConflict — текущий статус заказа отличается от ожидаемого при обновлении.
	ErrOrderStatusConflict = errors.New("order status conflict")
	// ErrInvalidStatusTransition — переход между статусами запрещён.
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	// ErrPersistence — хранилище отклонило запись.
	ErrPersistence = errors.New("persistence error")

	// ErrPaymentLink — платёжный провайдер не вернул пригодную ссылку.
	ErrPaymentLink = errors.New("payment url could not be created")
	// ErrSessionUnresolved — по сессии оплаты не удалось определить заказ.
	ErrSessionUnresolved = errors.New("payment session could not be resolved")
	// ErrInvalidSignature — уведомление провайдера не прошло проверку подписи.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой идентификатор доставки.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyKeyAlreadyExists — доставка с этим идентификатором уже зарегистрирована.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound — запись о доставке не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrDeliveryInProgress — та же доставка сейчас обрабатывается; провайдер должен повторить позже.
	ErrDeliveryInProgress = errors.New("webhook delivery is being processed")
)

// IsNotFound сообщает, относится ли ошибка к отсутствующей сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrAddressNotFound) ||
		errors.Is(err, ErrUserNotFound)
}
