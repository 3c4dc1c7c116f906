package domain

import (
	"context"
	"time"
)

// CatalogRepository — доступ только на чтение к каталогу.
type CatalogRepository interface {
	GetCategoryBySlug(ctx context.Context, slug string) (Category, error)
	GetCategory(ctx context.Context, id int64) (Category, error)
	ListCategoryMetadata(ctx context.Context, categoryID int64) ([]CategoryMetadata, error)
	// GetProduct возвращает товар с изображениями (по возрастанию id) или ErrProductNotFound.
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	ListRelatedProducts(ctx context.Context, productID int64, limit int) ([]Product, error)
	ListBanners(ctx context.Context) ([]Banner, error)
}

// UserRepository хранит пользователей, токены сессий и адреса.
type UserRepository interface {
	// CreateUser сохраняет пользователя; ErrEmailTaken, если email уже занят.
	CreateUser(ctx context.Context, user User) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	SetToken(ctx context.Context, userID int64, token string) error
	// GetUserIDByToken возвращает ErrUnauthorized для неизвестного токена.
	GetUserIDByToken(ctx context.Context, token string) (int64, error)

	CreateAddress(ctx context.Context, address Address) (Address, error)
	ListAddresses(ctx context.Context, userID int64) ([]Address, error)
	// GetAddress ищет адрес только среди адресов userID.
	GetAddress(ctx context.Context, userID, addressID int64) (Address, error)
	DeleteAddress(ctx context.Context, userID, addressID int64) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create атомарно сохраняет заказ вместе со всеми позициями.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми; limit<=0 снимает ограничение.
	ListByUser(ctx context.Context, userID int64, limit int) ([]Order, error)
	// UpdateStatus меняет статус, только если текущий равен from (ErrOrderStatusConflict иначе).
	UpdateStatus(ctx context.Context, id string, from, to OrderStatus) error
}

// PaymentGateway описывает взаимодействие с внешним платёжным провайдером.
type PaymentGateway interface {
	// CreateCheckoutLink создаёт сессию оплаты и возвращает URL для редиректа.
	// Любая ошибка сводится к ErrPaymentLink.
	CreateCheckoutLink(ctx context.Context, items []PricedItem, shippingMinor int64, orderID string) (string, error)
	// ResolveOrderID возвращает id заказа из metadata сессии или ErrSessionUnresolved.
	ResolveOrderID(ctx context.Context, sessionID string) (string, error)
	// VerifyWebhook проверяет подпись над сырыми байтами тела; любая ошибка приводит к ErrInvalidSignature.
	VerifyWebhook(payload []byte, signature string) (GatewayEvent, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	// PullPending возвращает до limit самых старых pending-сообщений.
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит записи о доставленных webhook-событиях.
type IdempotencyRepository interface {
	// CreateProcessing регистрирует доставку; ErrIdempotencyKeyAlreadyExists вместе с
	// существующей записью, если событие уже приходило.
	CreateProcessing(ctx context.Context, key, eventType, payloadHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	// Reopen забирает запись на повторную обработку: failed всегда, processing только
	// если она не обновлялась с staleBefore (обработчик упал, не завершив доставку).
	// Иначе ErrIdempotencyKeyAlreadyExists.
	Reopen(ctx context.Context, key string, staleBefore time.Time) error
	MarkDone(ctx context.Context, key string) error
	MarkFailed(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Названия outbox-событий заказа.
const (
	OutboxAggregateOrder    = "order"
	OutboxEventOrderCreated = "OrderCreated"
	OutboxEventOrderPaid    = "OrderPaid"
	OutboxEventOrderCancel  = "OrderCancelled"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
