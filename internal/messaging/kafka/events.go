package kafka

// Топики событий магазина.
const (
	TopicOrderEvents = "shop.order.events"
	// TopicDeadLetter принимает outbox-сообщения, которые не удалось опубликовать.
	TopicDeadLetter = "shop.order.events.dlq"
)

// Заголовки Kafka-сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
	HeaderPublishError  = "x-publish-error"
)
