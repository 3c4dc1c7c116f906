package domain

import "time"

// IdempotencyStatus описывает жизненный цикл записи о доставке webhook-события.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing означает, что событие принято и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone означает, что событие обработано, повторная доставка игнорируется.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed означает, что обработка упала; повторная доставка обработает событие заново.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord хранит факт доставки события провайдера по его идентификатору.
type IdempotencyRecord struct {
	Key         string
	EventType   string
	PayloadHash string
	Status      IdempotencyStatus
	TTLAt       time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Reclaimable сообщает, можно ли забрать запись на повторную обработку:
// failed всегда, processing только если она не обновлялась с staleBefore.
// Done не переоткрывается никогда.
func (r IdempotencyRecord) Reclaimable(staleBefore time.Time) bool {
	switch r.Status {
	case IdempotencyStatusFailed:
		return true
	case IdempotencyStatusProcessing:
		return !staleBefore.IsZero() && r.UpdatedAt.Before(staleBefore)
	default:
		return false
	}
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}
