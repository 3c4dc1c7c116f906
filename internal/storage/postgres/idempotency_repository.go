package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// webhookDeliveryRepository хранит доставки webhook-событий в таблице webhook_deliveries.
type webhookDeliveryRepository struct {
	db *sql.DB
}

// NewIdempotencyRepository создаёт PostgreSQL-реализацию IdempotencyRepository.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &webhookDeliveryRepository{db: store.DB()}
}

func (r *webhookDeliveryRepository) CreateProcessing(ctx context.Context, key, eventType, payloadHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	now := time.Now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(72 * time.Hour)
	}

	insertCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(insertCtx, `
		INSERT INTO webhook_deliveries (event_id, event_type, payload_hash, status, ttl_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (event_id) DO NOTHING
	`, key, eventType, payloadHash, string(domain.IdempotencyStatusProcessing), ttlAt, now)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("create webhook delivery: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("webhook delivery rows affected: %w", err)
	}
	if affected == 0 {
		existing, getErr := r.Get(ctx, key)
		if getErr != nil {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}

	return domain.IdempotencyRecord{
		Key:         key,
		EventType:   eventType,
		PayloadHash: payloadHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (r *webhookDeliveryRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		record    domain.IdempotencyRecord
		statusRaw string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT event_id, event_type, payload_hash, status, ttl_at, created_at, updated_at
		FROM webhook_deliveries
		WHERE event_id = $1
	`, key).Scan(
		&record.Key,
		&record.EventType,
		&record.PayloadHash,
		&statusRaw,
		&record.TTLAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("get webhook delivery: %w", err)
	}

	record.Status = domain.IdempotencyStatus(statusRaw)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid webhook delivery status %q for event %s", statusRaw, key)
	}
	return record, nil
}

// Reopen атомарно забирает failed- или зависшую processing-доставку на повторную обработку.
// updated_at обновляется, поэтому из параллельных повторов выигрывает один.
func (r *webhookDeliveryRepository) Reopen(ctx context.Context, key string, staleBefore time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	updateCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(updateCtx, `
		UPDATE webhook_deliveries
		SET status = $1, updated_at = $2
		WHERE event_id = $3
		  AND (status = $4 OR (status = $1 AND updated_at < $5))
	`, string(domain.IdempotencyStatusProcessing), time.Now().UTC(), key, string(domain.IdempotencyStatusFailed), staleBefore.UTC())
	if err != nil {
		return fmt.Errorf("reopen webhook delivery: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("webhook delivery rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	if _, err := r.Get(ctx, key); err != nil {
		return err
	}
	return domain.ErrIdempotencyKeyAlreadyExists
}

func (r *webhookDeliveryRepository) MarkDone(ctx context.Context, key string) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusDone)
}

func (r *webhookDeliveryRepository) MarkFailed(ctx context.Context, key string) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusFailed)
}

func (r *webhookDeliveryRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		res sql.Result
		err error
	)
	if limit > 0 {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM webhook_deliveries
			WHERE event_id IN (
				SELECT event_id
				FROM webhook_deliveries
				WHERE ttl_at <= $1
				ORDER BY ttl_at ASC
				LIMIT $2
			)
		`, before, limit)
	} else {
		res, err = r.db.ExecContext(ctx, `DELETE FROM webhook_deliveries WHERE ttl_at <= $1`, before)
	}
	if err != nil {
		return 0, fmt.Errorf("delete expired webhook deliveries: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("webhook delivery rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *webhookDeliveryRepository) markStatus(ctx context.Context, key string, status domain.IdempotencyStatus) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = $1, updated_at = $2
		WHERE event_id = $3
	`, string(status), time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("mark webhook delivery %s: %w", status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("webhook delivery rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

var _ domain.IdempotencyRepository = (*webhookDeliveryRepository)(nil)
