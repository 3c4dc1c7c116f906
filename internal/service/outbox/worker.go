package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
	defaultMaxAttempts  = 3
	defaultBackoffBase  = 50 * time.Millisecond
	defaultBackoffMax   = 2 * time.Second
)

// Результаты попыток публикации для метрики.
const (
	resultSent       = "sent"
	resultRetry      = "retry_error"
	resultFailed     = "failed"
	resultDeadLetter = "dead_letter"
	resultDLQFailed  = "dlq_failed"
)

type settings struct {
	logger       *log.Entry
	deadLetter   domain.OutboxPublisher
	metrics      *metrics.OutboxMetrics
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	backoffBase  time.Duration
	backoffMax   time.Duration
}

// Option настраивает Worker.
type Option func(*settings)

func WithLogger(logger *log.Entry) Option {
	return func(s *settings) { s.logger = logger }
}

// WithDeadLetter задаёт publisher для сообщений, исчерпавших попытки.
func WithDeadLetter(publisher domain.OutboxPublisher) Option {
	return func(s *settings) { s.deadLetter = publisher }
}

func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(s *settings) { s.metrics = m }
}

func WithPollInterval(interval time.Duration) Option {
	return func(s *settings) { s.pollInterval = interval }
}

func WithBatchSize(n int) Option {
	return func(s *settings) { s.batchSize = n }
}

func WithMaxAttempts(n int) Option {
	return func(s *settings) { s.maxAttempts = n }
}

// WithBackoff задаёт экспоненциальную задержку между попытками: base, 2*base, ... не больше maxDelay.
// base == 0 отключает задержку.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(s *settings) {
		s.backoffBase = base
		s.backoffMax = maxDelay
	}
}

// Worker доставляет pending-сообщения outbox в брокер.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	cfg       settings
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	cfg := settings{
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		backoffBase:  defaultBackoffBase,
		backoffMax:   defaultBackoffMax,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.logger == nil {
		cfg.logger = log.WithField("component", "outbox-worker")
	}
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = defaultPollInterval
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = defaultBatchSize
	}
	if cfg.maxAttempts <= 0 {
		cfg.maxAttempts = defaultMaxAttempts
	}
	if cfg.backoffBase < 0 {
		cfg.backoffBase = 0
	}
	if cfg.backoffMax < cfg.backoffBase {
		cfg.backoffMax = cfg.backoffBase
	}

	return &Worker{repo: repo, publisher: publisher, cfg: cfg}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.cfg.logger.Warn("outbox worker disabled: repository or publisher missing")
		return
	}

	ticker := time.NewTicker(w.cfg.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce публикует одну порцию сообщений и возвращает число отправленных и проваленных.
func (w *Worker) ProcessOnce(ctx context.Context) (sent, failed int) {
	if ctx.Err() != nil {
		return 0, 0
	}
	defer w.refreshBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.cfg.batchSize)
	if err != nil {
		w.cfg.logger.WithError(err).Warn("pull pending outbox messages failed")
		return 0, 0
	}

	for _, msg := range batch {
		if ctx.Err() != nil {
			return sent, failed
		}
		logger := w.cfg.logger.WithFields(log.Fields{
			"outbox_id":  msg.ID,
			"event_type": msg.EventType,
		})

		if err := w.publish(ctx, msg); err != nil {
			if ctx.Err() != nil {
				// сообщение остаётся pending и будет отправлено после рестарта
				return sent, failed
			}
			failed++
			logger.WithError(err).Error("outbox message dropped after retries")
			w.cfg.metrics.RecordAttempt(resultFailed)
			w.deadLetterMessage(ctx, msg, err, logger)
			if markErr := w.repo.MarkFailed(ctx, msg.ID); markErr != nil {
				logger.WithError(markErr).Warn("mark outbox message failed")
			}
			continue
		}

		sent++
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			logger.WithError(err).Warn("mark outbox message sent failed")
		}
	}
	return sent, failed
}

func (w *Worker) publish(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.maxAttempts; attempt++ {
		lastErr = w.publisher.Publish(ctx, msg)
		if lastErr == nil {
			w.cfg.metrics.RecordAttempt(resultSent)
			return nil
		}
		w.cfg.metrics.RecordAttempt(resultRetry)

		if attempt == w.cfg.maxAttempts {
			break
		}
		if delay := w.backoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", w.cfg.maxAttempts, lastErr)
}

// backoff возвращает задержку перед попыткой attempt+1.
func (w *Worker) backoff(attempt int) time.Duration {
	delay := w.cfg.backoffBase
	for i := 1; i < attempt && delay < w.cfg.backoffMax; i++ {
		delay *= 2
	}
	return min(delay, w.cfg.backoffMax)
}

func (w *Worker) deadLetterMessage(ctx context.Context, msg domain.OutboxMessage, cause error, logger *log.Entry) {
	if w.cfg.deadLetter == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"outbox_id":     msg.ID,
		"event_type":    msg.EventType,
		"payload":       json.RawMessage(nonEmpty(msg.Payload)),
		"publish_error": cause.Error(),
		"failed_at":     time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		logger.WithError(err).Warn("marshal dead letter failed")
		w.cfg.metrics.RecordAttempt(resultDLQFailed)
		return
	}

	dead := msg
	dead.Payload = payload
	if err := w.cfg.deadLetter.Publish(ctx, dead); err != nil {
		logger.WithError(err).Warn("dead letter publish failed")
		w.cfg.metrics.RecordAttempt(resultDLQFailed)
		return
	}
	w.cfg.metrics.RecordAttempt(resultDeadLetter)
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	if w.cfg.metrics == nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.cfg.logger.WithError(err).Debug("outbox stats unavailable")
		return
	}
	w.cfg.metrics.SetBacklog(stats.PendingCount, stats.OldestPendingAt)
}

func nonEmpty(payload []byte) []byte {
	if len(payload) == 0 {
		return []byte("null")
	}
	return payload
}
