package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func loggerForTests() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

func headerValue(msg *sarama.ProducerMessage, name string) string {
	for _, h := range msg.Headers {
		if string(h.Key) == name {
			return string(h.Value)
		}
	}
	return ""
}

func TestOutboxPublisher_PublishesEnvelope(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "order-1" {
			return errors.New("unexpected key " + string(key))
		}
		if headerValue(msg, HeaderEventType) != domain.OutboxEventOrderPaid {
			return errors.New("event type header missing")
		}

		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		if env.ID != "outbox-1" || env.EventType != domain.OutboxEventOrderPaid || string(env.Payload) != `{"status":"paid"}` {
			return errors.New("unexpected envelope " + string(raw))
		}
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerWithClient(sp, loggerForTests()), "")
	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.OutboxAggregateOrder,
		AggregateID:   "order-1",
		EventType:     domain.OutboxEventOrderPaid,
		Payload:       []byte(`{"status":"paid"}`),
	})
	require.NoError(t, err)
	require.NoError(t, sp.Close())
}

func TestOutboxPublisher_KeyFallsBackToMessageID(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "outbox-2" {
			return errors.New("unexpected key " + string(key))
		}
		if msg.Topic != TopicDeadLetter {
			return errors.New("unexpected topic " + msg.Topic)
		}
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerWithClient(sp, loggerForTests()), TopicDeadLetter)
	require.NoError(t, publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-2"}))
	require.NoError(t, sp.Close())
}

func TestOutboxPublisher_ProducerError(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(NewProducerWithClient(sp, loggerForTests()), TopicOrderEvents)
	err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-3", AggregateID: "order-3"})
	require.ErrorIs(t, err, domain.ErrOutboxPublish)
	require.NoError(t, sp.Close())
}

func TestOutboxPublisher_NilProducer(t *testing.T) {
	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-4"})
	require.ErrorIs(t, err, domain.ErrOutboxPublish)
}

func TestProducer_CancelledContextSkipsSend(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	producer := NewProducerWithClient(sp, loggerForTests())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := producer.Send(ctx, TopicOrderEvents, "k", []byte("v"), nil)
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, producer.Close())
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(ProducerConfig{}, loggerForTests())
	require.Error(t, err)
}

func TestSaramaConfig(t *testing.T) {
	cfg := saramaConfig(ProducerConfig{ClientID: "shop", MaxRetries: 9})
	require.Equal(t, "shop", cfg.ClientID)
	require.Equal(t, 9, cfg.Producer.Retry.Max)
	require.True(t, cfg.Producer.Idempotent)
	require.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	require.NoError(t, cfg.Validate())
}
