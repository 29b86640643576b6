package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/rookgm/paywatch/internal/models"
)

const (
	EventOrderSettled = "order.settled"
	EventOrderCreated = "order.created"
	eventVersion      = 1
)

// Envelope wraps event payload published to Kafka
type Envelope struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	EventVersion int       `json:"event_version"`
	Timestamp    time.Time `json:"timestamp"`
	Payload      any       `json:"payload"`
}

type orderCreatedPayload struct {
	OrderCode      string `json:"order_code"`
	UserID         int64  `json:"user_id"`
	Product        string `json:"product"`
	FiatPrice      string `json:"fiat_price"`
	Asset          string `json:"asset,omitempty"`
	RequiredAmount string `json:"required_amount,omitempty"`
	Address        string `json:"address,omitempty"`
}

// KafkaSink publishes events to Kafka topic keyed by order code
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaProducer creates idempotent synchronous producer
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_7_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// NewKafkaSink creates new KafkaSink instance
func NewKafkaSink(producer sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (k *KafkaSink) NotifySettlement(ctx context.Context, s models.Settlement) error {
	return k.publish(ctx, s.OrderCode, Envelope{
		EventID:      s.EventID,
		EventType:    EventOrderSettled,
		EventVersion: eventVersion,
		Timestamp:    s.SettledAt.UTC(),
		Payload:      s,
	})
}

func (k *KafkaSink) NotifyNewOrder(ctx context.Context, order models.Order) error {
	payload := orderCreatedPayload{
		OrderCode: order.Code,
		UserID:    order.UserID,
		Product:   order.ProductLabel,
		FiatPrice: order.FiatPrice.StringFixed(2),
	}
	if order.HasAsset() {
		payload.Asset = order.Asset.String()
		payload.RequiredAmount = order.RequiredAmount.String()
		payload.Address = *order.ReceiveAddress
	}

	return k.publish(ctx, order.Code, Envelope{
		EventID:      uuid.NewString(),
		EventType:    EventOrderCreated,
		EventVersion: eventVersion,
		Timestamp:    time.Now().UTC(),
		Payload:      payload,
	})
}

// Close closes underlying producer
func (k *KafkaSink) Close() error {
	return k.producer.Close()
}

func (k *KafkaSink) publish(ctx context.Context, key string, env Envelope) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal kafka payload: %w", err)
	}

	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", env.EventType, err)
	}
	return nil
}
