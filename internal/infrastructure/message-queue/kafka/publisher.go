package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/dto"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const (
	EventCheckoutCompleted = "checkout_completed"
	EventPaymentFailed     = "payment_failed"
	EventDraftAbandoned    = "draft_abandoned"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Publisher struct {
	writer     MessageWriter
	maxRetries int
	backoff    time.Duration
}

func CreatePublisher(writer MessageWriter) *Publisher {
	return &Publisher{
		writer:     writer,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Publish writes one event keyed by key, retrying with a linear backoff.
func (p *Publisher) Publish(ctx context.Context, eventType string, key string, data interface{}) (err error) {
	jsonMsg, err := json.Marshal(dto.KafkaMessage{
		EventType: eventType,
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal Kafka message: %w", err)
	}

	for i := 0; i < p.maxRetries; i++ {
		err = p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(key),
			Value: jsonMsg,
		})
		if err == nil {
			return nil
		}

		log.Ctx(ctx).Warn().Err(err).Str("component", "Publish").Str("event_type", eventType).
			Msgf("failed to write Kafka message (attempt %d/%d)", i+1, p.maxRetries)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(i+1)):
		}
	}

	return fmt.Errorf("failed to write Kafka message after %d attempts: %w", p.maxRetries, err)
}
