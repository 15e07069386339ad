package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/dto"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const EventPointsChanged = "points_changed"

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ConsumeLedgerEvents hands every points_changed event to handle until ctx
// is cancelled. Messages that cannot be decoded are committed and skipped.
func ConsumeLedgerEvents(ctx context.Context, reader MessageReader, handle func(ctx context.Context, ev dto.PointLedgerEvent) error) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("component", "ConsumeLedgerEvents").Msg("")
			return err
		}

		var receivedMsg dto.KafkaMessage
		if err := json.Unmarshal(msg.Value, &receivedMsg); err != nil {
			log.Error().Err(err).Str("component", "ConsumeLedgerEvents").Msg("")
		} else if receivedMsg.EventType == EventPointsChanged {
			var ev dto.PointLedgerEvent
			dataBytes, err := json.Marshal(receivedMsg.Data)
			if err == nil {
				err = json.Unmarshal(dataBytes, &ev)
			}
			if err != nil {
				log.Error().Err(err).Str("component", "ConsumeLedgerEvents").Msg("")
			} else if err := handle(ctx, ev); err != nil {
				log.Warn().Err(err).Str("component", "ConsumeLedgerEvents").Int64("buyer_id", ev.BuyerID).Msg("")
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Str("component", "ConsumeLedgerEvents").Msg("")
		}
	}
}
