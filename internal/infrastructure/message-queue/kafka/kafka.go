package kafka

import (
	"time"

	"github.com/alimikegami/point-of-sales/checkout-service/config"
	"github.com/segmentio/kafka-go"
)

func CreateKafkaWriter(conf config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(conf.BrokerAddress),
		Topic:                  conf.BrokerTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

func CreateKafkaReader(conf config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{conf.BrokerAddress},
		Topic:       conf.LedgerTopic,
		GroupID:     conf.GroupID,
		MinBytes:    1e3, // 1KB
		MaxBytes:    1e6, // 1MB
		MaxWait:     100 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	})
}
