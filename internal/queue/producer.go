package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer 封装 Kafka 写入器。
type Producer struct {
	w *kafka.Writer
}

// NewProducer 创建生产者：
// - Hash + Key(order_id): 同一订单的事件落在同一分区，保持先后顺序。
// - RequireAll: 等待 ISR 副本确认。
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *Producer) Close() error { return p.w.Close() }

// Publish 同步写入一条订单事件。
func (p *Producer) Publish(ctx context.Context, msg OrderEventMessage) error {
	m, err := encodeKafkaMessage(msg)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, m)
}

func encodeKafkaMessage(msg OrderEventMessage) (kafka.Message, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   orderKey(msg.OrderID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(msg.EventID)},
			{Key: "type", Value: []byte(msg.Type)},
		},
	}, nil
}
