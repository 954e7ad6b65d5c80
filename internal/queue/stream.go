package queue

import (
	"context"

	rd "github.com/redis/go-redis/v9"
)

// StreamPublisher 把订单事件 XADD 到 Redis Stream，由 Relay 异步转发 Kafka。
// 调用方在数据库事务提交之后再调用。
type StreamPublisher struct {
	rdb    *rd.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(rdb *rd.Client, stream string) *StreamPublisher {
	return &StreamPublisher{rdb: rdb, stream: stream, maxLen: 100000}
}

func (p *StreamPublisher) Publish(ctx context.Context, msg OrderEventMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return p.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: msg.streamValues(),
	}).Err()
}
