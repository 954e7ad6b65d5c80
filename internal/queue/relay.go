package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"order_track/internal/model"

	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventSink 是 Relay 的下游，通常为 *Producer。
type EventSink interface {
	Publish(ctx context.Context, msg OrderEventMessage) error
}

// Relay 将 Redis Stream 事件异步转发到 Kafka。
// 发布成功后才 ACK Stream，失败则保留消息等待重试。
type Relay struct {
	rdb  *rd.Client
	sink EventSink
	log  *zap.Logger

	stream   string
	group    string
	consumer string

	// ack 默认为 ackAndDelete
	ack func(ctx context.Context, id string) error
}

func NewRelay(rdb *rd.Client, sink EventSink, stream, group, consumer string, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Relay{
		rdb:      rdb,
		sink:     sink,
		log:      log.Named("relay"),
		stream:   stream,
		group:    group,
		consumer: consumer,
	}
	r.ack = r.ackAndDelete
	return r
}

func (r *Relay) Run(ctx context.Context) {
	if err := r.ensureGroup(ctx); err != nil {
		r.log.Error("ensure consumer group", zap.String("stream", r.stream), zap.Error(err))
		return
	}
	r.log.Info("relay started", zap.String("stream", r.stream), zap.String("group", r.group))

	for {
		if ctx.Err() != nil {
			return
		}

		// 先处理本消费者的历史 pending
		msgs, err := r.readGroup(ctx, "0", 0)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			r.log.Warn("read pending", zap.Error(err))
			sleep(ctx, 300*time.Millisecond)
			continue
		}
		if len(msgs) == 0 {
			msgs, err = r.readGroup(ctx, ">", 2*time.Second)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				r.log.Warn("read new", zap.Error(err))
				sleep(ctx, 300*time.Millisecond)
				continue
			}
		}

		for _, xm := range msgs {
			if err := r.processOne(ctx, xm); err != nil {
				r.log.Warn("relay message", zap.String("id", xm.ID), zap.Error(err))
				sleep(ctx, 200*time.Millisecond)
				break
			}
		}
	}
}

func (r *Relay) ensureGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err == nil || strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (r *Relay) readGroup(ctx context.Context, streamID string, block time.Duration) ([]rd.XMessage, error) {
	streams, err := r.rdb.XReadGroup(ctx, &rd.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, streamID},
		Count:    16,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out []rd.XMessage
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func (r *Relay) processOne(ctx context.Context, xm rd.XMessage) error {
	msg, err := parseOrderEvent(xm.Values)
	if err != nil {
		// 脏消息直接 ACK 丢弃
		r.log.Warn("drop malformed event", zap.String("id", xm.ID), zap.Error(err))
		if ackErr := r.ack(ctx, xm.ID); ackErr != nil {
			return fmt.Errorf("parse failed: %v, ack failed: %w", err, ackErr)
		}
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.sink.Publish(pubCtx, msg); err != nil {
		return err
	}
	return r.ack(ctx, xm.ID)
}

func (r *Relay) ackAndDelete(ctx context.Context, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.XAck(ctx, r.stream, r.group, id)
	pipe.XDel(ctx, r.stream, id)
	_, err := pipe.Exec(ctx)
	return err
}

func parseOrderEvent(values map[string]any) (OrderEventMessage, error) {
	var (
		msg OrderEventMessage
		s   string
		err error
	)
	if msg.EventID, err = getStreamString(values, "event_id"); err != nil {
		return OrderEventMessage{}, err
	}
	if s, err = getStreamString(values, "type"); err != nil {
		return OrderEventMessage{}, err
	}
	msg.Type = model.OrderEventType(s)
	if msg.CustomerName, err = getStreamString(values, "customer_name"); err != nil {
		return OrderEventMessage{}, err
	}

	orderID, err := getStreamUint(values, "order_id")
	if err != nil {
		return OrderEventMessage{}, err
	}
	productID, err := getStreamUint(values, "product_id")
	if err != nil {
		return OrderEventMessage{}, err
	}
	msg.OrderID, msg.ProductID = uint(orderID), uint(productID)

	if msg.Quantity, err = getStreamInt(values, "quantity"); err != nil {
		return OrderEventMessage{}, err
	}
	if msg.StockDelta, err = getStreamInt(values, "stock_delta"); err != nil {
		return OrderEventMessage{}, err
	}

	if s, err = getStreamString(values, "occurred_at"); err != nil {
		return OrderEventMessage{}, err
	}
	if msg.OccurredAt, err = time.Parse(time.RFC3339Nano, s); err != nil {
		return OrderEventMessage{}, fmt.Errorf("invalid occurred_at %q", s)
	}

	if err := msg.Validate(); err != nil {
		return OrderEventMessage{}, err
	}
	return msg, nil
}

func getStreamUint(values map[string]any, key string) (uint64, error) {
	s, err := getStreamString(values, key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return v, nil
}

func getStreamInt(values map[string]any, key string) (int64, error) {
	s, err := getStreamString(values, key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return v, nil
}

func getStreamString(values map[string]any, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}

func orderKey(orderID uint) []byte {
	return []byte(strconv.FormatUint(uint64(orderID), 10))
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
