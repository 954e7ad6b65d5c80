package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	consumerRetryBase = 200 * time.Millisecond
	consumerRetryMax  = 10 * time.Second
)

// messageReader 是 Consumer 用到的 *kafka.Reader 子集。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 把 Kafka 中的订单事件落到 order_events 审计表。
type Consumer struct {
	r   messageReader
	db  *gorm.DB
	log *zap.Logger

	// store 默认为 handle
	store        func(ctx context.Context, value []byte) error
	retryBase    time.Duration
	retryMaxWait time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, db *gorm.DB, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		db:           db,
		log:          log.Named("consumer"),
		retryBase:    consumerRetryBase,
		retryMaxWait: consumerRetryMax,
	}
	c.store = c.handle
	return c
}

func (c *Consumer) Close() error { return c.r.Close() }

// Run 拉取 → 落库 → 提交 offset。
//
// 提交 offset N 会隐式确认 N 之前的所有消息，所以落库失败时不能跳过，
// 只能原地退避重试同一条，直到成功或 ctx 结束；ctx 结束时不提交，重启后重新消费。
// 脏消息无法重试成功，记录后直接提交。
func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Error("fetch message", zap.Error(err))
			}
			return
		}

		if !c.storeWithRetry(ctx, m) {
			return
		}
		if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Warn("commit offset", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// storeWithRetry 返回 false 表示 ctx 已结束且消息未处理完。
func (c *Consumer) storeWithRetry(ctx context.Context, m kafka.Message) bool {
	wait := c.retryBase
	for attempt := 1; ; attempt++ {
		err := c.store(ctx, m.Value)
		if err == nil {
			return true
		}
		var bad *malformedError
		if errors.As(err, &bad) {
			c.log.Warn("skip malformed event", zap.Int64("offset", m.Offset), zap.Error(err))
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.log.Error("store order event",
			zap.Int64("offset", m.Offset), zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait), zap.Error(err))
		sleep(ctx, wait)
		if ctx.Err() != nil {
			return false
		}
		wait *= 2
		if wait > c.retryMaxWait {
			wait = c.retryMaxWait
		}
	}
}

type malformedError struct{ err error }

func (e *malformedError) Error() string { return "malformed event: " + e.err.Error() }
func (e *malformedError) Unwrap() error { return e.err }

// handle 解码并写入一条事件；event_id 重复视为已处理。
func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var msg OrderEventMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return &malformedError{err: err}
	}
	if err := msg.Validate(); err != nil {
		return &malformedError{err: err}
	}

	err := c.db.WithContext(ctx).Create(msg.ToModel()).Error
	if err != nil {
		if errorsLikeUnique(err) {
			c.log.Debug("duplicate event", zap.String("event_id", msg.EventID))
			return nil
		}
		return fmt.Errorf("insert event %s: %w", msg.EventID, err)
	}
	return nil
}

func errorsLikeUnique(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique") || strings.Contains(s, "duplicate key")
}
