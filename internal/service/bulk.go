package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"order_track/internal/apperr"
	"order_track/internal/model"
	"order_track/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxBulkLines         = 500
	maxIdempotencyKeyLen = 128
	minPendingTTL        = 30 * time.Second
)

// BulkResult 批量下单结果；Replayed 表示命中幂等键，直接返回了之前的结果。
type BulkResult struct {
	Orders   []model.Order `json:"orders"`
	Replayed bool          `json:"replayed"`
}

// CreateBulkOrders 在一个事务里按顺序执行所有下单行，全部成功才提交。
//
// 同一批次里对同一商品的多行是累计扣减的（后一行能看到前一行的扣减），
// 任一行失败整批回滚，返回 TransactionFailure，并包裹具体原因（NotFound / InsufficientStock）。
// idempotencyKey 为空时不做幂等保护。
func (s *OrderService) CreateBulkOrders(ctx context.Context, lines []OrderLine, idempotencyKey string) (res *BulkResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "orders.bulk_create", attribute.Int("lines", len(lines)))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	if len(lines) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "order list cannot be empty")
	}
	if len(lines) > maxBulkLines {
		return nil, apperr.New(apperr.InvalidInput, "order list exceeds %d lines", maxBulkLines)
	}
	for i, l := range lines {
		if err := l.Validate(); err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, err, "line %d: %s", i+1, apperr.Message(err))
		}
	}

	key := strings.TrimSpace(idempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return nil, apperr.New(apperr.InvalidInput, "idempotency key must be at most %d characters", maxIdempotencyKeyLen)
	}
	if key != "" {
		state, acquired, err := s.idem.Begin(ctx, key, s.pendingTTL())
		if err != nil {
			return nil, internal(err, "reserve idempotency key")
		}
		if !acquired {
			return s.replay(ctx, key, state)
		}
	}

	orders := make([]model.Order, 0, len(lines))
	err = s.tx.run(ctx, func(tx *gorm.DB) error {
		orders = orders[:0]
		for i, l := range lines {
			o, err := s.placeLine(tx, l)
			if err != nil {
				var ae *apperr.Error
				if !errors.As(err, &ae) {
					// 可重试冲突交给 txRunner，其余非业务错误按 Internal 处理
					return err
				}
				return apperr.Wrap(apperr.TransactionFailure, err, "transaction failed at line %d: %s", i+1, apperr.Message(err))
			}
			orders = append(orders, *o)
		}
		return nil
	})
	if err != nil {
		if key != "" {
			if relErr := s.idem.Release(ctx, key); relErr != nil {
				s.log.Warn("release idempotency key failed", zap.String("key", key), zap.Error(relErr))
			}
		}
		s.log.Warn("bulk orders rolled back", zap.Int("lines", len(lines)), zap.Error(err))
		return nil, internal(err, "bulk create")
	}

	if key != "" {
		ids := make([]uint, len(orders))
		for i := range orders {
			ids[i] = orders[i].ID
		}
		if err := s.idem.Complete(ctx, key, ids, s.idemTTL); err != nil {
			// 订单已提交，仅记录；客户端重试会看到 pending 冲突而不会重复下单
			s.log.Error("complete idempotency key failed", zap.String("key", key), zap.Error(err))
		}
	}

	s.log.Info("bulk orders created", zap.Int("orders", len(orders)))
	for i := range orders {
		s.publish(ctx, model.OrderEventCreated, &orders[i], -orders[i].Quantity)
	}
	return &BulkResult{Orders: orders}, nil
}

// replay 处理已存在的幂等键。
func (s *OrderService) replay(ctx context.Context, key string, state IdempotencyState) (*BulkResult, error) {
	if state.Status != IdempotencySuccess {
		return nil, apperr.New(apperr.Conflict, "request with idempotency key %q is still in progress", key)
	}
	var orders []model.Order
	if len(state.OrderIDs) > 0 {
		if err := s.tx.db.WithContext(ctx).Where("id IN ?", state.OrderIDs).Order("id").Find(&orders).Error; err != nil {
			return nil, internal(err, "load replayed orders")
		}
	}
	s.log.Info("bulk orders replayed", zap.String("key", key), zap.Int("orders", len(orders)))
	return &BulkResult{Orders: orders, Replayed: true}, nil
}

// pendingTTL 占位的有效期只覆盖一次批量执行（含重试）；成功后 Complete 再换成长 TTL。
// 进程中途崩溃时，占位很快过期，客户端可以用同一个键重试。
func (s *OrderService) pendingTTL() time.Duration {
	d := s.tx.timeout*time.Duration(s.tx.maxRetries+1) + time.Duration(s.tx.maxRetries+1)*s.tx.backoff
	if d < minPendingTTL {
		d = minPendingTTL
	}
	return d
}
