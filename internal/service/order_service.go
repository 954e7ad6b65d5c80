// Package service 实现订单与库存的对账逻辑、报表、商品目录与账号。
package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"order_track/internal/apperr"
	"order_track/internal/model"
	"order_track/internal/queue"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCustomerNameLen = 255

// OrderOptions 订单服务参数。
type OrderOptions struct {
	TxTimeout      time.Duration
	MaxRetries     int
	IdempotencyTTL time.Duration
	Publisher      EventPublisher
	Idempotency    IdempotencyStore
	Logger         *zap.Logger
}

// OrderService 维护不变量：每个商品 stock >= 0，且 stock = 初始库存 - 现存订单数量之和。
// 所有对 stock 的写入都走本服务的事务路径。
type OrderService struct {
	tx      txRunner
	pub     EventPublisher
	idem    IdempotencyStore
	idemTTL time.Duration
	log     *zap.Logger
	now     func() time.Time
}

func NewOrderService(db *gorm.DB, opts OrderOptions) *OrderService {
	if opts.Publisher == nil {
		opts.Publisher = NopPublisher{}
	}
	if opts.Idempotency == nil {
		opts.Idempotency = NewMemoryIdempotencyStore()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	return &OrderService{
		tx: txRunner{
			db:         db,
			timeout:    opts.TxTimeout,
			maxRetries: opts.MaxRetries,
			backoff:    20 * time.Millisecond,
		},
		pub:     opts.Publisher,
		idem:    opts.Idempotency,
		idemTTL: opts.IdempotencyTTL,
		log:     opts.Logger.Named("orders"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OrderLine 是一条下单请求。
type OrderLine struct {
	ProductID    uint   `json:"product_id"`
	CustomerName string `json:"customer_name"`
	Quantity     int64  `json:"quantity"`
}

// Validate 在任何写入之前做入参校验。
func (l OrderLine) Validate() error {
	if l.ProductID == 0 {
		return apperr.New(apperr.InvalidInput, "product_id is required")
	}
	name := strings.TrimSpace(l.CustomerName)
	if name == "" {
		return apperr.New(apperr.InvalidInput, "customer_name is required")
	}
	if utf8.RuneCountInString(name) > maxCustomerNameLen {
		return apperr.New(apperr.InvalidInput, "customer_name must be at most %d characters", maxCustomerNameLen)
	}
	if l.Quantity <= 0 {
		return apperr.New(apperr.InvalidInput, "quantity must be > 0")
	}
	return nil
}

// CreateOrder 扣减库存并插入订单，二者在同一事务内提交。
func (s *OrderService) CreateOrder(ctx context.Context, line OrderLine) (*model.Order, error) {
	if err := line.Validate(); err != nil {
		return nil, err
	}

	var order *model.Order
	err := s.tx.run(ctx, func(tx *gorm.DB) error {
		o, err := s.placeLine(tx, line)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, internal(err, "create order")
	}

	s.log.Info("order created",
		zap.Uint("order_id", order.ID),
		zap.Uint("product_id", order.ProductID),
		zap.Int64("quantity", order.Quantity))
	s.publish(ctx, model.OrderEventCreated, order, -order.Quantity)
	return order, nil
}

// placeLine 在调用方事务内执行一条下单：条件扣减 + 插入。
func (s *OrderService) placeLine(tx *gorm.DB, line OrderLine) (*model.Order, error) {
	if err := debitStock(tx, line.ProductID, line.Quantity); err != nil {
		return nil, err
	}
	order := &model.Order{
		ProductID:    line.ProductID,
		CustomerName: strings.TrimSpace(line.CustomerName),
		Quantity:     line.Quantity,
		OrderDate:    s.now(),
	}
	if err := tx.Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateOrderQuantity 按差值调整库存：delta > 0 扣减，delta < 0 回补，delta == 0 不写库。
func (s *OrderService) UpdateOrderQuantity(ctx context.Context, orderID uint, newQuantity int64) (*model.Order, error) {
	if orderID == 0 {
		return nil, apperr.New(apperr.InvalidInput, "order_id is required")
	}
	if newQuantity <= 0 {
		return nil, apperr.New(apperr.InvalidInput, "quantity must be > 0")
	}

	var (
		order model.Order
		delta int64
	)
	err := s.tx.run(ctx, func(tx *gorm.DB) error {
		if err := findOrder(tx, orderID, &order); err != nil {
			return err
		}
		delta = newQuantity - order.Quantity
		if delta == 0 {
			return nil
		}

		// 乐观条件：数量仍是刚读到的值，否则说明被并发修改，整笔重试
		res := tx.Model(&model.Order{}).
			Where("id = ? AND quantity = ?", order.ID, order.Quantity).
			Update("quantity", newQuantity)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errConcurrentUpdate
		}

		if delta > 0 {
			if err := debitStock(tx, order.ProductID, delta); err != nil {
				return err
			}
		} else if err := creditStock(tx, order.ProductID, -delta); err != nil {
			return err
		}
		order.Quantity = newQuantity
		return nil
	})
	if err != nil {
		return nil, internal(err, "update order")
	}
	if delta == 0 {
		return &order, nil
	}

	s.log.Info("order quantity updated",
		zap.Uint("order_id", order.ID),
		zap.Uint("product_id", order.ProductID),
		zap.Int64("quantity", newQuantity),
		zap.Int64("delta", delta))
	s.publish(ctx, model.OrderEventUpdated, &order, -delta)
	return &order, nil
}

// DeleteOrder 删除订单并回补库存，二者同一事务提交。
func (s *OrderService) DeleteOrder(ctx context.Context, orderID uint) error {
	if orderID == 0 {
		return apperr.New(apperr.InvalidInput, "order_id is required")
	}

	var order model.Order
	err := s.tx.run(ctx, func(tx *gorm.DB) error {
		if err := findOrder(tx, orderID, &order); err != nil {
			return err
		}
		// 带数量条件删除，保证回补的正是被删除那一刻的数量
		res := tx.Where("id = ? AND quantity = ?", order.ID, order.Quantity).Delete(&model.Order{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errConcurrentUpdate
		}
		return creditStock(tx, order.ProductID, order.Quantity)
	})
	if err != nil {
		return internal(err, "delete order")
	}

	s.log.Info("order deleted",
		zap.Uint("order_id", order.ID),
		zap.Uint("product_id", order.ProductID),
		zap.Int64("quantity", order.Quantity))
	s.publish(ctx, model.OrderEventDeleted, &order, order.Quantity)
	return nil
}

// GetOrder 查询单个订单。
func (s *OrderService) GetOrder(ctx context.Context, orderID uint) (*model.Order, error) {
	var order model.Order
	if err := findOrder(s.tx.db.WithContext(ctx), orderID, &order); err != nil {
		return nil, internal(err, "get order")
	}
	return &order, nil
}

func findOrder(db *gorm.DB, orderID uint, out *model.Order) error {
	if err := db.First(out, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.NotFound, "order %d not found", orderID)
		}
		return err
	}
	return nil
}

// publish 提交后投递事件；失败只记日志。
func (s *OrderService) publish(ctx context.Context, typ model.OrderEventType, o *model.Order, stockDelta int64) {
	msg := queue.OrderEventMessage{
		EventID:      uuid.New().String(),
		Type:         typ,
		OrderID:      o.ID,
		ProductID:    o.ProductID,
		CustomerName: o.CustomerName,
		Quantity:     o.Quantity,
		StockDelta:   stockDelta,
		OccurredAt:   s.now(),
	}
	if err := s.pub.Publish(ctx, msg); err != nil {
		s.log.Warn("publish order event failed",
			zap.String("event_id", msg.EventID),
			zap.String("type", string(typ)),
			zap.Uint("order_id", o.ID),
			zap.Error(err))
	}
}
