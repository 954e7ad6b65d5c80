package queue

import (
	"fmt"
	"strconv"
	"time"

	"order_track/internal/model"
)

// OrderEventMessage 是订单对账成功后写入 Stream / Kafka 的事件。
type OrderEventMessage struct {
	EventID      string               `json:"event_id"`
	Type         model.OrderEventType `json:"type"`
	OrderID      uint                 `json:"order_id"`
	ProductID    uint                 `json:"product_id"`
	CustomerName string               `json:"customer_name"`
	Quantity     int64                `json:"quantity"`
	StockDelta   int64                `json:"stock_delta"` // 负数表示扣减库存
	OccurredAt   time.Time            `json:"occurred_at"`
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (m OrderEventMessage) Validate() error {
	if m.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	switch m.Type {
	case model.OrderEventCreated, model.OrderEventUpdated, model.OrderEventDeleted:
	default:
		return fmt.Errorf("unknown event type %q", m.Type)
	}
	if m.OrderID == 0 {
		return fmt.Errorf("order_id is required")
	}
	if m.ProductID == 0 {
		return fmt.Errorf("product_id is required")
	}
	if m.Quantity < 0 {
		return fmt.Errorf("quantity must be >= 0")
	}
	if m.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	return nil
}

// ToModel 转为审计表记录。
func (m OrderEventMessage) ToModel() *model.OrderEvent {
	return &model.OrderEvent{
		EventID:      m.EventID,
		Type:         m.Type,
		OrderID:      m.OrderID,
		ProductID:    m.ProductID,
		CustomerName: m.CustomerName,
		Quantity:     m.Quantity,
		StockDelta:   m.StockDelta,
		OccurredAt:   m.OccurredAt,
	}
}

// streamValues 编码为 Redis Stream 字段，数值统一转字符串。
func (m OrderEventMessage) streamValues() map[string]any {
	return map[string]any{
		"event_id":      m.EventID,
		"type":          string(m.Type),
		"order_id":      strconv.FormatUint(uint64(m.OrderID), 10),
		"product_id":    strconv.FormatUint(uint64(m.ProductID), 10),
		"customer_name": m.CustomerName,
		"quantity":      strconv.FormatInt(m.Quantity, 10),
		"stock_delta":   strconv.FormatInt(m.StockDelta, 10),
		"occurred_at":   m.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}
