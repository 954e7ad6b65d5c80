package model

import "time"

// OrderEventType 订单对账事件类型。
type OrderEventType string

const (
	OrderEventCreated OrderEventType = "order.created"
	OrderEventUpdated OrderEventType = "order.updated"
	OrderEventDeleted OrderEventType = "order.deleted"
)

// OrderEvent 是 Kafka 消费端落库的审计记录，EventID 唯一保证重复消息幂等。
type OrderEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	EventID      string         `gorm:"size:64;uniqueIndex;not null" json:"event_id"`
	Type         OrderEventType `gorm:"size:32;not null;index" json:"type"`
	OrderID      uint           `gorm:"not null;index" json:"order_id"`
	ProductID    uint           `gorm:"not null;index" json:"product_id"`
	CustomerName string         `gorm:"size:255" json:"customer_name"`
	Quantity     int64          `gorm:"not null" json:"quantity"`
	// StockDelta 为本次事件对库存的影响，负数表示扣减。
	StockDelta int64     `gorm:"not null" json:"stock_delta"`
	OccurredAt time.Time `gorm:"not null" json:"occurred_at"`
}

func (OrderEvent) TableName() string { return "order_events" }
