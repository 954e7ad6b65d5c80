package model

import "time"

// Order 客户订单。硬删除：删除时必须把数量回补到库存，且只回补一次。
type Order struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProductID    uint      `gorm:"not null;index" json:"product_id"`
	CustomerName string    `gorm:"size:255;not null;index" json:"customer_name"`
	Quantity     int64     `gorm:"not null;check:quantity > 0" json:"quantity"`
	OrderDate    time.Time `gorm:"not null" json:"order_date"`
}

// 显式实现结构，确定表名
func (Order) TableName() string { return "orders" }
