package model

import "time"

// Product 商品目录：Stock 为可售库存，只能由订单对账路径修改。
type Product struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name      string `gorm:"size:255;not null" json:"name"`
	UnitPrice int64  `gorm:"not null;default:0" json:"unit_price"` // 单位：分
	Stock     int64  `gorm:"not null;default:0;check:stock >= 0" json:"stock"`

	Orders []Order `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Product) TableName() string { return "products" }
