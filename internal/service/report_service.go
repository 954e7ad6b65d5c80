package service

import (
	"context"
	"time"

	"order_track/internal/apperr"
	"order_track/internal/model"

	"gorm.io/gorm"
)

const (
	DefaultTopCustomers = 3
	maxTopCustomers     = 100
)

// ReportService 只读报表，不触碰库存。
type ReportService struct {
	db *gorm.DB
}

func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{db: db}
}

// OrderWithProduct 订单 + 商品信息。
type OrderWithProduct struct {
	OrderID      uint      `json:"order_id"`
	CustomerName string    `json:"customer_name"`
	Quantity     int64     `json:"quantity"`
	OrderDate    time.Time `json:"order_date"`
	ProductID    uint      `json:"product_id"`
	ProductName  string    `json:"product_name"`
	UnitPrice    int64     `json:"unit_price"`
}

// ProductSummary 单个商品的销量与销售额。
type ProductSummary struct {
	ProductID     uint   `json:"product_id"`
	ProductName   string `json:"product_name"`
	TotalQuantity int64  `json:"total_quantity"`
	TotalRevenue  int64  `json:"total_revenue"`
}

// CustomerTotal 客户累计下单数量。
type CustomerTotal struct {
	CustomerName  string `json:"customer_name"`
	TotalQuantity int64  `json:"total_quantity"`
}

func (s *ReportService) ListOrdersWithProduct(ctx context.Context) ([]OrderWithProduct, error) {
	rows := make([]OrderWithProduct, 0)
	err := s.db.WithContext(ctx).
		Table("orders").
		Select("orders.id AS order_id, orders.customer_name, orders.quantity, orders.order_date, " +
			"products.id AS product_id, products.name AS product_name, products.unit_price").
		Joins("JOIN products ON products.id = orders.product_id").
		Order("orders.id").
		Scan(&rows).Error
	if err != nil {
		return nil, internal(err, "list orders")
	}
	return rows, nil
}

// ProductSummary 只统计至少有一笔订单的商品。
func (s *ReportService) ProductSummary(ctx context.Context) ([]ProductSummary, error) {
	rows := make([]ProductSummary, 0)
	err := s.db.WithContext(ctx).
		Table("orders").
		Select("products.id AS product_id, products.name AS product_name, " +
			"SUM(orders.quantity) AS total_quantity, SUM(orders.quantity * products.unit_price) AS total_revenue").
		Joins("JOIN products ON products.id = orders.product_id").
		Group("products.id, products.name").
		Order("products.id").
		Scan(&rows).Error
	if err != nil {
		return nil, internal(err, "product summary")
	}
	return rows, nil
}

// LowStockProducts 返回 stock < threshold 的商品。
func (s *ReportService) LowStockProducts(ctx context.Context, threshold int64) ([]model.Product, error) {
	if threshold < 0 {
		return nil, apperr.New(apperr.InvalidInput, "threshold must be >= 0")
	}
	products := make([]model.Product, 0)
	if err := s.db.WithContext(ctx).Where("stock < ?", threshold).Order("id").Find(&products).Error; err != nil {
		return nil, internal(err, "low stock products")
	}
	return products, nil
}

// TopCustomers 按累计数量降序，数量相同按客户名升序。
func (s *ReportService) TopCustomers(ctx context.Context, n int) ([]CustomerTotal, error) {
	if n <= 0 {
		return nil, apperr.New(apperr.InvalidInput, "n must be > 0")
	}
	if n > maxTopCustomers {
		n = maxTopCustomers
	}
	rows := make([]CustomerTotal, 0, n)
	err := s.db.WithContext(ctx).
		Model(&model.Order{}).
		Select("customer_name, SUM(quantity) AS total_quantity").
		Group("customer_name").
		Order("total_quantity DESC, customer_name ASC").
		Limit(n).
		Scan(&rows).Error
	if err != nil {
		return nil, internal(err, "top customers")
	}
	return rows, nil
}

// UnorderedProducts 返回没有任何订单引用的商品。
func (s *ReportService) UnorderedProducts(ctx context.Context) ([]model.Product, error) {
	products := make([]model.Product, 0)
	err := s.db.WithContext(ctx).
		Where("NOT EXISTS (SELECT 1 FROM orders WHERE orders.product_id = products.id)").
		Order("id").
		Find(&products).Error
	if err != nil {
		return nil, internal(err, "unordered products")
	}
	return products, nil
}
