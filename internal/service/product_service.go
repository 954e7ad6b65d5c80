package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"order_track/internal/apperr"
	"order_track/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProductService 商品目录。库存只在创建时给定，之后只由订单对账修改。
type ProductService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewProductService(db *gorm.DB, log *zap.Logger) *ProductService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductService{db: db, log: log.Named("products")}
}

// NewProduct 创建商品的入参。
type NewProduct struct {
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Stock     int64  `json:"stock"`
}

func (s *ProductService) CreateProduct(ctx context.Context, in NewProduct) (*model.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.New(apperr.InvalidInput, "name is required")
	}
	if utf8.RuneCountInString(name) > 255 {
		return nil, apperr.New(apperr.InvalidInput, "name must be at most 255 characters")
	}
	if in.UnitPrice < 0 {
		return nil, apperr.New(apperr.InvalidInput, "unit_price must be >= 0")
	}
	if in.Stock < 0 {
		return nil, apperr.New(apperr.InvalidInput, "stock must be >= 0")
	}

	p := &model.Product{Name: name, UnitPrice: in.UnitPrice, Stock: in.Stock}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, internal(err, "create product")
	}
	s.log.Info("product created", zap.Uint("product_id", p.ID), zap.Int64("stock", p.Stock))
	return p, nil
}

func (s *ProductService) ListProducts(ctx context.Context) ([]model.Product, error) {
	list := make([]model.Product, 0)
	if err := s.db.WithContext(ctx).Order("id").Find(&list).Error; err != nil {
		return nil, internal(err, "list products")
	}
	return list, nil
}

func (s *ProductService) GetProduct(ctx context.Context, id uint) (*model.Product, error) {
	var p model.Product
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "product %d not found", id)
		}
		return nil, internal(err, "get product")
	}
	return &p, nil
}

// DeleteProduct 仅允许删除没有订单的商品；否则返回 Conflict，
// 避免级联删除订单时绕过逐单回补库存的路径。
func (s *ProductService) DeleteProduct(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先写一次商品行拿到行锁，与下单时的条件扣减互斥，计数期间不会有新订单插进来
		res := tx.Model(&model.Product{}).Where("id = ?", id).Update("updated_at", time.Now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.NotFound, "product %d not found", id)
		}

		var n int64
		if err := tx.Model(&model.Order{}).Where("product_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.New(apperr.Conflict, "product %d still has %d order(s); delete them first", id, n)
		}
		return tx.Delete(&model.Product{}, id).Error
	})
	if err != nil {
		return internal(err, "delete product")
	}
	s.log.Info("product deleted", zap.Uint("product_id", id))
	return nil
}
