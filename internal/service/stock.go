package service

import (
	"errors"

	"order_track/internal/apperr"
	"order_track/internal/model"

	"gorm.io/gorm"
)

// debitStock 原子「判断库存 ≥ 扣减量 → 扣减」：单条条件 UPDATE，依赖影响行数判断是否成功，
// 不存在先读后写的窗口，同一商品的并发扣减不会把库存扣成负数。
func debitStock(tx *gorm.DB, productID uint, qty int64) error {
	res := tx.Model(&model.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// 0 行：商品不存在，或库存不足
	var p model.Product
	if err := tx.Select("id", "stock").First(&p, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.NotFound, "product %d not found", productID)
		}
		return err
	}
	return apperr.New(apperr.InsufficientStock,
		"insufficient stock for product %d: requested %d, available %d", productID, qty, p.Stock)
}

// creditStock 回补库存。
func creditStock(tx *gorm.DB, productID uint, qty int64) error {
	res := tx.Model(&model.Product{}).
		Where("id = ?", productID).
		Update("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.NotFound, "product %d not found", productID)
	}
	return nil
}
