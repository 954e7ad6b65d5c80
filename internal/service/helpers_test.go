package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"order_track/internal/database"
	"order_track/internal/model"
	"order_track/internal/queue"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(database.Options{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "orders.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, name string, price, stock int64) *model.Product {
	t.Helper()
	p := &model.Product{Name: name, UnitPrice: price, Stock: stock}
	require.NoError(t, db.Create(p).Error)
	return p
}

func stockOf(t *testing.T, db *gorm.DB, id uint) int64 {
	t.Helper()
	var p model.Product
	require.NoError(t, db.First(&p, id).Error)
	return p.Stock
}

func orderCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.Order{}).Count(&n).Error)
	return n
}

// sumQuantity 某商品现存订单数量之和。
func sumQuantity(t *testing.T, db *gorm.DB, productID uint) int64 {
	t.Helper()
	var sum int64
	require.NoError(t, db.Model(&model.Order{}).
		Where("product_id = ?", productID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&sum).Error)
	return sum
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []queue.OrderEventMessage
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, msg queue.OrderEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *recordingPublisher) events() []queue.OrderEventMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.OrderEventMessage(nil), p.msgs...)
}

func newTestOrderService(db *gorm.DB, pub EventPublisher) *OrderService {
	return NewOrderService(db, OrderOptions{
		TxTimeout:  5 * time.Second,
		MaxRetries: 3,
		Publisher:  pub,
	})
}
