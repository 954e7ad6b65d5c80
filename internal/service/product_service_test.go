package service

import (
	"context"
	"testing"

	"order_track/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductService_CRUD(t *testing.T) {
	db := newTestDB(t)
	svc := NewProductService(db, nil)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, NewProduct{Name: " keyboard ", UnitPrice: 80, Stock: 12})
	require.NoError(t, err)
	assert.Equal(t, "keyboard", p.Name)

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.Stock)

	list, err := svc.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.GetProduct(ctx, 999)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	require.NoError(t, svc.DeleteProduct(ctx, p.ID))
	_, err = svc.GetProduct(ctx, p.ID)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	assert.Equal(t, apperr.NotFound, apperr.KindOf(svc.DeleteProduct(ctx, p.ID)))
}

func TestProductService_CreateValidation(t *testing.T) {
	svc := NewProductService(newTestDB(t), nil)
	ctx := context.Background()

	for _, in := range []NewProduct{
		{Name: "", UnitPrice: 1, Stock: 1},
		{Name: "x", UnitPrice: -1, Stock: 1},
		{Name: "x", UnitPrice: 1, Stock: -1},
	} {
		_, err := svc.CreateProduct(ctx, in)
		assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err), "%+v", in)
	}
}

func TestProductService_DeleteWithOrdersConflicts(t *testing.T) {
	db := newTestDB(t)
	products := NewProductService(db, nil)
	orders := newTestOrderService(db, nil)
	ctx := context.Background()

	p, err := products.CreateProduct(ctx, NewProduct{Name: "x", UnitPrice: 1, Stock: 5})
	require.NoError(t, err)
	o, err := orders.CreateOrder(ctx, OrderLine{ProductID: p.ID, CustomerName: "a", Quantity: 2})
	require.NoError(t, err)

	err = products.DeleteProduct(ctx, p.ID)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	assert.Equal(t, int64(1), orderCount(t, db))

	// 订单删掉后可以删除商品
	require.NoError(t, orders.DeleteOrder(ctx, o.ID))
	require.NoError(t, products.DeleteProduct(ctx, p.ID))
}
