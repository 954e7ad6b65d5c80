package service

import (
	"context"
	"testing"

	"order_track/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedReportData(t *testing.T) (*ReportService, map[string]uint) {
	t.Helper()
	db := newTestDB(t)
	orders := newTestOrderService(db, nil)
	ctx := context.Background()

	ids := map[string]uint{}
	for _, p := range []struct {
		name  string
		price int64
		stock int64
	}{{"laptop", 1000, 10}, {"mouse", 25, 100}, {"cable", 5, 3}, {"dock", 300, 1}} {
		ids[p.name] = seedProduct(t, db, p.name, p.price, p.stock).ID
	}

	for _, l := range []OrderLine{
		{ProductID: ids["laptop"], CustomerName: "alice", Quantity: 2},
		{ProductID: ids["mouse"], CustomerName: "alice", Quantity: 3},
		{ProductID: ids["mouse"], CustomerName: "bob", Quantity: 5},
		{ProductID: ids["laptop"], CustomerName: "carol", Quantity: 1},
		{ProductID: ids["mouse"], CustomerName: "dave", Quantity: 4},
		{ProductID: ids["cable"], CustomerName: "erin", Quantity: 1},
	} {
		_, err := orders.CreateOrder(ctx, l)
		require.NoError(t, err)
	}
	return NewReportService(db), ids
}

func TestReport_ListOrdersWithProduct(t *testing.T) {
	svc, ids := seedReportData(t)
	rows, err := svc.ListOrdersWithProduct(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 6)

	assert.Equal(t, "alice", rows[0].CustomerName)
	assert.Equal(t, "laptop", rows[0].ProductName)
	assert.Equal(t, ids["laptop"], rows[0].ProductID)
	assert.Equal(t, int64(1000), rows[0].UnitPrice)
	assert.False(t, rows[0].OrderDate.IsZero())
	assert.Less(t, rows[0].OrderID, rows[5].OrderID)
}

func TestReport_ProductSummary(t *testing.T) {
	svc, ids := seedReportData(t)
	rows, err := svc.ProductSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3, "dock has no orders")

	byID := map[uint]ProductSummary{}
	for _, r := range rows {
		byID[r.ProductID] = r
	}
	assert.Equal(t, int64(3), byID[ids["laptop"]].TotalQuantity)
	assert.Equal(t, int64(3000), byID[ids["laptop"]].TotalRevenue)
	assert.Equal(t, int64(12), byID[ids["mouse"]].TotalQuantity)
	assert.Equal(t, int64(300), byID[ids["mouse"]].TotalRevenue)
	assert.Equal(t, "cable", byID[ids["cable"]].ProductName)
}

func TestReport_LowStockProducts(t *testing.T) {
	svc, _ := seedReportData(t)
	ctx := context.Background()

	// 剩余库存：laptop 7, mouse 88, cable 2, dock 1
	rows, err := svc.LowStockProducts(ctx, 7)
	require.NoError(t, err)
	var names []string
	for _, p := range rows {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"cable", "dock"}, names)

	rows, err = svc.LowStockProducts(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = svc.LowStockProducts(ctx, -1)
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}

func TestReport_TopCustomers(t *testing.T) {
	svc, _ := seedReportData(t)
	ctx := context.Background()

	// alice 5, bob 5, dave 4, carol 1, erin 1；同数量按名字升序
	rows, err := svc.TopCustomers(ctx, DefaultTopCustomers)
	require.NoError(t, err)
	assert.Equal(t, []CustomerTotal{
		{CustomerName: "alice", TotalQuantity: 5},
		{CustomerName: "bob", TotalQuantity: 5},
		{CustomerName: "dave", TotalQuantity: 4},
	}, rows)

	rows, err = svc.TopCustomers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "carol", rows[3].CustomerName)
	assert.Equal(t, "erin", rows[4].CustomerName)

	_, err = svc.TopCustomers(ctx, 0)
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}

func TestReport_UnorderedProducts(t *testing.T) {
	svc, ids := seedReportData(t)
	rows, err := svc.UnorderedProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ids["dock"], rows[0].ID)
}

func TestReport_EmptyDatabase(t *testing.T) {
	svc := NewReportService(newTestDB(t))
	ctx := context.Background()

	orders, err := svc.ListOrdersWithProduct(ctx)
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)

	summary, err := svc.ProductSummary(ctx)
	require.NoError(t, err)
	assert.Empty(t, summary)
}
