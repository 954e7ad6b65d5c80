package router

import (
	"net/http"
	"strconv"

	"order_track/internal/service"

	"github.com/gin-gonic/gin"
)

// createOrder 下单：扣库存 + 插订单。
func createOrder(s *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.OrderLine
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		order, err := s.CreateOrder(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, order)
	}
}

// updateOrder 修改数量，按差值调整库存。
func updateOrder(s *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := paramID(c, "order_id")
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		var req struct {
			NewQuantity int64 `json:"new_quantity"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		order, err := s.UpdateOrderQuantity(c.Request.Context(), id, req.NewQuantity)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, order)
	}
}

func deleteOrder(s *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := paramID(c, "order_id")
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := s.DeleteOrder(c.Request.Context(), id); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "order deleted"})
	}
}

// bulkCreate 整批在一个事务内执行，任一行失败全部回滚。
func bulkCreate(s *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var lines []service.OrderLine
		if err := c.ShouldBindJSON(&lines); err != nil {
			badRequest(c, "request body must be a JSON array of orders")
			return
		}
		res, err := s.CreateBulkOrders(c.Request.Context(), lines, c.GetHeader(IdempotencyHeader))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, res)
	}
}

func allOrders(s *service.ReportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := s.ListOrdersWithProduct(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, rows)
	}
}

func summary(s *service.ReportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := s.ProductSummary(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, rows)
	}
}

func lowStock(s *service.ReportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		threshold, err := strconv.ParseInt(c.Param("threshold"), 10, 64)
		if err != nil {
			badRequest(c, "threshold must be an integer")
			return
		}
		rows, err := s.LowStockProducts(c.Request.Context(), threshold)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, rows)
	}
}

func topCustomers(s *service.ReportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		n := service.DefaultTopCustomers
		if v := c.Query("n"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				badRequest(c, "n must be an integer")
				return
			}
			n = parsed
		}
		rows, err := s.TopCustomers(c.Request.Context(), n)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, rows)
	}
}

func notOrdered(s *service.ReportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := s.UnorderedProducts(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, rows)
	}
}
