package router

import (
	"net/http"

	"order_track/internal/service"

	"github.com/gin-gonic/gin"
)

// listProducts 查询商品列表。
func listProducts(s *service.ProductService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := s.ListProducts(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, list)
	}
}

func createProduct(s *service.ProductService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.NewProduct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		p, err := s.CreateProduct(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

func getProduct(s *service.ProductService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := paramID(c, "id")
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		p, err := s.GetProduct(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

// deleteProduct 仍有订单引用时返回 409。
func deleteProduct(s *service.ProductService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := paramID(c, "id")
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := s.DeleteProduct(c.Request.Context(), id); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "product deleted"})
	}
}
