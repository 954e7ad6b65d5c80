package router

import (
	"errors"
	"net/http"
	"strconv"

	"order_track/internal/apperr"
	"order_track/internal/auth"
	"order_track/internal/config"
	"order_track/internal/logger"
	"order_track/internal/middleware"
	"order_track/internal/service"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// IdempotencyHeader 批量下单的幂等键请求头。
const IdempotencyHeader = "Idempotency-Key"

// Deps 路由依赖。Redis 为 nil 时不限流。
type Deps struct {
	Orders   *service.OrderService
	Reports  *service.ReportService
	Products *service.ProductService
	Accounts *service.AuthService
	Tokens   *auth.TokenIssuer
	Redis    *rd.Client
	Config   config.AppConfig
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	authAPI := r.Group("/api/auth")
	authAPI.POST("/register", register(d.Accounts))
	authAPI.POST("/login", login(d.Accounts))

	api := r.Group("/api")
	if d.Config.AuthRequired {
		api.Use(middleware.RequireAuth(d.Tokens))
	}

	// 写接口限流（在认证之后，才能按 user_id 计数）
	writes := []gin.HandlerFunc{}
	if d.Redis != nil {
		writes = append(writes, middleware.RedisRateLimit(d.Redis, d.Config.WriteRateLimit, d.Config.WriteRateWindow))
	}
	with := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, writes...), h)
	}

	// Products
	api.GET("/products", listProducts(d.Products))
	api.POST("/products", with(createProduct(d.Products))...)
	api.GET("/products/:id", getProduct(d.Products))
	api.DELETE("/products/:id", with(deleteProduct(d.Products))...)

	// Orders
	orders := api.Group("/orders")
	orders.POST("/create", with(createOrder(d.Orders))...)
	orders.PUT("/update/:order_id", with(updateOrder(d.Orders))...)
	orders.DELETE("/delete/:order_id", with(deleteOrder(d.Orders))...)
	orders.POST("/bulk-create", with(bulkCreate(d.Orders))...)
	orders.GET("/all-orders", allOrders(d.Reports))
	orders.GET("/summary", summary(d.Reports))
	orders.GET("/low-stock/:threshold", lowStock(d.Reports))
	orders.GET("/top-customers", topCustomers(d.Reports))
	orders.GET("/not-ordered", notOrdered(d.Reports))
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": data})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "msg": msg})
}

// fail 把 apperr.Kind 映射为 HTTP 状态码。Internal 只回通用文案，原始错误进日志。
func fail(c *gin.Context, err error) {
	status := statusOf(apperr.KindOf(err))
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"code": status, "msg": apperr.Message(err)})
}

func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvalidInput, apperr.InsufficientStock, apperr.TransactionFailure:
		return http.StatusBadRequest
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// paramID 解析路径中的正整数 ID。
func paramID(c *gin.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || v == 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return uint(v), nil
}
