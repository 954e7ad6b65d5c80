package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"order_track/internal/auth"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func newIssuer() *auth.TokenIssuer {
	return auth.NewTokenIssuer("0123456789abcdef-test", "order-track", "clients", time.Hour)
}

func protectedEngine(tokens *auth.TokenIssuer) *gin.Engine {
	r := gin.New()
	r.GET("/me", RequireAuth(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c), "username": Username(c)})
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	tokens := newIssuer()
	r := protectedEngine(tokens)
	tok, err := tokens.Issue(9, "alice")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"valid", "Bearer " + tok.AccessToken, http.StatusOK},
		{"lowercase scheme", "bearer " + tok.AccessToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"user_id":9,"username":"alice"}`, w.Body.String())
			} else {
				assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestRequireAuth_OtherIssuerRejected(t *testing.T) {
	other := auth.NewTokenIssuer("0123456789abcdef-test", "someone-else", "clients", time.Hour)
	tok, err := other.Issue(1, "mallory")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	protectedEngine(newIssuer()).ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimitKey(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "order_track:rate_limit:ip:10.1.2.3", rateLimitKey(c))

	c.Set(userIDKey, uint(12))
	assert.Equal(t, "order_track:rate_limit:user:12", rateLimitKey(c))
}

func TestRedisRateLimit_FailOpen(t *testing.T) {
	// 指向不存在的 Redis，限流应放行
	rdb := rd.NewClient(&rd.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	r := gin.New()
	r.POST("/w", RedisRateLimit(rdb, 1, time.Second), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/w", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}

// 需要真实 Redis：设置 REDIS_ADDR 后运行。
func TestRedisRateLimit_Limits(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := rd.NewClient(&rd.Options{Addr: addr})
	defer rdb.Close()

	ip := fmt.Sprintf("198.51.100.%d", time.Now().UnixNano()%250+1)
	t.Cleanup(func() { rdb.Del(context.Background(), "order_track:rate_limit:ip:"+ip) })

	r := gin.New()
	r.POST("/w", RedisRateLimit(rdb, 2, 10*time.Second), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/w", nil)
		req.RemoteAddr = ip + ":1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}
