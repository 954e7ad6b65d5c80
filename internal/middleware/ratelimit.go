package middleware

import (
	"fmt"
	"net/http"
	"time"

	rediskey "order_track/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

// luaRateLimit：Redis 滑动窗口限流（原子操作）
// KEYS[1]=限流key，ARGV[1]=当前毫秒，ARGV[2]=窗口起点毫秒，ARGV[3]=窗口秒数，ARGV[4]=member，ARGV[5]=limit
// 返回当前窗口内的请求数，超限返回 -1
const luaRateLimit = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowSec = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)

local count = redis.call('ZCARD', key)
if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('EXPIRE', key, windowSec)
  return count + 1
else
  return -1
end
`

// RedisRateLimit 写接口分布式限流：已登录按 user_id，否则按 IP。
// Redis 不可用时放行。
func RedisRateLimit(rdb *rd.Client, limit int, window time.Duration) gin.HandlerFunc {
	windowSec := int64(window / time.Second)
	if windowSec <= 0 {
		windowSec = 1
	}
	return func(c *gin.Context) {
		key := rateLimitKey(c)

		now := time.Now()
		nowMs := now.UnixMilli()
		windowStart := nowMs - windowSec*1000
		member := fmt.Sprintf("%d-%d", nowMs, now.UnixNano())

		res, err := rdb.Eval(c.Request.Context(), luaRateLimit, []string{key},
			nowMs, windowStart, windowSec, member, limit).Int()
		if err != nil {
			c.Next()
			return
		}

		if res < 0 {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": http.StatusTooManyRequests,
				"msg":  "too many requests, please retry later",
			})
			return
		}
		c.Next()
	}
}

func rateLimitKey(c *gin.Context) string {
	if uid := UserID(c); uid > 0 {
		return rediskey.RateLimitUserKey(uid)
	}
	return rediskey.RateLimitIPKey(c.ClientIP())
}
