package redis

import "fmt"

// IdempotencyKey 批量下单幂等键。
func IdempotencyKey(clientKey string) string {
	return fmt.Sprintf("order_track:idem:bulk:%s", clientKey)
}

// RateLimitUserKey 已登录用户的写接口限流键。
func RateLimitUserKey(userID uint) string {
	return fmt.Sprintf("order_track:rate_limit:user:%d", userID)
}

// RateLimitIPKey 匿名请求按 IP 限流。
func RateLimitIPKey(ip string) string {
	return fmt.Sprintf("order_track:rate_limit:ip:%s", ip)
}
