package service

import (
	"context"
	"time"

	rediskey "order_track/pkg/redis"
)

// RedisIdempotency 把 pkg/redis 的批次状态存储适配为 IdempotencyStore，多实例部署时使用。
type RedisIdempotency struct {
	Store *rediskey.RequestStore
}

func (r RedisIdempotency) Begin(ctx context.Context, key string, ttl time.Duration) (IdempotencyState, bool, error) {
	st, acquired, err := r.Store.Begin(ctx, key, ttl)
	if err != nil || acquired {
		return IdempotencyState{}, acquired, err
	}
	status := IdempotencyPending
	if st.Status == rediskey.RequestSuccess {
		status = IdempotencySuccess
	}
	return IdempotencyState{Status: status, OrderIDs: st.OrderIDs}, false, nil
}

func (r RedisIdempotency) Complete(ctx context.Context, key string, orderIDs []uint, ttl time.Duration) error {
	return r.Store.Complete(ctx, key, orderIDs, ttl)
}

func (r RedisIdempotency) Release(ctx context.Context, key string) error {
	return r.Store.Release(ctx, key)
}
