package redis

import (
	"context"
	"strconv"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"
)

const (
	// RequestPending 表示批次已占位、事务尚未结束。
	RequestPending = "pending"
	// RequestSuccess 表示批次已提交，order_ids 可用于重放。
	RequestSuccess = "success"
)

// luaBeginRequest：HSETNX 占位并设置过期，保证「同一幂等键只会有一个执行者」。
const luaBeginRequest = `
local key = KEYS[1]
local ttlSec = tonumber(ARGV[1])
if redis.call('HSETNX', key, 'status', 'pending') == 1 then
  redis.call('EXPIRE', key, ttlSec)
  return 1
end
return 0
`

// luaReleaseIfPending 仅当仍是 pending 时才删除，避免误删已成功批次的结果。
const luaReleaseIfPending = `
local key = KEYS[1]
if redis.call('HGET', key, 'status') == 'pending' then
  return redis.call('DEL', key)
end
return 0
`

// RequestState 对应 Redis 内的批次状态结构。
type RequestState struct {
	Status   string
	OrderIDs []uint
}

// RequestStore 以 Redis Hash 保存批量请求状态，多实例共享。
type RequestStore struct {
	rdb *rd.Client
}

func NewRequestStore(rdb *rd.Client) *RequestStore {
	return &RequestStore{rdb: rdb}
}

// Begin 原子占位；acquired=false 时返回已有状态。
func (s *RequestStore) Begin(ctx context.Context, clientKey string, ttl time.Duration) (RequestState, bool, error) {
	key := IdempotencyKey(clientKey)
	n, err := s.rdb.Eval(ctx, luaBeginRequest, []string{key}, ttlSeconds(ttl)).Int()
	if err != nil {
		return RequestState{}, false, err
	}
	if n == 1 {
		return RequestState{}, true, nil
	}

	m, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return RequestState{}, false, err
	}
	st := RequestState{Status: m["status"], OrderIDs: parseIDs(m["order_ids"])}
	if st.Status == "" {
		// 占位与读取之间刚好过期：按处理中返回，让客户端稍后重试
		st.Status = RequestPending
	}
	return st, false, nil
}

// Complete 写入成功结果，并刷新 key TTL。
func (s *RequestStore) Complete(ctx context.Context, clientKey string, orderIDs []uint, ttl time.Duration) error {
	key := IdempotencyKey(clientKey)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"status", RequestSuccess,
		"order_ids", formatIDs(orderIDs),
	)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Release 删除仍处于 pending 的占位。
func (s *RequestStore) Release(ctx context.Context, clientKey string) error {
	_, err := s.rdb.Eval(ctx, luaReleaseIfPending, []string{IdempotencyKey(clientKey)}).Int()
	return err
}

func ttlSeconds(ttl time.Duration) int64 {
	sec := int64(ttl / time.Second)
	if sec <= 0 {
		sec = 1
	}
	return sec
}

func formatIDs(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}

func parseIDs(s string) []uint {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]uint, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, uint(v))
	}
	return out
}
