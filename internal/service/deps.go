package service

import (
	"context"
	"sync"
	"time"

	"order_track/internal/queue"
)

// EventPublisher 在事务提交后投递订单事件。投递失败不影响已提交的对账结果。
type EventPublisher interface {
	Publish(ctx context.Context, msg queue.OrderEventMessage) error
}

// NopPublisher 未启用事件链路时使用。
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.OrderEventMessage) error { return nil }

// 幂等键状态
const (
	IdempotencyPending = "pending"
	IdempotencySuccess = "success"
)

// IdempotencyState 记录某个幂等键对应的批量请求结果。
type IdempotencyState struct {
	Status   string
	OrderIDs []uint
}

// IdempotencyStore 保存批量下单的幂等键。
type IdempotencyStore interface {
	// Begin 原子占位。键已存在时返回已有状态且 acquired=false。
	Begin(ctx context.Context, key string, ttl time.Duration) (state IdempotencyState, acquired bool, err error)
	// Complete 记录成功结果。
	Complete(ctx context.Context, key string, orderIDs []uint, ttl time.Duration) error
	// Release 删除占位，允许客户端用同一个键重试失败的批次。
	Release(ctx context.Context, key string) error
}

type memoryEntry struct {
	state     IdempotencyState
	expiresAt time.Time
}

// MemoryIdempotencyStore 单实例部署（未配置 Redis）时的幂等存储。
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	// 下一次清理过期键的时间
	nextSweep time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryIdempotencyStore) Begin(_ context.Context, key string, ttl time.Duration) (IdempotencyState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		return e.state, false, nil
	}
	s.entries[key] = memoryEntry{
		state:     IdempotencyState{Status: IdempotencyPending},
		expiresAt: now.Add(ttl),
	}
	return IdempotencyState{}, true, nil
}

const memorySweepInterval = time.Minute

// sweepLocked 最多每分钟扫描一次，删除已过期的键；调用方持有 mu。
func (s *MemoryIdempotencyStore) sweepLocked(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	s.nextSweep = now.Add(memorySweepInterval)
}

func (s *MemoryIdempotencyStore) Complete(_ context.Context, key string, orderIDs []uint, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := append([]uint(nil), orderIDs...)
	s.entries[key] = memoryEntry{
		state:     IdempotencyState{Status: IdempotencySuccess, OrderIDs: ids},
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
