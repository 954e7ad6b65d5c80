package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"order_track/internal/apperr"

	"gorm.io/gorm"
)

// errConcurrentUpdate 表示乐观条件（quantity = 旧值）未命中，说明订单被并发修改，整笔事务可重试。
var errConcurrentUpdate = errors.New("order modified concurrently")

// txRunner 封装「带超时的事务 + 冲突重试」。
type txRunner struct {
	db         *gorm.DB
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
}

// run 执行 fn；fn 返回错误即回滚。只有可重试错误（并发冲突、SQLITE_BUSY、序列化失败）会重跑，
// 每次重跑都是全新的事务，所以全有或全无语义保证重试安全。
func (r txRunner) run(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = r.once(ctx, fn)
		if err == nil || !isRetryable(err) || attempt >= r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff * time.Duration(attempt+1)):
		}
	}
	if errors.Is(err, errConcurrentUpdate) {
		return apperr.Wrap(apperr.Conflict, err, "order was modified concurrently, please retry")
	}
	return err
}

func (r txRunner) once(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.db.WithContext(ctx).Transaction(fn)
}

// isRetryable 识别可安全重跑的冲突。驱动错误类型各不相同，这里按文本匹配。
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errConcurrentUpdate) {
		return true
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, marker := range []string{
		"database is locked",
		"sqlite_busy",
		"could not serialize access", // 40001
		"deadlock detected",          // 40P01
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// errorsLikeUnique 唯一约束冲突（并发注册同名用户等）。
func errorsLikeUnique(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique") || strings.Contains(s, "duplicate key")
}

// internal 把非业务错误包成 Internal，原始原因只进日志。
func internal(err error, msg string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.Internal, err, "%s: transaction timed out", msg)
	}
	return apperr.Wrap(apperr.Internal, err, "%s", msg)
}
