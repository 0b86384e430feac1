package fulfillment

import (
	"context"
	"time"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	redisinfra "github.com/Ajmal023/Afghan-Topup-sub000/pkg/infra/redis"
)

// Locker 分布式互斥原语
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*redisinfra.Lock, error)
	Release(ctx context.Context, lock *redisinfra.Lock) (bool, error)
}

// AttemptLock 订单行级投递锁；获取失败立即返回
type AttemptLock struct {
	locker Locker
	ttl    time.Duration
}

// NewAttemptLock ttl 须大于单次渠道调用超时
func NewAttemptLock(locker Locker, ttl time.Duration) *AttemptLock {
	return &AttemptLock{locker: locker, ttl: ttl}
}

// Acquire 返回 nil 表示已有其他 tick 在处理该订单行
func (l *AttemptLock) Acquire(ctx context.Context, orderID, lineID string) (*redisinfra.Lock, error) {
	return l.locker.Acquire(ctx, model.AttemptLockKey(orderID, lineID), l.ttl)
}

// Release 仅释放自己持有的锁
func (l *AttemptLock) Release(ctx context.Context, lock *redisinfra.Lock) error {
	_, err := l.locker.Release(ctx, lock)
	return err
}
