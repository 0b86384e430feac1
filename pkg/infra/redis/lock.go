package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 仅当值仍为本次持有的 token 时才删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock 一次成功获取的锁
type Lock struct {
	Key   string
	Token string
}

// Locker 基于 SET NX PX 的互斥锁，获取失败立即返回，不排队
type Locker struct {
	rdb redis.UniversalClient
}

// NewLocker 创建 Locker
func NewLocker(rdb redis.UniversalClient) *Locker {
	return &Locker{rdb: rdb}
}

// Acquire 尝试获取锁；被占用时返回 (nil, nil)
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lock{Key: key, Token: token}, nil
}

// Release 释放锁；锁已过期或被他人持有时返回 false
func (l *Locker) Release(ctx context.Context, lock *Lock) (bool, error) {
	if lock == nil {
		return false, nil
	}
	n, err := releaseScript.Run(ctx, l.rdb, []string{lock.Key}, lock.Token).Int()
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", lock.Key, err)
	}
	return n == 1, nil
}
