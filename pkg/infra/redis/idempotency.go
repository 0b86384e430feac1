package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedResponse 已完成请求的响应快照
type CachedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// IdempotencyStore 按幂等键缓存 HTTP 响应
type IdempotencyStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewIdempotencyStore 创建幂等缓存
func NewIdempotencyStore(rdb redis.UniversalClient, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// Key idem:{route}:{key}
func (s *IdempotencyStore) Key(route, key string) string {
	return fmt.Sprintf("idem:%s:%s", route, key)
}

// Get 未命中返回 (nil, nil)
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*CachedResponse, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp CachedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Save 首次写入生效，并发重复请求不会覆盖已有结果
func (s *IdempotencyStore) Save(ctx context.Context, key string, resp *CachedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.rdb.SetNX(ctx, key, data, s.ttl).Err()
}
