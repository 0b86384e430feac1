package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusNotification 订单终态通知
type StatusNotification struct {
	OrderID   string `json:"order_id"`
	State     string `json:"state"` // delivered/failed
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// PubSub Redis 发布/订阅
type PubSub struct {
	rdb redis.UniversalClient
}

// NewPubSub 创建 PubSub 实例
func NewPubSub(rdb redis.UniversalClient) *PubSub {
	return &PubSub{rdb: rdb}
}

// Publish 发布通知
func (p *PubSub) Publish(ctx context.Context, channel string, n *StatusNotification) error {
	msgJSON, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := p.rdb.Publish(ctx, channel, msgJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Subscribe 订阅频道，返回的 PubSub 由调用方关闭
func (p *PubSub) Subscribe(ctx context.Context, channel string) (*redis.PubSub, error) {
	sub := p.rdb.Subscribe(ctx, channel)
	// 等待订阅确认，避免确认前发布的消息丢失
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe %s: %w", channel, err)
	}
	return sub, nil
}

// Wait 在已订阅的频道上等待一条通知，超时返回 context.DeadlineExceeded
func Wait(ctx context.Context, sub *redis.PubSub, timeout time.Duration) (*StatusNotification, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case msg, ok := <-sub.Channel():
		if !ok {
			return nil, fmt.Errorf("subscription closed")
		}
		var n StatusNotification
		if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
			return nil, fmt.Errorf("failed to decode notification: %w", err)
		}
		return &n, nil
	case <-timeoutCtx.Done():
		return nil, timeoutCtx.Err()
	}
}
