package order

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/business/fulfillment"
)

// StatusReader 订单状态查询
type StatusReader interface {
	Status(ctx context.Context, orderID string) (*fulfillment.StatusView, error)
}

// Subscriber 订单状态通知订阅
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (*redis.PubSub, error)
}

// OrderHandler 订单 HTTP 处理器
type OrderHandler struct {
	reader  StatusReader
	pubsub  Subscriber
	maxWait time.Duration
}

// NewOrderHandler pubsub 为 nil 时忽略 wait 参数
func NewOrderHandler(reader StatusReader, pubsub Subscriber, maxWait time.Duration) *OrderHandler {
	return &OrderHandler{reader: reader, pubsub: pubsub, maxWait: maxWait}
}
