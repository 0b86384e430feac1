package middlewares

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/ginx"
	redisinfra "github.com/Ajmal023/Afghan-Topup-sub000/pkg/infra/redis"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
)

// HeaderIdempotencyKey 幂等键头
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotentReplay 标记响应来自缓存
const HeaderIdempotentReplay = "Idempotent-Replayed"

// ResponseCache 幂等响应缓存
type ResponseCache interface {
	Key(route, key string) string
	Get(ctx context.Context, key string) (*redisinfra.CachedResponse, error)
	Save(ctx context.Context, key string, resp *redisinfra.CachedResponse) error
}

// Idempotent 按 Idempotency-Key 缓存 (status, body)。没有幂等键的请求直接执行；
// 5xx 结果不缓存，客户端可用同一个键重试
func Idempotent(cache ResponseCache, route string, log logger.Logger, h ginx.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		idemKey := c.GetHeader(HeaderIdempotencyKey)
		if idemKey == "" {
			status, data, err := h(c)
			c.JSON(status, ginx.Build(status, data, err))
			return
		}

		key := cache.Key(route, idemKey)
		cached, err := cache.Get(ctx, key)
		if err != nil {
			log.Errorf(ctx, "[Idempotent] read %s failed: %v", key, err)
			ginx.Error(c, http.StatusServiceUnavailable, "idempotency store unavailable")
			return
		}
		if cached != nil {
			c.Header(HeaderIdempotentReplay, "true")
			c.Data(cached.Status, "application/json; charset=utf-8", cached.Body)
			return
		}

		status, data, herr := h(c)
		body, err := json.Marshal(ginx.Build(status, data, herr))
		if err != nil {
			ginx.InternalError(c, "encode response failed")
			return
		}
		if status < http.StatusInternalServerError {
			if err := cache.Save(ctx, key, &redisinfra.CachedResponse{Status: status, Body: body}); err != nil {
				log.Warnf(ctx, "[Idempotent] save %s failed: %v", key, err)
			}
		}
		c.Data(status, "application/json; charset=utf-8", body)
	}
}
