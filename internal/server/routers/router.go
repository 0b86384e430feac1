package routers

import (
	"github.com/gin-gonic/gin"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/server/handlers/admin"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/server/handlers/checkout"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/server/handlers/order"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/server/middlewares"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/ginx"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
)

// Handlers 路由依赖
type Handlers struct {
	Checkout *checkout.CheckoutHandler
	Order    *order.OrderHandler
	Jobs     *admin.JobsHandler
	Cache    middlewares.ResponseCache
	Logger   logger.Logger
}

// SetupRoutes 配置所有路由，使用 Route Group 分类
func SetupRoutes(h *Handlers) *gin.Engine {
	r := gin.New()

	r.Use(middlewares.Logger(h.Logger))
	r.Use(middlewares.ErrorHandler(h.Logger))

	r.GET("/health", func(c *gin.Context) {
		ginx.Success(c, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		co := v1.Group("/checkout")
		{
			co.POST("", middlewares.Idempotent(h.Cache, "checkout", h.Logger, h.Checkout.Start))
			co.POST("/:id/complete", middlewares.Idempotent(h.Cache, "checkout-complete", h.Logger, h.Checkout.Complete))
		}

		v1.GET("/orders/:id/status", ginx.Wrap(h.Order.Status))
		v1.GET("/admin/jobs", ginx.Wrap(h.Jobs.List))
	}

	return r
}
