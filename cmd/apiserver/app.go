package main

import (
	"github.com/gin-gonic/gin"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/bootstrap"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/server/handlers/admin"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/server/handlers/checkout"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/server/handlers/order"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/server/routers"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/config"
	redisinfra "github.com/Ajmal023/Afghan-Topup-sub000/pkg/infra/redis"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
)

// App HTTP 应用
type App struct {
	Engine *gin.Engine
}

// InitializeApp 组装 apiserver 依赖
func InitializeApp(cfg *config.Config, log logger.Logger) (*App, func(), error) {
	core, cleanup, err := bootstrap.NewCore(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	engine := routers.SetupRoutes(&routers.Handlers{
		Checkout: checkout.NewCheckoutHandler(core.Checkout),
		Order:    order.NewOrderHandler(core.Status, core.PubSub, cfg.Server.MaxStatusWait),
		Jobs:     admin.NewJobsHandler(core.Registry),
		Cache:    redisinfra.NewIdempotencyStore(core.Redis, cfg.Server.IdempotencyTTL),
		Logger:   log,
	})
	return &App{Engine: engine}, cleanup, nil
}
