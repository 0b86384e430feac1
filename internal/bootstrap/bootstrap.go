// Package bootstrap 组装 worker 与 apiserver 共用的依赖
package bootstrap

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/business/checkout"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/business/fulfillment"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/business/recurring"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/business/retry"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/entity"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rpdelivery"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rporder"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rppayment"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rprecurring"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/config"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/fx"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/infra/mysql"
	redisinfra "github.com/Ajmal023/Afghan-Topup-sub000/pkg/infra/redis"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/lmstfy"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/payment"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/provider"
)

// Core 业务组件
type Core struct {
	DB       *gorm.DB
	Redis    *goredis.Client
	Lmstfy   *lmstfy.Client
	PubSub   *redisinfra.PubSub
	Registry *redisinfra.JobRegistry

	Orders     rporder.OrderRepository
	Payments   rppayment.PaymentRepository
	Deliveries rpdelivery.DeliveryRepository
	Schedules  rprecurring.RecurringRepository

	Enqueuer     *retry.Enqueuer
	Scheduler    *retry.Scheduler
	Orchestrator *fulfillment.Orchestrator
	Status       *fulfillment.StatusReader
	Checkout     *checkout.Service
	Runner       *recurring.Runner
	Scanner      *recurring.Scanner
}

// NewCore 建立存储、队列连接并组装业务组件，返回的 cleanup 关闭所有连接
func NewCore(cfg *config.Config, log logger.Logger) (*Core, func(), error) {
	db, err := mysql.Open(cfg.MySQL.DSN, mysql.Options{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLife,
		AutoMigrate:     cfg.MySQL.AutoMigrate,
	}, entity.Models()...)
	if err != nil {
		return nil, nil, err
	}

	rdb, err := redisinfra.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		_ = mysql.Close(db)
		return nil, nil, err
	}
	cleanup := func() {
		_ = rdb.Close()
		_ = mysql.Close(db)
	}

	queue, err := lmstfy.NewClient(cfg.Lmstfy.Host, cfg.Lmstfy.Port, cfg.Lmstfy.Namespace, cfg.Lmstfy.Token, cfg.Lmstfy.Tries)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create lmstfy client: %w", err)
	}

	c := &Core{
		DB:         db,
		Redis:      rdb,
		Lmstfy:     queue,
		PubSub:     redisinfra.NewPubSub(rdb),
		Registry:   redisinfra.NewJobRegistry(rdb, cfg.Fulfillment.JobRetention),
		Orders:     rporder.NewOrderRepository(db),
		Payments:   rppayment.NewPaymentRepository(db),
		Deliveries: rpdelivery.NewDeliveryRepository(db),
		Schedules:  rprecurring.NewRecurringRepository(db),
	}

	payAdapter := NewPaymentAdapter(cfg.Payment)
	converter := fx.NewConverter(cfg.FX.Rates)

	c.Enqueuer = retry.NewEnqueuer(queue, c.Registry, cfg.Fulfillment.JobRetention, log)
	c.Scheduler = retry.NewScheduler(c.Enqueuer, cfg.Lmstfy.AttemptQueue, cfg.Fulfillment.MaxTries, cfg.Fulfillment.RetryStep, log)
	c.Orchestrator = fulfillment.NewOrchestrator(
		c.Orders, c.Payments, c.Deliveries,
		NewProviderRegistry(cfg.Provider, cfg.Fulfillment),
		payAdapter,
		fulfillment.NewAttemptLock(redisinfra.NewLocker(rdb), cfg.Fulfillment.LockTTL),
		c.Scheduler,
		c.PubSub,
		fulfillment.Options{
			MaxTries:        cfg.Fulfillment.MaxTries,
			ProviderTimeout: cfg.Fulfillment.ProviderTimeout,
			PaymentTimeout:  cfg.Fulfillment.PaymentTimeout,
		},
		log,
	)
	c.Status = fulfillment.NewStatusReader(c.Orders, c.Payments, c.Deliveries)
	c.Checkout = checkout.NewService(c.Orders, c.Payments, payAdapter, converter, c.Orchestrator, c.Scheduler,
		cfg.Fulfillment.PaymentTimeout, log)
	c.Runner = recurring.NewRunner(c.Schedules, c.Orders, c.Payments, c.Deliveries, payAdapter, converter,
		c.Orchestrator, c.Scheduler, cfg.Fulfillment.PaymentTimeout, log)
	c.Scanner = recurring.NewScanner(c.Schedules, c.Enqueuer, cfg.Lmstfy.RecurringQueue, cfg.Recurring.BatchSize, log)
	return c, cleanup, nil
}

// NewPaymentAdapter 按配置选择支付渠道
func NewPaymentAdapter(cfg config.PaymentConfig) payment.Adapter {
	if cfg.Mock {
		return payment.NewMockAdapter()
	}
	return payment.NewStripeAdapter(cfg.SecretKey, nil)
}

// NewProviderRegistry 按配置选择充值渠道
func NewProviderRegistry(cfg config.ProviderConfig, fcfg config.FulfillmentConfig) *provider.Registry {
	var adapter provider.Adapter
	if cfg.Mock {
		adapter = provider.NewMockAdapter(cfg.Name, nil)
	} else {
		adapter = provider.NewRESTAdapter(cfg.Name, cfg.BaseURL, cfg.APIKey, fcfg.ProviderTimeout)
	}
	return provider.NewRegistry(cfg.Name, cfg.Operators, adapter)
}
