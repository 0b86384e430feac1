package common

import (
	"context"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/business/fulfillment"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/business/recurring"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/domains/common/response"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/framework"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
)

// AttemptTicker 执行一次投递尝试
type AttemptTicker interface {
	Tick(ctx context.Context, job *model.AttemptJob) (*fulfillment.Result, error)
}

// ScheduleRunner 执行一次周期计划
type ScheduleRunner interface {
	Run(ctx context.Context, job *model.RecurringRunJob) (*recurring.RunResult, error)
}

// JobTracker 调度器任务登记状态
type JobTracker interface {
	MarkActive(ctx context.Context, key string) error
	MarkDone(ctx context.Context, key string) error
}

// Deps Handler 依赖
type Deps struct {
	Ticker AttemptTicker
	Runner ScheduleRunner
	Jobs   JobTracker
	Logger logger.Logger
}

// HandlerServProc Handler 构造函数类型
type HandlerServProc func(ctx context.Context, base *framework.BaseHandler, deps *Deps) (HandlerServ, error)

// HandlerServ Handler 接口
type HandlerServ interface {
	GetProcess() *response.Response
}
