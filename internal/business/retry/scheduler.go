package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	redisinfra "github.com/Ajmal023/Afghan-Topup-sub000/pkg/infra/redis"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
)

// Scheduler 投递重试调度：第 N 次尝试延迟 (N-1)*step，超过上限不再调度
type Scheduler struct {
	enqueuer *Enqueuer
	queue    string
	maxTries int
	step     time.Duration
	logger   logger.Logger
}

// NewScheduler 创建重试调度器
func NewScheduler(enqueuer *Enqueuer, queue string, maxTries int, step time.Duration, log logger.Logger) *Scheduler {
	return &Scheduler{
		enqueuer: enqueuer,
		queue:    queue,
		maxTries: maxTries,
		step:     step,
		logger:   log,
	}
}

// MaxTries 尝试次数上限
func (s *Scheduler) MaxTries() int {
	return s.maxTries
}

// Delay 第 try 次尝试的延迟
func (s *Scheduler) Delay(try int) time.Duration {
	if try <= 1 {
		return 0
	}
	return time.Duration(try-1) * s.step
}

// ScheduleRetry 返回 false 表示未入队（超过上限或已调度过）
func (s *Scheduler) ScheduleRetry(ctx context.Context, job *model.AttemptJob) (bool, error) {
	if job.TryNumber < 1 {
		return false, fmt.Errorf("invalid try number %d", job.TryNumber)
	}
	if job.TryNumber > s.maxTries {
		s.logger.Warnf(ctx, "[Scheduler] try %d exceeds max %d for order=%s line=%s, not scheduling",
			job.TryNumber, s.maxTries, job.OrderID, job.OrderLineID)
		return false, nil
	}

	rec := &redisinfra.JobRecord{
		Key:         model.AttemptJobKey(job.OrderID, job.OrderLineID, job.TryNumber),
		Kind:        model.ActionTopupAttempt,
		Queue:       s.queue,
		OrderID:     job.OrderID,
		OrderLineID: job.OrderLineID,
		TryNumber:   job.TryNumber,
	}
	return s.enqueuer.Enqueue(ctx, rec, job.OrderID, job, s.Delay(job.TryNumber))
}

// ListJobs 按订单/订单行查询尚未完成的重试任务
func (s *Scheduler) ListJobs(ctx context.Context, orderID, lineID string) ([]*redisinfra.JobRecord, error) {
	return s.enqueuer.List(ctx, redisinfra.JobFilter{
		Kind:        model.ActionTopupAttempt,
		OrderID:     orderID,
		OrderLineID: lineID,
	})
}
