package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/framework"
	redisinfra "github.com/Ajmal023/Afghan-Topup-sub000/pkg/infra/redis"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
)

// Queue 延迟队列
type Queue interface {
	Publish(queue string, data []byte, ttl, delay time.Duration) (string, error)
}

// Registry 任务键登记表
type Registry interface {
	Reserve(ctx context.Context, rec *redisinfra.JobRecord) (bool, error)
	Update(ctx context.Context, key string, fn func(rec *redisinfra.JobRecord)) error
	MarkStatus(ctx context.Context, key string, status redisinfra.JobStatus) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, filter redisinfra.JobFilter) ([]*redisinfra.JobRecord, error)
}

// Enqueuer 先登记任务键再投递，同一任务键只会投递一次
type Enqueuer struct {
	queue     Queue
	registry  Registry
	retention time.Duration
	logger    logger.Logger
}

// NewEnqueuer 创建 Enqueuer
func NewEnqueuer(queue Queue, registry Registry, retention time.Duration, log logger.Logger) *Enqueuer {
	return &Enqueuer{queue: queue, registry: registry, retention: retention, logger: log}
}

// Enqueue 返回 false 表示任务键已存在，本次为空操作
func (e *Enqueuer) Enqueue(ctx context.Context, rec *redisinfra.JobRecord, id string, payload interface{}, delay time.Duration) (bool, error) {
	rec.RunAt = time.Now().Add(delay)

	ok, err := e.registry.Reserve(ctx, rec)
	if err != nil {
		return false, err
	}
	if !ok {
		e.logger.Infof(ctx, "[Enqueuer] job %s already scheduled, skip", rec.Key)
		return false, nil
	}

	data, err := framework.NewJob(uuid.NewString(), rec.Kind, id, rec.Key, payload)
	if err != nil {
		_ = e.registry.Delete(ctx, rec.Key)
		return false, err
	}

	jobID, err := e.queue.Publish(rec.Queue, data, delay+e.retention, delay)
	if err != nil {
		// 回滚登记，允许调用方重试
		if delErr := e.registry.Delete(ctx, rec.Key); delErr != nil {
			e.logger.Errorf(ctx, "[Enqueuer] rollback job %s failed: %v", rec.Key, delErr)
		}
		return false, fmt.Errorf("publish %s: %w", rec.Key, err)
	}

	if err := e.registry.Update(ctx, rec.Key, func(r *redisinfra.JobRecord) { r.JobID = jobID }); err != nil {
		e.logger.Warnf(ctx, "[Enqueuer] record job id for %s failed: %v", rec.Key, err)
	}
	e.logger.Infof(ctx, "[Enqueuer] job %s published: queue=%s job_id=%s delay=%s", rec.Key, rec.Queue, jobID, delay)
	return true, nil
}

// MarkActive 任务开始执行
func (e *Enqueuer) MarkActive(ctx context.Context, key string) error {
	return e.registry.MarkStatus(ctx, key, redisinfra.JobStatusActive)
}

// MarkDone 任务执行结束（不再重投）
func (e *Enqueuer) MarkDone(ctx context.Context, key string) error {
	return e.registry.MarkStatus(ctx, key, redisinfra.JobStatusDone)
}

// List 查询登记的任务
func (e *Enqueuer) List(ctx context.Context, filter redisinfra.JobFilter) ([]*redisinfra.JobRecord, error) {
	return e.registry.List(ctx, filter)
}
