package recurring

import (
	"context"
	"errors"
	"time"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rprecurring"
	redisinfra "github.com/Ajmal023/Afghan-Topup-sub000/pkg/infra/redis"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
)

// Enqueuer 带任务键去重的投递
type Enqueuer interface {
	Enqueue(ctx context.Context, rec *redisinfra.JobRecord, id string, payload interface{}, delay time.Duration) (bool, error)
}

// Scanner 扫描到期计划并为每个计划投递一个运行任务
type Scanner struct {
	schedules rprecurring.RecurringRepository
	enqueuer  Enqueuer
	queue     string
	batchSize int
	now       func() time.Time
	logger    logger.Logger
}

// NewScanner 创建扫描器
func NewScanner(schedules rprecurring.RecurringRepository, enqueuer Enqueuer, queue string, batchSize int, log logger.Logger) *Scanner {
	return &Scanner{
		schedules: schedules,
		enqueuer:  enqueuer,
		queue:     queue,
		batchSize: batchSize,
		now:       time.Now,
		logger:    log,
	}
}

// ScanOnce 返回本轮新投递的任务数；同一计划同一到期时间只投递一次
func (s *Scanner) ScanOnce(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return 0, err
	}

	var (
		enqueued int
		errs     []error
	)
	for i := range due {
		sch := &due[i]
		rec := &redisinfra.JobRecord{
			Key:        model.RecurringJobKey(sch.ID, sch.NextRunAt),
			Kind:       model.ActionRecurringRun,
			Queue:      s.queue,
			ScheduleID: sch.ID,
		}
		ok, err := s.enqueuer.Enqueue(ctx, rec, sch.ID, &model.RecurringRunJob{ScheduleID: sch.ID, DueAt: sch.NextRunAt.UTC()}, 0)
		if err != nil {
			s.logger.Errorf(ctx, "[Scanner] enqueue schedule %s failed: %v", sch.ID, err)
			errs = append(errs, err)
			continue
		}
		if ok {
			enqueued++
		}
	}
	if len(due) > 0 {
		s.logger.Infof(ctx, "[Scanner] %d due schedules, %d run jobs enqueued", len(due), enqueued)
	}
	return enqueued, errors.Join(errs...)
}
