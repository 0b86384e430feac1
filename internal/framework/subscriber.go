package framework

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Subscriber 从队列拉取任务并转交给 Processor
//
// 连续拉取失败时按 ErrorBackoff 指数退避，上限 MaxErrorBackoff，成功一次即复位。
type Subscriber struct {
	cfg    *SubscriberConfig
	source MessageSource
	logger Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pulled   atomic.Int64
	failures atomic.Int64
}

// NewSubscriber 创建订阅者
func NewSubscriber(cfg *SubscriberConfig, source MessageSource, logger Logger) *Subscriber {
	cfg.normalize()
	return &Subscriber{cfg: cfg, source: source, logger: logger}
}

// Start 启动 Concurrency 个拉取协程
func (s *Subscriber) Start(parentCtx context.Context, out chan<- *Message) {
	ctx, cancel := context.WithCancel(parentCtx)
	s.cancel = cancel

	s.logger.Infof(ctx, "[Subscriber] queue=%s pullers=%d", s.cfg.QueueName, s.cfg.Concurrency)
	for i := 0; i < s.cfg.Concurrency; i++ {
		s.wg.Add(1)
		go s.pull(ctx, i, out)
	}
}

// Stop 停止拉取新任务
func (s *Subscriber) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait 等待所有拉取协程退出
func (s *Subscriber) Wait() {
	s.wg.Wait()
	s.logger.Infof(context.Background(), "[Subscriber] queue=%s stopped pulled=%d consume_errors=%d",
		s.cfg.QueueName, s.pulled.Load(), s.failures.Load())
}

// Pulled 已转交给 Processor 的任务数
func (s *Subscriber) Pulled() int64 {
	return s.pulled.Load()
}

func (s *Subscriber) pull(ctx context.Context, id int, out chan<- *Message) {
	defer s.wg.Done()

	streak := 0
	for ctx.Err() == nil {
		msg, err := s.source.Consume(s.cfg.QueueName, s.cfg.Timeout, s.cfg.TTR)
		if err != nil {
			streak++
			s.failures.Inc()
			backoff := s.backoff(streak)
			s.logger.Warnf(ctx, "[Subscriber-%d] consume queue=%s: %v, backoff %s", id, s.cfg.QueueName, err, backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			continue
		}
		streak = 0
		if msg == nil {
			continue
		}

		select {
		case out <- msg:
			s.pulled.Inc()
		case <-ctx.Done():
			// 未 ACK 的任务在 TTR 到期后由队列重新投递
			s.logger.Warnf(ctx, "[Subscriber-%d] shutdown, leaving job %s for redelivery", id, msg.ID)
			return
		}

		if s.cfg.Rate > 0 && !sleepCtx(ctx, s.cfg.Rate) {
			return
		}
	}
}

func (s *Subscriber) backoff(streak int) time.Duration {
	d := s.cfg.ErrorBackoff
	for i := 1; i < streak && d < s.cfg.MaxErrorBackoff; i++ {
		d *= 2
	}
	if d > s.cfg.MaxErrorBackoff {
		d = s.cfg.MaxErrorBackoff
	}
	return d
}

// sleepCtx 休眠 d，ctx 取消时提前返回 false
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
