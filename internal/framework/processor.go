package framework

import (
	"context"
	"sync"
	"time"

	"github.com/bitleak/lmstfy/client"
	"go.uber.org/atomic"

	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/lmstfyx"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
)

// Stats 处理结果计数
type Stats struct {
	Acked    int64
	Released int64
	Buried   int64
	Panicked int64
}

// Processor 从 inputChan 取任务，执行 proc 并按结果 ACK
//
//	Success -> ACK
//	Bury    -> ACK，记录原始负载
//	Release -> 不 ACK，TTR 到期后由队列重投
//
// proc panic 按 Release 处理。
type Processor struct {
	cfg      *ProcessorConfig
	proc     lmstfyx.Proc
	source   MessageSource
	logger   Logger
	draining chan struct{}
	wg       sync.WaitGroup

	acked, released, buried, panicked atomic.Int64
}

// NewProcessor 创建处理器
func NewProcessor(cfg *ProcessorConfig, proc lmstfyx.Proc, source MessageSource, logger Logger) *Processor {
	cfg.normalize()
	return &Processor{
		cfg:      cfg,
		proc:     proc,
		source:   source,
		logger:   logger,
		draining: make(chan struct{}),
	}
}

// Start 启动 Concurrency 个处理协程
func (p *Processor) Start(ctx context.Context, in <-chan *Message) {
	p.logger.Infof(ctx, "[Processor] handlers=%d timeout=%s", p.cfg.Concurrency, p.cfg.Timeout)
	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.run(ctx, i, in)
	}
}

// SignalShutdown 进入排空模式，处理完 inputChan 中剩余任务后退出
func (p *Processor) SignalShutdown() {
	close(p.draining)
}

// Wait 等待所有处理协程退出
func (p *Processor) Wait() {
	p.wg.Wait()
	s := p.Stats()
	p.logger.Infof(context.Background(), "[Processor] stopped acked=%d released=%d buried=%d panicked=%d",
		s.Acked, s.Released, s.Buried, s.Panicked)
}

// Stats 返回当前计数快照
func (p *Processor) Stats() Stats {
	return Stats{
		Acked:    p.acked.Load(),
		Released: p.released.Load(),
		Buried:   p.buried.Load(),
		Panicked: p.panicked.Load(),
	}
}

func (p *Processor) run(ctx context.Context, id int, in <-chan *Message) {
	defer p.wg.Done()

	for {
		select {
		case msg := <-in:
			p.handle(ctx, id, msg)
		case <-p.draining:
			n := 0
			for {
				select {
				case msg := <-in:
					p.handle(ctx, id, msg)
					n++
				default:
					if n > 0 {
						p.logger.Infof(ctx, "[Processor-%d] drained %d jobs", id, n)
					}
					return
				}
			}
		}
	}
}

func (p *Processor) handle(ctx context.Context, id int, msg *Message) {
	if msg == nil {
		return
	}
	start := time.Now()

	jobCtx, cancel := context.WithTimeout(logger.WithWorkerID(ctx, id), p.cfg.Timeout)
	defer cancel()

	resp := p.invoke(jobCtx, id, &client.Job{ID: msg.ID, Queue: msg.Queue, Data: msg.Data})

	if resp.Action == lmstfyx.JobRespStatusRelease {
		p.released.Inc()
		p.logger.Warnf(jobCtx, "[Processor-%d] job %s released, cost=%s", id, msg.ID, time.Since(start))
		return
	}

	if err := p.source.Ack(msg.Queue, msg.ID); err != nil {
		// ACK 失败的任务会被重投，下游依赖幂等键去重
		p.logger.Errorf(jobCtx, "[Processor-%d] ack %s: %v", id, msg.ID, err)
	}
	if resp.Action == lmstfyx.JobRespStatusBury {
		p.buried.Inc()
		p.logger.Errorf(jobCtx, "[Processor-%d] job %s buried, data=%s", id, msg.ID, string(msg.Data))
		return
	}
	p.acked.Inc()
	p.logger.Infof(jobCtx, "[Processor-%d] job %s done, cost=%s", id, msg.ID, time.Since(start))
}

func (p *Processor) invoke(ctx context.Context, id int, job *client.Job) (resp *lmstfyx.JobResp) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Inc()
			p.logger.Errorf(ctx, "[Processor-%d] job %s panic: %v", id, job.ID, r)
			resp = &lmstfyx.JobResp{Action: lmstfyx.JobRespStatusRelease}
		}
	}()

	if resp = p.proc(ctx, job); resp == nil {
		resp = &lmstfyx.JobResp{Action: lmstfyx.JobRespStatusSuccess}
	}
	return resp
}
