package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/domains"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/domains/common"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/framework"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/config"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
)

// Manager 接口
type Manager interface {
	Start() error
	Shutdown()
}

// ManagerInstance Manager 实例
type ManagerInstance struct {
	ctx        context.Context
	cfg        *config.Config
	source     framework.MessageSource
	deps       *common.Deps
	scanner    Scanner
	workers    []Worker
	closing    *atomic.Bool
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	logger     logger.Logger
}

// NewManagerInstance scanner 为 nil 时不启动周期扫描
func NewManagerInstance(cfg *config.Config, source framework.MessageSource, deps *common.Deps, scanner Scanner, log logger.Logger) (*ManagerInstance, error) {
	m := &ManagerInstance{
		ctx:        context.Background(),
		cfg:        cfg,
		source:     source,
		deps:       deps,
		scanner:    scanner,
		closing:    atomic.NewBool(false),
		shutdownCh: make(chan struct{}),
		logger:     log,
	}
	if err := m.loadWorkers(); err != nil {
		return nil, fmt.Errorf("failed to load workers: %w", err)
	}
	return m, nil
}

// Start 启动所有 Worker，阻塞到 Shutdown 完成
func (m *ManagerInstance) Start() error {
	m.logger.Infof(m.ctx, "[Manager] Starting %d workers", len(m.workers))

	if m.closing.Load() {
		return fmt.Errorf("manager already shut down")
	}
	for _, worker := range m.workers {
		w := worker
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			w.Start()
		}()
		m.logger.Infof(m.ctx, "[Manager] Worker started: %s", w.GetName())
	}

	<-m.shutdownCh
	return nil
}

// Shutdown 优雅退出，可重复调用
func (m *ManagerInstance) Shutdown() {
	if !m.closing.CAS(false, true) {
		return
	}
	m.logger.Infof(m.ctx, "[Manager] Began to close")

	for _, worker := range m.workers {
		m.logger.Infof(m.ctx, "[Manager] Shutting down worker: %s", worker.GetName())
		worker.Shutdown()
	}
	m.wg.Wait()

	close(m.shutdownCh)
	m.logger.Infof(m.ctx, "[Manager] Shutdown complete")
}

func (m *ManagerInstance) loadWorkers() error {
	if len(m.cfg.Workers) == 0 && m.scanner == nil {
		return fmt.Errorf("no workers configured")
	}

	proc := domains.GetProcess(m.deps)
	for _, workerCfg := range m.cfg.Workers {
		subCfg := &framework.SubscriberConfig{
			QueueName:       workerCfg.QueueName,
			Concurrency:     workerCfg.Subscriber.Threads,
			Rate:            workerCfg.Subscriber.Rate,
			Timeout:         workerCfg.Subscriber.Timeout,
			TTR:             workerCfg.Subscriber.TTR,
			ErrorBackoff:    workerCfg.Subscriber.ErrorBackoff,
			MaxErrorBackoff: workerCfg.Subscriber.MaxBackoff,
		}
		procCfg := &framework.ProcessorConfig{
			Concurrency: workerCfg.Processor.Threads,
			BufferSize:  workerCfg.Processor.BufferSize,
			Timeout:     workerCfg.Processor.Timeout,
		}
		m.workers = append(m.workers, NewQueueWorker(m.ctx, workerCfg.Name, subCfg, procCfg, m.source, proc, m.logger))
	}

	if m.scanner != nil {
		m.workers = append(m.workers, NewScanLoop(m.ctx, m.scanner, m.cfg.Recurring.ScanInterval, m.logger))
	}
	return nil
}
