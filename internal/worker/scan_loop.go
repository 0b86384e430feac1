package worker

import (
	"context"
	"time"

	"go.uber.org/atomic"

	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
)

// Scanner 到期计划扫描
type Scanner interface {
	ScanOnce(ctx context.Context) (int, error)
}

// ScanLoop 定时扫描到期的周期计划
type ScanLoop struct {
	ctx      context.Context
	cancel   context.CancelFunc
	scanner  Scanner
	interval time.Duration
	closing  *atomic.Bool
	started  *atomic.Bool
	done     chan struct{}
	logger   logger.Logger
}

// NewScanLoop 创建扫描循环
func NewScanLoop(ctx context.Context, scanner Scanner, interval time.Duration, log logger.Logger) *ScanLoop {
	ctx, cancel := context.WithCancel(ctx)
	return &ScanLoop{
		ctx:      ctx,
		cancel:   cancel,
		scanner:  scanner,
		interval: interval,
		closing:  atomic.NewBool(false),
		started:  atomic.NewBool(false),
		done:     make(chan struct{}),
		logger:   log,
	}
}

// Start 立即扫描一次，之后每个 interval 扫描一次，阻塞到 Shutdown
func (l *ScanLoop) Start() {
	if !l.started.CAS(false, true) {
		return
	}
	defer close(l.done)
	l.logger.Infof(l.ctx, "[ScanLoop] started, interval=%s", l.interval)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		l.scan()
		select {
		case <-l.ctx.Done():
			l.logger.Infof(l.ctx, "[ScanLoop] exiting")
			return
		case <-ticker.C:
		}
	}
}

func (l *ScanLoop) scan() {
	if l.closing.Load() {
		return
	}
	n, err := l.scanner.ScanOnce(l.ctx)
	if err != nil {
		l.logger.Errorf(l.ctx, "[ScanLoop] scan failed after %d enqueued: %v", n, err)
	}
}

// Shutdown 停止扫描并等待当前一轮结束
func (l *ScanLoop) Shutdown() {
	if !l.closing.CAS(false, true) {
		return
	}
	l.cancel()
	if l.started.Load() {
		<-l.done
	}
}

// GetName 获取 Worker 名称
func (l *ScanLoop) GetName() string {
	return "recurring-scanner"
}
