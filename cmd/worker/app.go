package main

import (
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/bootstrap"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/domains/common"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/worker"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/config"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
)

// InitializeApp 组装 worker 进程依赖
func InitializeApp(cfg *config.Config, log logger.Logger) (*worker.ManagerInstance, func(), error) {
	core, cleanup, err := bootstrap.NewCore(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	deps := &common.Deps{
		Ticker: core.Orchestrator,
		Runner: core.Runner,
		Jobs:   core.Enqueuer,
		Logger: log,
	}
	var scanner worker.Scanner
	if cfg.Recurring.Enabled {
		scanner = core.Scanner
	}

	mgr, err := worker.NewManagerInstance(cfg, core.Lmstfy, deps, scanner, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return mgr, cleanup, nil
}
