package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/config"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
)

var (
	configPath = flag.String("config", "./config/config.yaml", "配置文件路径")
)

func main() {
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	// 2. 初始化 Logger
	zapLogger, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	log.Printf("Config loaded: %s, env: %s, workers: %d, recurring: %v",
		cfg.App.Name, cfg.App.Env, len(cfg.Workers), cfg.Recurring.Enabled)

	// 3. 组装依赖并创建 Manager
	mgr, cleanup, err := InitializeApp(cfg, zapLogger)
	if err != nil {
		log.Fatalf("Failed to initialize worker: %v", err)
	}
	defer cleanup()

	// 4. 启动 Manager（goroutine）
	startErr := make(chan error, 1)
	go func() {
		startErr <- mgr.Start()
	}()
	log.Println("Worker started. Press Ctrl+C to shutdown.")

	// 5. 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v, shutting down worker...", sig)
	case err := <-startErr:
		log.Printf("Manager exited: %v", err)
	}

	// 6. 优雅关闭 Manager
	mgr.Shutdown()
	log.Println("Worker exited gracefully")
}
