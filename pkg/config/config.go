package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	MySQL       MySQLConfig       `mapstructure:"mysql"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Lmstfy      LmstfyConfig      `mapstructure:"lmstfy"`
	Workers     []WorkerConfig    `mapstructure:"workers"`
	Fulfillment FulfillmentConfig `mapstructure:"fulfillment"`
	Recurring   RecurringConfig   `mapstructure:"recurring"`
	Provider    ProviderConfig    `mapstructure:"provider"`
	Payment     PaymentConfig     `mapstructure:"payment"`
	FX          FXConfig          `mapstructure:"fx"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig HTTP server
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	IdempotencyTTL  time.Duration `mapstructure:"idempotency_ttl"`
	MaxStatusWait   time.Duration `mapstructure:"max_status_wait"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MySQLConfig MySQL 配置
type MySQLConfig struct {
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	ConnMaxLife  time.Duration `mapstructure:"conn_max_life"`
	AutoMigrate  bool          `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LmstfyConfig Lmstfy 配置
type LmstfyConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	Token     string `mapstructure:"token"`
	// AttemptQueue carries delayed delivery retries
	AttemptQueue string `mapstructure:"attempt_queue"`
	// RecurringQueue carries recurring schedule runs
	RecurringQueue string `mapstructure:"recurring_queue"`
	// Tries is how many times lmstfy redelivers an un-acked job
	Tries uint16 `mapstructure:"tries"`
}

// WorkerConfig Worker 配置
type WorkerConfig struct {
	Name       string           `mapstructure:"name"`
	QueueName  string           `mapstructure:"queue_name"`
	Subscriber SubscriberConfig `mapstructure:"subscriber"`
	Processor  ProcessorConfig  `mapstructure:"processor"`
}

// SubscriberConfig Subscriber 配置
type SubscriberConfig struct {
	Threads      int           `mapstructure:"threads"`       // 并发拉取数
	Rate         time.Duration `mapstructure:"rate"`          // 拉取速率
	Timeout      time.Duration `mapstructure:"timeout"`       // 拉取超时
	TTR          time.Duration `mapstructure:"ttr"`           // Time-To-Run
	ErrorBackoff time.Duration `mapstructure:"error_backoff"` // 错误退避时间
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`   // 连续错误退避上限
}

// ProcessorConfig Processor 配置
type ProcessorConfig struct {
	Threads    int           `mapstructure:"threads"`     // 并发处理数
	BufferSize int           `mapstructure:"buffer_size"` // Channel 缓冲大小
	Timeout    time.Duration `mapstructure:"timeout"`     // 单个任务超时
}

// FulfillmentConfig delivery attempt pipeline tuning
type FulfillmentConfig struct {
	MaxTries        int           `mapstructure:"max_tries"`
	RetryStep       time.Duration `mapstructure:"retry_step"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
	PaymentTimeout  time.Duration `mapstructure:"payment_timeout"`
	JobRetention    time.Duration `mapstructure:"job_retention"`
}

// RecurringConfig recurring scanner tuning
type RecurringConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ScanInterval time.Duration `mapstructure:"scan_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

// ProviderConfig delivery upstream
type ProviderConfig struct {
	Name    string `mapstructure:"name"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	// Mock switches to the in-process simulator
	Mock bool `mapstructure:"mock"`
	// Operators maps operator code to provider name; unknown operators use Name
	Operators map[string]string `mapstructure:"operators"`
}

// PaymentConfig card processor
type PaymentConfig struct {
	Provider  string `mapstructure:"provider"`
	SecretKey string `mapstructure:"secret_key"`
	Mock      bool   `mapstructure:"mock"`
}

// FXConfig static conversion table, units of USD per 1 unit of currency
type FXConfig struct {
	Rates map[string]float64 `mapstructure:"rates"`
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TOPUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.IdempotencyTTL <= 0 {
		c.Server.IdempotencyTTL = 24 * time.Hour
	}
	if c.Server.MaxStatusWait <= 0 {
		c.Server.MaxStatusWait = 20 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Lmstfy.Namespace == "" {
		c.Lmstfy.Namespace = "topup"
	}
	if c.Lmstfy.AttemptQueue == "" {
		c.Lmstfy.AttemptQueue = "topup_attempt"
	}
	if c.Lmstfy.RecurringQueue == "" {
		c.Lmstfy.RecurringQueue = "recurring_run"
	}
	if c.Lmstfy.Tries == 0 {
		c.Lmstfy.Tries = 3
	}
	if c.Fulfillment.MaxTries <= 0 {
		c.Fulfillment.MaxTries = 5
	}
	if c.Fulfillment.RetryStep <= 0 {
		c.Fulfillment.RetryStep = time.Minute
	}
	if c.Fulfillment.ProviderTimeout <= 0 {
		c.Fulfillment.ProviderTimeout = 30 * time.Second
	}
	if c.Fulfillment.PaymentTimeout <= 0 {
		c.Fulfillment.PaymentTimeout = 20 * time.Second
	}
	if c.Fulfillment.LockTTL <= 0 {
		c.Fulfillment.LockTTL = c.Fulfillment.ProviderTimeout + c.Fulfillment.PaymentTimeout + 15*time.Second
	}
	if c.Fulfillment.JobRetention <= 0 {
		c.Fulfillment.JobRetention = 24 * time.Hour
	}
	if c.Recurring.ScanInterval <= 0 {
		c.Recurring.ScanInterval = 5 * time.Minute
	}
	if c.Recurring.BatchSize <= 0 {
		c.Recurring.BatchSize = 500
	}
	if c.Provider.Name == "" {
		c.Provider.Name = "default"
	}
	if c.Payment.Provider == "" {
		c.Payment.Provider = "stripe"
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if c.MySQL.DSN == "" {
		return fmt.Errorf("mysql.dsn is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Lmstfy.Host == "" {
		return fmt.Errorf("lmstfy.host is required")
	}
	if !c.Provider.Mock && c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required unless provider.mock is set")
	}
	if !c.Payment.Mock && c.Payment.SecretKey == "" {
		return fmt.Errorf("payment.secret_key is required unless payment.mock is set")
	}
	// a lock that can expire while the provider call is still running lets a second tick in
	// 锁内依次调用渠道与扣款
	if c.Fulfillment.LockTTL <= c.Fulfillment.ProviderTimeout+c.Fulfillment.PaymentTimeout {
		return fmt.Errorf("fulfillment.lock_ttl (%s) must exceed provider_timeout + payment_timeout (%s + %s)",
			c.Fulfillment.LockTTL, c.Fulfillment.ProviderTimeout, c.Fulfillment.PaymentTimeout)
	}
	for _, w := range c.Workers {
		if w.QueueName == "" {
			return fmt.Errorf("worker %q: queue_name is required", w.Name)
		}
	}
	return nil
}
