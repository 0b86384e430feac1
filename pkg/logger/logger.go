package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 日志接口，字段从 ctx 中提取
type Logger interface {
	Debugf(ctx context.Context, format string, args ...interface{})
	Infof(ctx context.Context, format string, args ...interface{})
	Warnf(ctx context.Context, format string, args ...interface{})
	Errorf(ctx context.Context, format string, args ...interface{})
	Sync() error
}

type ctxKey string

const (
	keyTraceID    ctxKey = "trace_id"
	keyWorkerID   ctxKey = "worker_id"
	keyActionType ctxKey = "action_type"
	keyOrderID    ctxKey = "order_id"
	keyJobKey     ctxKey = "job_key"
	keyScheduleID ctxKey = "schedule_id"
	keyTry        ctxKey = "try"
)

// 输出顺序固定
var stringKeys = []ctxKey{keyTraceID, keyActionType, keyJobKey, keyOrderID, keyScheduleID}

// WithTraceID 注入 trace_id
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// WithWorkerID 注入 worker_id
func WithWorkerID(ctx context.Context, workerID int) context.Context {
	return context.WithValue(ctx, keyWorkerID, workerID)
}

// WithActionType 注入 action_type
func WithActionType(ctx context.Context, actionType string) context.Context {
	return context.WithValue(ctx, keyActionType, actionType)
}

// WithOrderID 注入 order_id
func WithOrderID(ctx context.Context, orderID string) context.Context {
	return context.WithValue(ctx, keyOrderID, orderID)
}

// WithJobKey 注入 job_key
func WithJobKey(ctx context.Context, jobKey string) context.Context {
	return context.WithValue(ctx, keyJobKey, jobKey)
}

// WithScheduleID 注入 schedule_id
func WithScheduleID(ctx context.Context, scheduleID string) context.Context {
	return context.WithValue(ctx, keyScheduleID, scheduleID)
}

// WithTry 注入投递次数
func WithTry(ctx context.Context, try int) context.Context {
	return context.WithValue(ctx, keyTry, try)
}

// TraceID returns the trace id carried by ctx, if any
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(keyTraceID).(string)
	return v
}

// ZapLogger Zap 日志实现
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger 创建 JSON 输出的 Zap 日志，level 无法识别时使用 info
func NewZapLogger(level string) (Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			lvl = zapcore.InfoLevel
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Encoding:         "json",
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &ZapLogger{logger: z}, nil
}

// NewFromZap 包装已有的 zap.Logger
func NewFromZap(z *zap.Logger) Logger {
	return &ZapLogger{logger: z}
}

// NewNop 丢弃所有日志（测试用）
func NewNop() Logger {
	return &ZapLogger{logger: zap.NewNop()}
}

// Zap exposes the underlying logger for libraries that want one
func (l *ZapLogger) Zap() *zap.Logger {
	return l.logger
}

func fields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	out := make([]zap.Field, 0, len(stringKeys)+2)
	for _, k := range stringKeys {
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			out = append(out, zap.String(string(k), v))
		}
	}
	if v, ok := ctx.Value(keyWorkerID).(int); ok {
		out = append(out, zap.Int(string(keyWorkerID), v))
	}
	if v, ok := ctx.Value(keyTry).(int); ok && v > 0 {
		out = append(out, zap.Int(string(keyTry), v))
	}
	return out
}

func (l *ZapLogger) Debugf(ctx context.Context, format string, args ...interface{}) {
	if ce := l.logger.Check(zapcore.DebugLevel, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write(fields(ctx)...)
	}
}

func (l *ZapLogger) Infof(ctx context.Context, format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...), fields(ctx)...)
}

func (l *ZapLogger) Warnf(ctx context.Context, format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), fields(ctx)...)
}

func (l *ZapLogger) Errorf(ctx context.Context, format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), fields(ctx)...)
}

// Sync 同步日志缓冲区
func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}
