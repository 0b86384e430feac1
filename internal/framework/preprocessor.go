package framework

import (
	"context"
	"fmt"
)

// Stage 一个命名的处理步骤
type Stage struct {
	Name string
	Fn   ProcessorFunc
}

// PreProcessor 函数链处理器
type PreProcessor struct {
	stages []Stage
}

// NewPreProcessor 创建函数链处理器
func NewPreProcessor(stages ...Stage) *PreProcessor {
	return &PreProcessor{stages: stages}
}

// Run 执行函数链
// 任一函数返回 error 则立即停止；原始错误通过 %w 保留（可重试标记不丢失）
func (p *PreProcessor) Run(ctx context.Context) error {
	for _, stage := range p.stages {
		if err := stage.Fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", stage.Name, err)
		}
	}
	return nil
}
