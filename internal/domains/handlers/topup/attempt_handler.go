package topup

import (
	"context"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/domains/common"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/domains/common/response"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/framework"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/errorutil"
)

// AttemptHandler 投递尝试 Handler
type AttemptHandler struct {
	ctx  context.Context
	base *framework.BaseHandler
	deps *common.Deps
	job  model.AttemptJob
}

// NewAttemptHandler 解析投递任务负载
func NewAttemptHandler(ctx context.Context, base *framework.BaseHandler, deps *common.Deps) (common.HandlerServ, error) {
	h := &AttemptHandler{ctx: ctx, base: base, deps: deps}
	if err := base.DecodePayload(&h.job); err != nil {
		return nil, err
	}
	return h, nil
}

// GetProcess 执行一次 tick
func (h *AttemptHandler) GetProcess() *response.Response {
	result := &response.AttemptResult{
		OrderID:     h.job.OrderID,
		OrderLineID: h.job.OrderLineID,
		TryNumber:   h.job.TryNumber,
	}

	chain := framework.NewPreProcessor(
		framework.Stage{Name: "validate", Fn: h.validate},
		framework.Stage{Name: "tick", Fn: func(ctx context.Context) error { return h.tick(ctx, result) }},
	)
	err := chain.Run(h.ctx)

	resp := &response.Response{}
	resp.WrapResponse(result, h.base.GetMeta(), err)
	return resp
}

func (h *AttemptHandler) validate(ctx context.Context) error {
	if h.job.OrderID == "" || h.job.OrderLineID == "" {
		return errorutil.NonRetriable("order_id and order_line_id are required")
	}
	if h.job.TryNumber < 1 {
		return errorutil.NonRetriable("try_number must be positive")
	}
	return nil
}

func (h *AttemptHandler) tick(ctx context.Context, result *response.AttemptResult) error {
	res, err := h.deps.Ticker.Tick(ctx, &h.job)
	if err != nil {
		return err
	}
	result.Outcome = string(res.Outcome)
	result.ErrorCode = res.ErrorCode
	return nil
}
