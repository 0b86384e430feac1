package recurring

import (
	"context"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/domains/common"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/domains/common/response"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/framework"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/errorutil"
)

// RunHandler 周期计划运行 Handler
type RunHandler struct {
	ctx  context.Context
	base *framework.BaseHandler
	deps *common.Deps
	job  model.RecurringRunJob
}

// NewRunHandler 解析运行任务负载
func NewRunHandler(ctx context.Context, base *framework.BaseHandler, deps *common.Deps) (common.HandlerServ, error) {
	h := &RunHandler{ctx: ctx, base: base, deps: deps}
	if err := base.DecodePayload(&h.job); err != nil {
		return nil, err
	}
	return h, nil
}

// GetProcess 执行一次运行
func (h *RunHandler) GetProcess() *response.Response {
	result := &response.RunResult{ScheduleID: h.job.ScheduleID}

	err := framework.NewPreProcessor(
		framework.Stage{Name: "validate", Fn: func(context.Context) error {
			if h.job.ScheduleID == "" || h.job.DueAt.IsZero() {
				return errorutil.NonRetriable("schedule_id and due_at are required")
			}
			return nil
		}},
		framework.Stage{Name: "run", Fn: func(ctx context.Context) error {
			res, err := h.deps.Runner.Run(ctx, &h.job)
			if err != nil {
				return err
			}
			result.OrderID = res.OrderID
			result.Outcome = string(res.Outcome)
			return nil
		}},
	).Run(h.ctx)

	resp := &response.Response{}
	resp.WrapResponse(result, h.base.GetMeta(), err)
	return resp
}
