package domains

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bitleak/lmstfy/client"
	"github.com/google/uuid"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/domains/common"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/domains/common/response"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/framework"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/lmstfyx"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
)

// GetProcess 返回核心处理函数（注入到 Processor）
func GetProcess(deps *common.Deps) lmstfyx.Proc {
	log := deps.Logger
	return func(ctx context.Context, lmstfyJob *client.Job) *lmstfyx.JobResp {
		startTime := time.Now()

		// 1. 解析 Job
		base := &framework.BaseHandler{}
		if err := base.ParseJob(ctx, lmstfyJob.Data); err != nil {
			log.Errorf(ctx, "[GetProcess] parse job %s failed: %v", lmstfyJob.ID, err)
			return &lmstfyx.JobResp{Action: lmstfyx.JobRespStatusBury}
		}
		meta := base.GetMeta()
		if meta.RequestID == "" {
			meta.RequestID = uuid.NewString()
			base.SetMeta(meta)
		}

		// 2. 注入 TraceID 到 Context
		ctx = logger.WithTraceID(ctx, meta.RequestID)
		ctx = logger.WithActionType(ctx, meta.ActionType)
		if meta.JobKey != "" {
			ctx = logger.WithJobKey(ctx, meta.JobKey)
		}

		log.Infof(ctx, "[GetProcess] Processing job: action_type=%s, id=%s", meta.ActionType, meta.ID)

		// 3. 从 HandlerMap 获取 Handler
		factory, ok := HandlerMap[meta.ActionType]
		if !ok {
			log.Errorf(ctx, "[GetProcess] handler not found for action_type: %s", meta.ActionType)
			markDone(ctx, deps, meta)
			return &lmstfyx.JobResp{Action: lmstfyx.JobRespStatusBury}
		}

		if meta.JobKey != "" && deps.Jobs != nil {
			if err := deps.Jobs.MarkActive(ctx, meta.JobKey); err != nil {
				log.Warnf(ctx, "[GetProcess] mark job active failed: %v", err)
			}
		}

		// 4. 调用 Handler（捕获 panic）
		var resp *lmstfyx.JobResp
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf(ctx, "[GetProcess] handler panic: %v", r)
					resp = &lmstfyx.JobResp{Action: lmstfyx.JobRespStatusBury}
				}
			}()

			handler, err := factory(ctx, base, deps)
			if err != nil {
				log.Errorf(ctx, "[GetProcess] handler creation failed: %v", err)
				resp = &lmstfyx.JobResp{Action: lmstfyx.JobRespStatusBury}
				return
			}
			resp = doJobReport(ctx, handler.GetProcess(), log)
		}()

		// Release 的任务会被重新投递，登记保持 active
		if resp.Action != lmstfyx.JobRespStatusRelease {
			markDone(ctx, deps, meta)
		}

		log.Infof(ctx, "[GetProcess] Processing complete: action=%s, duration=%v", resp.Action, time.Since(startTime))
		return resp
	}
}

func markDone(ctx context.Context, deps *common.Deps, meta *framework.JobMeta) {
	if meta.JobKey == "" || deps.Jobs == nil {
		return
	}
	if err := deps.Jobs.MarkDone(ctx, meta.JobKey); err != nil {
		deps.Logger.Warnf(ctx, "[GetProcess] mark job done failed: %v", err)
	}
}

// doJobReport 生成 JobResp：成功 ACK，可重试错误 Release，其余 Bury
func doJobReport(ctx context.Context, resp *response.Response, log logger.Logger) *lmstfyx.JobResp {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Errorf(ctx, "[doJobReport] marshal response failed: %v", err)
	}

	switch {
	case resp.Error == nil:
		return &lmstfyx.JobResp{Action: lmstfyx.JobRespStatusSuccess, Data: data}
	case resp.Retryable():
		log.Warnf(ctx, "[doJobReport] retryable failure: %s", resp.Error.Message)
		return &lmstfyx.JobResp{Action: lmstfyx.JobRespStatusRelease, Data: data}
	default:
		log.Errorf(ctx, "[doJobReport] permanent failure: %s", resp.Error.Message)
		return &lmstfyx.JobResp{Action: lmstfyx.JobRespStatusBury, Data: data}
	}
}
