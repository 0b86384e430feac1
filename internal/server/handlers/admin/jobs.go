package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	redisinfra "github.com/Ajmal023/Afghan-Topup-sub000/pkg/infra/redis"
)

// JobLister 调度任务查询
type JobLister interface {
	List(ctx context.Context, filter redisinfra.JobFilter) ([]*redisinfra.JobRecord, error)
}

// JobsHandler 调度任务查询处理器
type JobsHandler struct {
	jobs JobLister
}

// NewJobsHandler 创建调度任务查询处理器
func NewJobsHandler(jobs JobLister) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

type listJobsQuery struct {
	Kind        string `form:"kind"`
	OrderID     string `form:"order_id"`
	OrderLineID string `form:"order_line_id"`
	IncludeDone bool   `form:"include_done"`
	Limit       int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// List 查询已调度的任务
// GET /api/v1/admin/jobs?order_id=&order_line_id=&kind=
func (h *JobsHandler) List(c *gin.Context) (int, interface{}, error) {
	var q listJobsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return http.StatusBadRequest, nil, err
	}
	if q.Limit == 0 {
		q.Limit = 100
	}

	jobs, err := h.jobs.List(c.Request.Context(), redisinfra.JobFilter{
		Kind:        q.Kind,
		OrderID:     q.OrderID,
		OrderLineID: q.OrderLineID,
		IncludeDone: q.IncludeDone,
		Limit:       q.Limit,
	})
	if err != nil {
		return http.StatusInternalServerError, nil, err
	}
	if jobs == nil {
		jobs = []*redisinfra.JobRecord{}
	}
	return http.StatusOK, gin.H{"jobs": jobs}, nil
}
