package response

import (
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/framework"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/errorutil"
)

const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// AttemptResult 投递任务结果（实现 ResultI 接口）
type AttemptResult struct {
	ID          string           `json:"id"`
	Status      string           `json:"status"`
	OrderID     string           `json:"order_id"`
	OrderLineID string           `json:"order_line_id"`
	TryNumber   int              `json:"try_number"`
	Outcome     string           `json:"outcome,omitempty"`
	ErrorCode   string           `json:"error_code,omitempty"`
	Error       *errorutil.Error `json:"error,omitempty"`
}

// Set 实现 ResultI 接口
func (r *AttemptResult) Set(meta *framework.JobMeta, err error) {
	r.ID = meta.ID
	if err != nil {
		r.Status = StatusFailed
		r.Error = errorutil.Wrap(err)
		return
	}
	r.Status = StatusSuccess
}

// GetStatus 实现 ResultI 接口
func (r *AttemptResult) GetStatus() string {
	return r.Status
}

// RunResult 周期任务结果
type RunResult struct {
	ID         string           `json:"id"`
	Status     string           `json:"status"`
	ScheduleID string           `json:"schedule_id"`
	OrderID    string           `json:"order_id,omitempty"`
	Outcome    string           `json:"outcome,omitempty"`
	Error      *errorutil.Error `json:"error,omitempty"`
}

// Set 实现 ResultI 接口
func (r *RunResult) Set(meta *framework.JobMeta, err error) {
	r.ID = meta.ID
	if err != nil {
		r.Status = StatusFailed
		r.Error = errorutil.Wrap(err)
		return
	}
	r.Status = StatusSuccess
}

// GetStatus 实现 ResultI 接口
func (r *RunResult) GetStatus() string {
	return r.Status
}
