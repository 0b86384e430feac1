package response

import (
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/framework"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/errorutil"
)

// ResultI 业务结果接口
type ResultI interface {
	// Set 设置元数据和错误
	Set(meta *framework.JobMeta, err error)

	// GetStatus 获取状态
	GetStatus() string
}

// Response 统一响应结构
type Response struct {
	Error     *errorutil.Error   `json:"error"`
	Result    ResultI            `json:"result"`
	Processed bool               `json:"processed"`
	Meta      *framework.JobMeta `json:"meta"`
}

// WrapResponse 包装响应
func (r *Response) WrapResponse(result ResultI, meta *framework.JobMeta, err error) {
	result.Set(meta, err)

	r.Processed = err == nil
	r.Meta = meta
	r.Error = errorutil.Wrap(err)
	r.Result = result
}

// Retryable 处理失败且允许 lmstfy 重新投递
func (r *Response) Retryable() bool {
	return r.Error != nil && r.Error.Retryable
}
