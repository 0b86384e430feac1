package framework

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// BaseHandler 解析任务信封，供各 Handler 取元信息与业务负载
type BaseHandler struct {
	meta       *JobMeta
	bizPayload json.RawMessage // job.Payload.Data.Data
}

// Job 标准 Job 结构
type Job struct {
	Payload *JobPayload `json:"payload"`
}

// JobPayload Job 负载
type JobPayload struct {
	Data *JobPayloadData `json:"data"`
}

// JobPayloadData Job 数据
type JobPayloadData struct {
	RequestID  string          `json:"request_id"`
	ActionType string          `json:"action_type"`
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
	Metadata   *JobMetadata    `json:"metadata,omitempty"`
}

// JobMetadata 调度元信息
type JobMetadata struct {
	JobKey string `json:"job_key,omitempty"` // 调度器去重键
}

// JobMeta Job 元信息
type JobMeta struct {
	RequestID  string
	ActionType string
	ID         string
	JobKey     string
}

// NewJob 构造标准 Job 信封
func NewJob(requestID, actionType, id, jobKey string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal job data failed: %w", err)
	}

	job := &Job{
		Payload: &JobPayload{
			Data: &JobPayloadData{
				RequestID:  requestID,
				ActionType: actionType,
				ID:         id,
				Data:       raw,
			},
		},
	}
	if jobKey != "" {
		job.Payload.Data.Metadata = &JobMetadata{JobKey: jobKey}
	}

	return json.Marshal(job)
}

// ParseJob 解析标准信封 {payload:{data:{...}}}
func (b *BaseHandler) ParseJob(ctx context.Context, rawData []byte) error {
	var job Job
	if err := json.Unmarshal(rawData, &job); err != nil {
		return wrapErr(err, "unmarshal job failed")
	}

	if job.Payload == nil || job.Payload.Data == nil {
		return wrapErr(nil, "invalid job structure: payload.data is nil")
	}

	data := job.Payload.Data
	b.meta = &JobMeta{
		RequestID:  data.RequestID,
		ActionType: data.ActionType,
		ID:         data.ID,
	}
	if data.Metadata != nil {
		b.meta.JobKey = data.Metadata.JobKey
	}

	b.bizPayload = data.Data

	return nil
}

// DecodePayload 将业务数据解析到 v
func (b *BaseHandler) DecodePayload(v interface{}) error {
	if len(b.bizPayload) == 0 {
		return wrapErr(nil, "empty business payload")
	}
	if err := json.Unmarshal(b.bizPayload, v); err != nil {
		return wrapErr(err, "unmarshal business payload failed")
	}
	return nil
}

func wrapErr(err error, msg string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return errors.New(msg)
}

// GetMeta 获取 meta
func (b *BaseHandler) GetMeta() *JobMeta {
	return b.meta
}

// SetMeta 覆盖 meta（如补全 RequestID）
func (b *BaseHandler) SetMeta(meta *JobMeta) {
	b.meta = meta
}
