// Package provider 上游充值渠道适配
package provider

import (
	"context"
	"encoding/json"
)

// Status 投递结果
type Status string

const (
	StatusSent      Status = "sent"
	StatusAccepted  Status = "accepted"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// 错误码
const (
	CodeNetwork  = "NETWORK"
	CodeTimeout  = "TIMEOUT"
	CodeAuth     = "AUTH"
	CodeConfig   = "CONFIG"
	CodeUpstream = "UPSTREAM"
	CodeRejected = "REJECTED"
	CodeDecode   = "DECODE"
)

// IsTerminalCode 鉴权/配置类错误重试无意义
func IsTerminalCode(code string) bool {
	return code == CodeAuth || code == CodeConfig
}

// Request 一次投递请求
type Request struct {
	OrderID           string `json:"order_id"`
	OrderLineID       string `json:"order_line_id"`
	ExternalAttemptID string `json:"external_attempt_id"`
	Operator          string `json:"operator"`
	ProductID         string `json:"product_id"`
	VariantID         string `json:"variant_id"`
	Destination       string `json:"destination"`
	AmountMinor       int64  `json:"amount_minor"`
	Currency          string `json:"currency"`
	TryNumber         int    `json:"-"`
}

// Outcome 投递结果；RawRequest/RawResponse 原样写入投递记录
type Outcome struct {
	Status        Status
	ProviderTxnID string
	ErrorCode     string
	ErrorMessage  string
	RawRequest    json.RawMessage
	RawResponse   json.RawMessage
}

// Succeeded 上游已接受
func (o *Outcome) Succeeded() bool {
	return o.Status == StatusAccepted || o.Status == StatusDelivered
}

// Terminal 失败且不可重试
func (o *Outcome) Terminal() bool {
	return !o.Succeeded() && IsTerminalCode(o.ErrorCode)
}

// Adapter 充值渠道能力；同一 ExternalAttemptID 重复调用不得重复到账
type Adapter interface {
	Name() string
	AttemptDelivery(ctx context.Context, req *Request) (*Outcome, error)
}
