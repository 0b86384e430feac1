// Package payment 银行卡预授权/扣款/撤销能力
package payment

import "context"

// Status 渠道无关的授权状态
type Status string

const (
	StatusRequiresPaymentMethod Status = "requires_payment_method"
	StatusRequiresAction        Status = "requires_action"
	StatusProcessing            Status = "processing"
	StatusCapturable            Status = "capturable"
	StatusSucceeded             Status = "succeeded"
	StatusCanceled              Status = "canceled"
	StatusFailed                Status = "failed"
)

// AuthorizeRequest 预授权请求，始终为手动扣款
type AuthorizeRequest struct {
	OrderID          string
	IdempotencyKey   string
	AmountMinor      int64
	Currency         string
	CustomerRef      string
	PaymentMethodRef string
	// OffSession 使用已保存的支付方式立即确认，无需用户在场
	OffSession bool
}

// Authorization 授权快照
type Authorization struct {
	ProviderRef   string
	Status        Status
	AmountMinor   int64
	Currency      string
	ClientSecret  string
	PaymentMethod string
	ErrorCode     string
	ErrorMessage  string
}

// Capturable 可扣款
func (a *Authorization) Capturable() bool {
	return a != nil && a.Status == StatusCapturable
}

// Adapter 支付渠道
type Adapter interface {
	Name() string
	Authorize(ctx context.Context, req *AuthorizeRequest) (*Authorization, error)
	Capture(ctx context.Context, providerRef string) (*Authorization, error)
	Cancel(ctx context.Context, providerRef string) (*Authorization, error)
	Retrieve(ctx context.Context, providerRef string) (*Authorization, error)
}
