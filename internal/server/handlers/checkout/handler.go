package checkout

import (
	"context"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/business/checkout"
)

// Service 下单服务
type Service interface {
	Start(ctx context.Context, in *checkout.StartInput) (*checkout.StartResult, error)
	Complete(ctx context.Context, orderID string) (*checkout.CompleteResult, error)
}

// CheckoutHandler 下单 HTTP 处理器
type CheckoutHandler struct {
	service Service
}

// NewCheckoutHandler 创建下单处理器实例
func NewCheckoutHandler(service Service) *CheckoutHandler {
	return &CheckoutHandler{service: service}
}
