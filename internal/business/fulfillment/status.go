package fulfillment

import (
	"context"
	"errors"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/entity"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rpdelivery"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rporder"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rppayment"
)

// StatusView 面向用户的订单状态，不包含重试次数与锁信息
type StatusView struct {
	OrderID string              `json:"order_id"`
	State   model.CustomerState `json:"state"`
	Message string              `json:"message,omitempty"`
}

// StatusReader 订单状态查询
type StatusReader struct {
	orders     rporder.OrderRepository
	payments   rppayment.PaymentRepository
	deliveries rpdelivery.DeliveryRepository
}

// NewStatusReader 创建状态查询
func NewStatusReader(orders rporder.OrderRepository, payments rppayment.PaymentRepository, deliveries rpdelivery.DeliveryRepository) *StatusReader {
	return &StatusReader{orders: orders, payments: payments, deliveries: deliveries}
}

// Status 订单不存在时返回 rporder.ErrNotFound
func (s *StatusReader) Status(ctx context.Context, orderID string) (*StatusView, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	latest, err := s.deliveries.LatestByOrder(ctx, orderID)
	if err != nil && !errors.Is(err, rpdelivery.ErrNotFound) {
		return nil, err
	}

	var payErr string
	if model.OrderStatus(order.Status) == model.OrderStatusCancelled || model.OrderStatus(order.Status) == model.OrderStatusRefunded {
		auth, err := s.payments.GetLatestByOrder(ctx, orderID)
		if err != nil && !errors.Is(err, rppayment.ErrNotFound) {
			return nil, err
		}
		if auth != nil {
			payErr = auth.ErrorMessage
		}
	}
	return Derive(order, latest, payErr), nil
}

// Derive 由订单状态与最近一次投递记录推导用户可见状态
func Derive(order *entity.Order, latest *entity.DeliveryAttemptLog, paymentError string) *StatusView {
	view := &StatusView{OrderID: order.ID, State: model.CustomerStateProcessing}

	switch model.OrderStatus(order.Status) {
	case model.OrderStatusFulfilled:
		view.State = model.CustomerStateDelivered
		return view
	case model.OrderStatusCancelled, model.OrderStatusRefunded:
		view.State = model.CustomerStateFailed
		view.Message = firstNonEmpty(logError(latest), paymentError, order.LastMessage, "order "+order.Status)
		return view
	}

	if latest != nil && model.DeliveryStatus(latest.Status).Succeeded() {
		view.State = model.CustomerStateDelivered
		return view
	}
	view.Message = logError(latest)
	return view
}

func logError(l *entity.DeliveryAttemptLog) string {
	if l == nil || model.DeliveryStatus(l.Status).Succeeded() {
		return ""
	}
	return l.ErrorMessage
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
