package model

import "fmt"

// OrderStatus 订单生命周期状态
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// PaymentStatus 支付授权状态
type PaymentStatus string

const (
	PaymentStatusCreated   PaymentStatus = "created"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// DeliveryStatus 单次上游投递结果
type DeliveryStatus string

const (
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusAccepted  DeliveryStatus = "accepted"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// Succeeded reports whether the provider took the top-up
func (s DeliveryStatus) Succeeded() bool {
	return s == DeliveryStatusAccepted || s == DeliveryStatusDelivered
}

// CustomerState coarse status shown to customers
type CustomerState string

const (
	CustomerStateProcessing CustomerState = "processing"
	CustomerStateDelivered  CustomerState = "delivered"
	CustomerStateFailed     CustomerState = "failed"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:   {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:      {OrderStatusFulfilled, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusFulfilled: {OrderStatusRefunded},
	OrderStatusCancelled: {},
	OrderStatusRefunded:  {},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusCreated:   {PaymentStatusPending, PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusPending:   {PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusSucceeded: {},
	PaymentStatusFailed:    {},
	PaymentStatusCancelled: {},
}

// TransitionError 非法状态迁移
type TransitionError struct {
	Kind string
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition %s -> %s", e.Kind, e.From, e.To)
}

// Valid reports whether s is a known order status
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// Terminal reports whether no further transition is possible or meaningful for delivery
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFulfilled || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// ValidateOrderTransition 校验订单状态迁移，同状态视为幂等
func ValidateOrderTransition(from, to OrderStatus) error {
	if !from.Valid() || !to.Valid() {
		return &TransitionError{Kind: "order", From: string(from), To: string(to)}
	}
	if from == to {
		return nil
	}
	for _, next := range orderTransitions[from] {
		if next == to {
			return nil
		}
	}
	return &TransitionError{Kind: "order", From: string(from), To: string(to)}
}

// Valid reports whether s is a known payment status
func (s PaymentStatus) Valid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

// Active 是否为有效授权（pending 或 succeeded）
func (s PaymentStatus) Active() bool {
	return s == PaymentStatusPending || s == PaymentStatusSucceeded
}

// ValidatePaymentTransition 校验支付授权状态迁移，同状态视为幂等
func ValidatePaymentTransition(from, to PaymentStatus) error {
	if !from.Valid() || !to.Valid() {
		return &TransitionError{Kind: "payment", From: string(from), To: string(to)}
	}
	if from == to {
		return nil
	}
	for _, next := range paymentTransitions[from] {
		if next == to {
			return nil
		}
	}
	return &TransitionError{Kind: "payment", From: string(from), To: string(to)}
}
