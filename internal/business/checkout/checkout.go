package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/business/fulfillment"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/entity"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rporder"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rppayment"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/payment"
)

const actor = "checkout"

var (
	// ErrOrderNotFound 订单不存在
	ErrOrderNotFound = errors.New("order not found")
	// ErrNotPending 订单已离开 created 状态，不能重复完成
	ErrNotPending = errors.New("order is not awaiting payment")
	// ErrPaymentNotAuthorized 授权未到可扣款状态，订单已取消
	ErrPaymentNotAuthorized = errors.New("payment not authorized")
	// ErrNoContact 游客下单必须留下邮箱或手机号
	ErrNoContact = errors.New("customer_id, guest_email or guest_phone is required")
)

// StartInput 下单参数
type StartInput struct {
	CustomerID   string `json:"customer_id"`
	GuestEmail   string `json:"guest_email" validate:"omitempty,email"`
	GuestPhone   string `json:"guest_phone" validate:"omitempty,e164"`
	ProductID    string `json:"product_id" validate:"required"`
	VariantID    string `json:"variant_id"`
	Operator     string `json:"operator" validate:"required"`
	Destination  string `json:"destination" validate:"required,e164"`
	AmountMinor  int64  `json:"amount_minor" validate:"required,gt=0"`
	Currency     string `json:"currency" validate:"required,len=3"`
	CustomAmount bool   `json:"custom_amount"`
}

// StartResult 下单结果，ClientSecret 交给前端完成卡片确认
type StartResult struct {
	OrderID      string `json:"order_id"`
	OrderLineID  string `json:"order_line_id"`
	ClientSecret string `json:"client_secret"`
	AmountMinor  int64  `json:"amount_minor"`
	Currency     string `json:"currency"`
}

// CompleteResult 首次投递后的结果
type CompleteResult struct {
	OrderID string              `json:"order_id"`
	Outcome fulfillment.Outcome `json:"outcome"`
	Message string              `json:"message,omitempty"`
}

// Converter 汇率换算
type Converter interface {
	ToUSD(amountMinor int64, currency string) (int64, float64, error)
}

// Ticker 首次投递
type Ticker interface {
	Tick(ctx context.Context, job *model.AttemptJob) (*fulfillment.Result, error)
}

// Scheduler 首次投递出错时交给重试管道
type Scheduler interface {
	ScheduleRetry(ctx context.Context, job *model.AttemptJob) (bool, error)
}

// Service 下单与支付完成
type Service struct {
	orders    rporder.OrderRepository
	payments  rppayment.PaymentRepository
	payment   payment.Adapter
	fx        Converter
	ticker    Ticker
	scheduler Scheduler
	validate  *validator.Validate
	timeout   time.Duration
	logger    logger.Logger
}

// NewService 创建下单服务
func NewService(
	orders rporder.OrderRepository,
	payments rppayment.PaymentRepository,
	paymentAdapter payment.Adapter,
	fx Converter,
	ticker Ticker,
	scheduler Scheduler,
	paymentTimeout time.Duration,
	log logger.Logger,
) *Service {
	return &Service{
		orders:    orders,
		payments:  payments,
		payment:   paymentAdapter,
		fx:        fx,
		ticker:    ticker,
		scheduler: scheduler,
		validate:  validator.New(),
		timeout:   paymentTimeout,
		logger:    log,
	}
}

// Start 创建订单与订单行，并在支付渠道创建手动扣款的授权
func (s *Service) Start(ctx context.Context, in *StartInput) (*StartResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	if in.CustomerID == "" && in.GuestEmail == "" && in.GuestPhone == "" {
		return nil, ErrNoContact
	}

	usdMinor, rate, err := s.fx.ToUSD(in.AmountMinor, in.Currency)
	if err != nil {
		return nil, err
	}

	order := &entity.Order{
		ID:         uuid.NewString(),
		Status:     string(model.OrderStatusCreated),
		TotalMinor: in.AmountMinor,
		Currency:   in.Currency,
		Source:     entity.OrderSourceCheckout,
		GuestEmail: in.GuestEmail,
		GuestPhone: in.GuestPhone,
	}
	if in.CustomerID != "" {
		customerID := in.CustomerID
		order.CustomerID = &customerID
	}
	display := usdMinor
	order.Lines = []entity.OrderLine{{
		ID:              uuid.NewString(),
		ProductID:       in.ProductID,
		VariantID:       in.VariantID,
		Operator:        in.Operator,
		Destination:     in.Destination,
		Quantity:        1,
		UnitMinor:       in.AmountMinor,
		DisplayMinor:    &display,
		DisplayCurrency: "USD",
		CustomAmount:    in.CustomAmount,
		FXRate:          rate,
	}}
	ctx = logger.WithOrderID(ctx, order.ID)
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	payCtx, cancel := context.WithTimeout(ctx, s.timeout)
	auth, err := s.payment.Authorize(payCtx, &payment.AuthorizeRequest{
		OrderID:        order.ID,
		IdempotencyKey: "checkout-" + order.ID,
		AmountMinor:    usdMinor,
		Currency:       "USD",
	})
	cancel()
	if err != nil {
		s.cancelOrder(ctx, order.ID, "payment authorization could not be created")
		return nil, fmt.Errorf("authorize payment: %w", err)
	}

	status := model.PaymentStatusCreated
	if auth.Status == payment.StatusFailed || auth.Status == payment.StatusCanceled {
		status = model.PaymentStatusFailed
	}
	err = s.payments.Create(ctx, &entity.PaymentAuthorization{
		ID:           uuid.NewString(),
		OrderID:      order.ID,
		Provider:     s.payment.Name(),
		ProviderRef:  auth.ProviderRef,
		AmountMinor:  usdMinor,
		Currency:     "USD",
		Status:       string(status),
		ErrorCode:    auth.ErrorCode,
		ErrorMessage: auth.ErrorMessage,
	})
	if err != nil {
		return nil, fmt.Errorf("save payment authorization: %w", err)
	}
	if status == model.PaymentStatusFailed {
		s.cancelOrder(ctx, order.ID, firstNonEmpty(auth.ErrorMessage, "payment authorization failed"))
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotAuthorized, firstNonEmpty(auth.ErrorMessage, auth.ErrorCode, string(auth.Status)))
	}

	s.logger.Infof(ctx, "[Checkout] order %s started: %d %s (%d USD cents)", order.ID, in.AmountMinor, in.Currency, usdMinor)
	return &StartResult{
		OrderID:      order.ID,
		OrderLineID:  order.Lines[0].ID,
		ClientSecret: auth.ClientSecret,
		AmountMinor:  usdMinor,
		Currency:     "USD",
	}, nil
}

// Complete 客户确认支付后调用：授权可扣款则立即做第一次投递，否则取消订单
func (s *Service) Complete(ctx context.Context, orderID string) (*CompleteResult, error) {
	ctx = logger.WithOrderID(ctx, orderID)
	order, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, rporder.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order.Status != string(model.OrderStatusCreated) || len(order.Lines) == 0 {
		return nil, ErrNotPending
	}

	rec, err := s.payments.GetLatestByOrder(ctx, orderID)
	if errors.Is(err, rppayment.ErrNotFound) {
		return nil, ErrNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("load payment authorization: %w", err)
	}
	// pending 说明已有一次 Complete 做过首次投递，后续交给重试管道
	if model.PaymentStatus(rec.Status) != model.PaymentStatusCreated {
		return nil, ErrNotPending
	}

	payCtx, cancel := context.WithTimeout(ctx, s.timeout)
	auth, err := s.payment.Retrieve(payCtx, rec.ProviderRef)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("retrieve payment: %w", err)
	}

	if !auth.Capturable() {
		msg := firstNonEmpty(auth.ErrorMessage, "payment ended in "+string(auth.Status))
		failure := &rppayment.Failure{Code: firstNonEmpty(auth.ErrorCode, string(auth.Status)), Message: msg}
		if _, err := s.payments.Transition(ctx, rec.ID, model.PaymentStatusFailed, failure, actor); err != nil {
			return nil, fmt.Errorf("mark payment failed: %w", err)
		}
		s.cancelOrder(ctx, orderID, msg)
		s.logger.Warnf(ctx, "[Checkout] order %s payment not capturable: %s", orderID, msg)
		return &CompleteResult{OrderID: orderID, Outcome: fulfillment.OutcomeFailedTerminal, Message: msg},
			fmt.Errorf("%w: %s", ErrPaymentNotAuthorized, msg)
	}

	if _, err := s.payments.Transition(ctx, rec.ID, model.PaymentStatusPending, nil, actor); err != nil {
		if errors.Is(err, rppayment.ErrConcurrentUpdate) {
			return nil, ErrNotPending
		}
		return nil, fmt.Errorf("mark payment pending: %w", err)
	}

	job := &model.AttemptJob{
		OrderID:            orderID,
		OrderLineID:        order.Lines[0].ID,
		TryNumber:          1,
		PaymentProvider:    rec.Provider,
		PaymentProviderRef: rec.ProviderRef,
	}
	tick, err := s.ticker.Tick(ctx, job)
	if err != nil {
		s.logger.Warnf(ctx, "[Checkout] first attempt for order %s errored: %v, handing off", orderID, err)
		if _, schErr := s.scheduler.ScheduleRetry(ctx, job); schErr != nil {
			return nil, fmt.Errorf("hand off first attempt: %w", errors.Join(err, schErr))
		}
		return &CompleteResult{OrderID: orderID, Outcome: fulfillment.OutcomeRetryScheduled}, nil
	}
	return &CompleteResult{OrderID: orderID, Outcome: tick.Outcome, Message: tick.ErrorMessage}, nil
}

func (s *Service) cancelOrder(ctx context.Context, orderID, message string) {
	if _, err := s.orders.Transition(ctx, orderID, model.OrderStatusCancelled, actor, "payment not authorized"); err != nil {
		s.logger.Errorf(ctx, "[Checkout] cancel order %s failed: %v", orderID, err)
		return
	}
	if err := s.orders.SetMessage(ctx, orderID, message); err != nil {
		s.logger.Warnf(ctx, "[Checkout] record order message failed: %v", err)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
