package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/entity"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rpdelivery"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rporder"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rppayment"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/errorutil"
	redisinfra "github.com/Ajmal023/Afghan-Topup-sub000/pkg/infra/redis"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/payment"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/provider"
)

const actor = "fulfillment"

// Outcome 一次 tick 的结果
type Outcome string

const (
	OutcomeDelivered      Outcome = "delivered"
	OutcomeRetryScheduled Outcome = "retry_scheduled"
	OutcomeFailedTerminal Outcome = "failed_terminal"
	// OutcomeSkipped 锁被占用，由持锁方决定结果
	OutcomeSkipped Outcome = "skipped"
	// OutcomeStale 订单/订单行不存在或已不可投递
	OutcomeStale Outcome = "stale"
)

// Result tick 结果
type Result struct {
	Outcome      Outcome
	TryNumber    int
	ErrorCode    string
	ErrorMessage string
}

// ProviderResolver 按运营商解析渠道
type ProviderResolver interface {
	Resolve(operator string) (provider.Adapter, error)
}

// RetryScheduler 重试调度
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, job *model.AttemptJob) (bool, error)
}

// Notifier 终态通知
type Notifier interface {
	Publish(ctx context.Context, channel string, n *redisinfra.StatusNotification) error
}

// Options 编排参数
type Options struct {
	MaxTries        int
	ProviderTimeout time.Duration
	PaymentTimeout  time.Duration
}

// Orchestrator 驱动订单行从已授权到终态
type Orchestrator struct {
	orders     rporder.OrderRepository
	payments   rppayment.PaymentRepository
	deliveries rpdelivery.DeliveryRepository
	providers  ProviderResolver
	payment    payment.Adapter
	lock       *AttemptLock
	scheduler  RetryScheduler
	notifier   Notifier
	opts       Options
	logger     logger.Logger
}

// NewOrchestrator notifier 可为 nil
func NewOrchestrator(
	orders rporder.OrderRepository,
	payments rppayment.PaymentRepository,
	deliveries rpdelivery.DeliveryRepository,
	providers ProviderResolver,
	paymentAdapter payment.Adapter,
	lock *AttemptLock,
	scheduler RetryScheduler,
	notifier Notifier,
	opts Options,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		orders:     orders,
		payments:   payments,
		deliveries: deliveries,
		providers:  providers,
		payment:    paymentAdapter,
		lock:       lock,
		scheduler:  scheduler,
		notifier:   notifier,
		opts:       opts,
		logger:     log,
	}
}

// Tick 执行一次投递尝试。返回的 error 仅来自锁、队列、存储等基础设施
func (o *Orchestrator) Tick(ctx context.Context, job *model.AttemptJob) (*Result, error) {
	try := job.TryNumber
	if try < 1 {
		try = 1
	}
	ctx = logger.WithTry(logger.WithOrderID(ctx, job.OrderID), try)

	order, err := o.orders.GetByID(ctx, job.OrderID)
	if errors.Is(err, rporder.ErrNotFound) {
		o.logger.Warnf(ctx, "[Orchestrator] order not found, drop stale job")
		return &Result{Outcome: OutcomeStale, TryNumber: try}, nil
	}
	if err != nil {
		return nil, errorutil.RetriableWrap(err, "load order")
	}
	line, err := o.orders.GetLine(ctx, job.OrderID, job.OrderLineID)
	if errors.Is(err, rporder.ErrNotFound) {
		o.logger.Warnf(ctx, "[Orchestrator] order line %s not found, drop stale job", job.OrderLineID)
		return &Result{Outcome: OutcomeStale, TryNumber: try}, nil
	}
	if err != nil {
		return nil, errorutil.RetriableWrap(err, "load order line")
	}
	if model.OrderStatus(order.Status).Terminal() {
		o.logger.Infof(ctx, "[Orchestrator] order is %s, nothing to deliver", order.Status)
		return &Result{Outcome: OutcomeStale, TryNumber: try}, nil
	}

	lock, err := o.lock.Acquire(ctx, order.ID, line.ID)
	if err != nil {
		return nil, errorutil.RetriableWrap(err, "acquire attempt lock")
	}
	if lock == nil {
		o.logger.Infof(ctx, "[Orchestrator] line %s try %d: attempt already in flight, skip", line.ID, try)
		return &Result{Outcome: OutcomeSkipped, TryNumber: try}, nil
	}
	held := true
	release := func() {
		if !held {
			return
		}
		held = false
		if err := o.lock.Release(ctx, lock); err != nil {
			o.logger.Warnf(ctx, "[Orchestrator] release lock for line %s failed: %v", line.ID, err)
		}
	}
	defer release()

	auth, err := o.findAuthorization(ctx, order.ID, job)
	if err != nil {
		return nil, errorutil.RetriableWrap(err, "load payment authorization")
	}
	if auth == nil || !model.PaymentStatus(auth.Status).Active() {
		release()
		return o.failTerminal(ctx, order, auth, try, "NO_AUTHORIZATION", "no active payment authorization")
	}

	delivery, err := o.deliver(ctx, order, line, try)
	if err != nil {
		return nil, err
	}

	if delivery.Succeeded() {
		if err := o.finalize(ctx, order, auth); err != nil {
			return nil, err
		}
		release()
		o.notify(ctx, order.ID, model.CustomerStateDelivered, "")
		o.logger.Infof(ctx, "[Orchestrator] line %s delivered on try %d", line.ID, try)
		return &Result{Outcome: OutcomeDelivered, TryNumber: try}, nil
	}

	release()

	if delivery.Terminal() || try >= o.opts.MaxTries {
		code := delivery.ErrorCode
		if !delivery.Terminal() {
			code = "MAX_RETRIES"
		}
		return o.failTerminal(ctx, order, auth, try, code, delivery.ErrorMessage)
	}

	next := &model.AttemptJob{
		OrderID:            order.ID,
		OrderLineID:        line.ID,
		TryNumber:          try + 1,
		PaymentProvider:    auth.Provider,
		PaymentProviderRef: auth.ProviderRef,
	}
	if _, err := o.scheduler.ScheduleRetry(ctx, next); err != nil {
		return nil, errorutil.RetriableWrap(err, "schedule retry")
	}
	if err := o.orders.SetMessage(ctx, order.ID, delivery.ErrorMessage); err != nil {
		o.logger.Warnf(ctx, "[Orchestrator] record last message failed: %v", err)
	}
	o.logger.Infof(ctx, "[Orchestrator] line %s try %d failed (%s), retry %d scheduled",
		line.ID, try, delivery.ErrorCode, try+1)
	return &Result{
		Outcome:      OutcomeRetryScheduled,
		TryNumber:    try,
		ErrorCode:    delivery.ErrorCode,
		ErrorMessage: delivery.ErrorMessage,
	}, nil
}

func (o *Orchestrator) findAuthorization(ctx context.Context, orderID string, job *model.AttemptJob) (*entity.PaymentAuthorization, error) {
	var (
		auth *entity.PaymentAuthorization
		err  error
	)
	if job.PaymentProviderRef != "" {
		auth, err = o.payments.GetByProviderRef(ctx, job.PaymentProvider, job.PaymentProviderRef)
	} else {
		auth, err = o.payments.GetActiveByOrder(ctx, orderID)
	}
	if errors.Is(err, rppayment.ErrNotFound) {
		return nil, nil
	}
	return auth, err
}

// deliver 调用渠道并写投递记录；同一外部 ID 已成功时不再调用渠道
func (o *Orchestrator) deliver(ctx context.Context, order *entity.Order, line *entity.OrderLine, try int) (*provider.Outcome, error) {
	extID := model.ExternalAttemptID(order.ID, line.ID)

	prior, err := o.deliveries.Get(ctx, line.ID, extID)
	if err != nil && !errors.Is(err, rpdelivery.ErrNotFound) {
		return nil, errorutil.RetriableWrap(err, "load delivery log")
	}
	if prior != nil && model.DeliveryStatus(prior.Status).Succeeded() {
		o.logger.Infof(ctx, "[Orchestrator] line %s already %s upstream, resume finalize", line.ID, prior.Status)
		return &provider.Outcome{Status: provider.Status(prior.Status), ProviderTxnID: prior.ProviderTxnID}, nil
	}

	adapter, err := o.providers.Resolve(line.Operator)
	var (
		outcome      *provider.Outcome
		providerName = "unresolved"
	)
	if err != nil {
		outcome = &provider.Outcome{Status: provider.StatusFailed, ErrorCode: provider.CodeConfig, ErrorMessage: err.Error()}
	} else {
		providerName = adapter.Name()
		outcome = o.callProvider(ctx, adapter, &provider.Request{
			OrderID:           order.ID,
			OrderLineID:       line.ID,
			ExternalAttemptID: extID,
			Operator:          line.Operator,
			ProductID:         line.ProductID,
			VariantID:         line.VariantID,
			Destination:       line.Destination,
			AmountMinor:       line.UnitMinor * int64(line.Quantity),
			Currency:          order.Currency,
			TryNumber:         try,
		})
	}

	err = o.deliveries.Upsert(ctx, &entity.DeliveryAttemptLog{
		OrderID:           order.ID,
		OrderLineID:       line.ID,
		ExternalAttemptID: extID,
		Provider:          providerName,
		TryNumber:         try,
		Status:            string(outcome.Status),
		ProviderTxnID:     outcome.ProviderTxnID,
		ErrorCode:         outcome.ErrorCode,
		ErrorMessage:      outcome.ErrorMessage,
		RawRequest:        []byte(outcome.RawRequest),
		RawResponse:       []byte(outcome.RawResponse),
	})
	if err != nil {
		return nil, errorutil.RetriableWrap(err, "write delivery log")
	}
	return outcome, nil
}

// callProvider 渠道错误与 panic 都折算为失败结果，不向上抛出
func (o *Orchestrator) callProvider(ctx context.Context, adapter provider.Adapter, req *provider.Request) (outcome *provider.Outcome) {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.ProviderTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Errorf(ctx, "[Orchestrator] provider %s panicked: %v", adapter.Name(), r)
			outcome = &provider.Outcome{Status: provider.StatusFailed, ErrorCode: provider.CodeNetwork, ErrorMessage: fmt.Sprint(r)}
		}
	}()

	out, err := adapter.AttemptDelivery(callCtx, req)
	if err != nil {
		o.logger.Warnf(ctx, "[Orchestrator] provider %s call failed: %v", adapter.Name(), err)
		return provider.FailureFromError(err)
	}
	if out == nil {
		return &provider.Outcome{Status: provider.StatusFailed, ErrorCode: provider.CodeNetwork, ErrorMessage: "empty provider response"}
	}
	if out.Status == provider.StatusSent && out.ErrorMessage == "" {
		out.ErrorMessage = "provider has not confirmed the top-up"
	}
	return out
}

// finalize 扣款后推进订单 paid -> fulfilled
func (o *Orchestrator) finalize(ctx context.Context, order *entity.Order, auth *entity.PaymentAuthorization) error {
	if auth.Status != string(model.PaymentStatusSucceeded) {
		payCtx, cancel := context.WithTimeout(ctx, o.opts.PaymentTimeout)
		captured, err := o.payment.Capture(payCtx, auth.ProviderRef)
		cancel()
		if err != nil {
			return errorutil.RetriableWrap(err, "capture payment")
		}
		if captured.Status != payment.StatusSucceeded {
			return errorutil.Retriable(fmt.Sprintf("capture left payment in %s", captured.Status))
		}
		if _, err := o.payments.Transition(ctx, auth.ID, model.PaymentStatusSucceeded, nil, actor); err != nil {
			return errorutil.RetriableWrap(err, "mark payment succeeded")
		}
	}
	for _, to := range []model.OrderStatus{model.OrderStatusPaid, model.OrderStatusFulfilled} {
		if _, err := o.orders.Transition(ctx, order.ID, to, actor, "delivery accepted"); err != nil {
			return errorutil.RetriableWrap(err, fmt.Sprintf("mark order %s", to))
		}
	}
	return nil
}

// failTerminal 撤销授权并取消订单
func (o *Orchestrator) failTerminal(ctx context.Context, order *entity.Order, auth *entity.PaymentAuthorization, try int, code, message string) (*Result, error) {
	if auth != nil && model.PaymentStatus(auth.Status).Active() && auth.Status != string(model.PaymentStatusSucceeded) {
		payCtx, cancel := context.WithTimeout(ctx, o.opts.PaymentTimeout)
		_, err := o.payment.Cancel(payCtx, auth.ProviderRef)
		cancel()
		if err != nil {
			// 授权保留在渠道侧，超期自动释放
			o.logger.Errorf(ctx, "[Orchestrator] cancel payment %s failed: %v", auth.ProviderRef, err)
		} else if _, err := o.payments.Transition(ctx, auth.ID, model.PaymentStatusCancelled,
			&rppayment.Failure{Code: code, Message: message}, actor); err != nil {
			return nil, errorutil.RetriableWrap(err, "mark payment cancelled")
		}
	}
	if _, err := o.orders.Transition(ctx, order.ID, model.OrderStatusCancelled, actor, code); err != nil {
		return nil, errorutil.RetriableWrap(err, "cancel order")
	}
	if err := o.orders.SetMessage(ctx, order.ID, message); err != nil {
		o.logger.Warnf(ctx, "[Orchestrator] record last message failed: %v", err)
	}
	o.notify(ctx, order.ID, model.CustomerStateFailed, message)
	o.logger.Warnf(ctx, "[Orchestrator] order cancelled after try %d: code=%s msg=%s", try, code, message)
	return &Result{Outcome: OutcomeFailedTerminal, TryNumber: try, ErrorCode: code, ErrorMessage: message}, nil
}

func (o *Orchestrator) notify(ctx context.Context, orderID string, state model.CustomerState, message string) {
	if o.notifier == nil {
		return
	}
	err := o.notifier.Publish(ctx, model.OrderStatusChannel(orderID), &redisinfra.StatusNotification{
		OrderID:   orderID,
		State:     string(state),
		Message:   message,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		o.logger.Warnf(ctx, "[Orchestrator] publish status for %s failed: %v", orderID, err)
	}
}
