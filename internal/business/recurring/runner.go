package recurring

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/business/fulfillment"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/entity"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rpdelivery"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rporder"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rppayment"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rprecurring"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/errorutil"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/payment"
)

const actor = "recurring"

// RunOutcome 一次运行的结果
type RunOutcome string

const (
	RunSkipped        RunOutcome = "skipped"
	RunPaymentFailed  RunOutcome = "payment_failed"
	RunDelivered      RunOutcome = "delivered"
	RunRetryScheduled RunOutcome = "retry_scheduled"
	RunFailed         RunOutcome = "failed"
)

// RunResult 运行结果
type RunResult struct {
	ScheduleID string     `json:"schedule_id"`
	OrderID    string     `json:"order_id,omitempty"`
	Outcome    RunOutcome `json:"outcome"`
	Error      string     `json:"error,omitempty"`
	At         time.Time  `json:"at"`
}

// Converter 汇率换算
type Converter interface {
	ToUSD(amountMinor int64, currency string) (int64, float64, error)
}

// Ticker 首次投递
type Ticker interface {
	Tick(ctx context.Context, job *model.AttemptJob) (*fulfillment.Result, error)
}

// Scheduler 首次投递失败时交给重试管道
type Scheduler interface {
	ScheduleRetry(ctx context.Context, job *model.AttemptJob) (bool, error)
}

// DeliveryReader 读取投递记录
type DeliveryReader interface {
	Get(ctx context.Context, lineID, externalAttemptID string) (*entity.DeliveryAttemptLog, error)
}

// Runner 执行到期计划：生成订单、离线预授权、首次投递、推进计划
type Runner struct {
	schedules rprecurring.RecurringRepository
	orders    rporder.OrderRepository
	payments   rppayment.PaymentRepository
	deliveries DeliveryReader
	payment    payment.Adapter
	fx         Converter
	ticker     Ticker
	scheduler  Scheduler
	// 离线预授权的超时
	paymentTimeout time.Duration
	now            func() time.Time
	logger         logger.Logger
}

// NewRunner 创建 Runner
func NewRunner(
	schedules rprecurring.RecurringRepository,
	orders rporder.OrderRepository,
	payments rppayment.PaymentRepository,
	deliveries DeliveryReader,
	paymentAdapter payment.Adapter,
	fx Converter,
	ticker Ticker,
	scheduler Scheduler,
	paymentTimeout time.Duration,
	log logger.Logger,
) *Runner {
	if paymentTimeout <= 0 {
		paymentTimeout = 20 * time.Second
	}
	return &Runner{
		schedules:      schedules,
		orders:         orders,
		payments:       payments,
		deliveries:     deliveries,
		payment:        paymentAdapter,
		fx:             fx,
		ticker:         ticker,
		scheduler:      scheduler,
		paymentTimeout: paymentTimeout,
		now:            time.Now,
		logger:         log,
	}
}

// Run 处理一个运行任务。一旦生成了订单，本周期即视为已消费，计划必然推进
func (r *Runner) Run(ctx context.Context, job *model.RecurringRunJob) (*RunResult, error) {
	ctx = logger.WithScheduleID(ctx, job.ScheduleID)
	res := &RunResult{ScheduleID: job.ScheduleID, At: r.now().UTC()}

	sch, err := r.schedules.Get(ctx, job.ScheduleID)
	if errors.Is(err, rprecurring.ErrNotFound) {
		res.Outcome = RunSkipped
		return res, nil
	}
	if err != nil {
		return nil, errorutil.RetriableWrap(err, "load schedule")
	}
	if !sch.Active {
		r.logger.Infof(ctx, "[Runner] schedule %s inactive, skip", sch.ID)
		res.Outcome = RunSkipped
		return res, nil
	}
	if !sch.NextRunAt.Equal(job.DueAt) {
		// 该到期时间已处理过（任务重投）
		r.logger.Infof(ctx, "[Runner] schedule %s already advanced past %s, skip", sch.ID, job.DueAt.Format(time.RFC3339))
		res.Outcome = RunSkipped
		return res, nil
	}

	orderID := runOrderID(sch)
	existing, err := r.orders.GetByID(ctx, orderID)
	if err == nil {
		return res, r.resume(ctx, sch, existing, res)
	}
	if !errors.Is(err, rporder.ErrNotFound) {
		return nil, errorutil.RetriableWrap(err, "load run order")
	}

	usdMinor, rate, err := r.resolveUSD(sch)
	if err != nil {
		res.Outcome = RunFailed
		res.Error = err.Error()
		return res, r.advance(ctx, sch, res)
	}

	order, line := r.materialize(sch, orderID, usdMinor, rate)
	if err := r.orders.Create(ctx, order); err != nil {
		return nil, errorutil.RetriableWrap(err, "create recurring order")
	}
	res.OrderID = order.ID
	return res, r.proceed(logger.WithOrderID(ctx, order.ID), sch, order, line, usdMinor, res)
}

// proceed 离线预授权，成功后做首次投递
func (r *Runner) proceed(ctx context.Context, sch *entity.RecurringSchedule, order *entity.Order, line *entity.OrderLine, usdMinor int64, res *RunResult) error {
	auth, err := r.authorize(ctx, sch, order, usdMinor)
	if err != nil {
		return err
	}
	if !auth.Capturable() {
		r.paymentFailed(ctx, order.ID, firstNonEmpty(auth.ErrorMessage, auth.ErrorCode, string(auth.Status)), res)
		return r.advance(ctx, sch, res)
	}
	return r.firstAttempt(ctx, sch, &model.AttemptJob{
		OrderID:            order.ID,
		OrderLineID:        line.ID,
		TryNumber:          1,
		PaymentProvider:    r.payment.Name(),
		PaymentProviderRef: auth.ProviderRef,
	}, res)
}

func (r *Runner) paymentFailed(ctx context.Context, orderID, reason string, res *RunResult) {
	msg := "payment authorization failed: " + reason
	if _, err := r.orders.Transition(ctx, orderID, model.OrderStatusCancelled, actor, "payment authorization failed"); err != nil {
		r.logger.Errorf(ctx, "[Runner] cancel order %s failed: %v", orderID, err)
	}
	if err := r.orders.SetMessage(ctx, orderID, msg); err != nil {
		r.logger.Warnf(ctx, "[Runner] record order message failed: %v", err)
	}
	res.Outcome = RunPaymentFailed
	res.Error = msg
}

// firstAttempt 执行 try 1；基础设施出错时交给重试管道
func (r *Runner) firstAttempt(ctx context.Context, sch *entity.RecurringSchedule, attempt *model.AttemptJob, res *RunResult) error {
	tick, err := r.ticker.Tick(ctx, attempt)
	if err != nil {
		r.logger.Warnf(ctx, "[Runner] first attempt for order %s errored: %v, handing off", attempt.OrderID, err)
		if _, schErr := r.scheduler.ScheduleRetry(ctx, attempt); schErr != nil {
			r.logger.Errorf(ctx, "[Runner] hand off order %s failed: %v", attempt.OrderID, schErr)
		}
		res.Outcome = RunRetryScheduled
		res.Error = err.Error()
		return r.advance(ctx, sch, res)
	}

	switch tick.Outcome {
	case fulfillment.OutcomeDelivered:
		res.Outcome = RunDelivered
	case fulfillment.OutcomeRetryScheduled, fulfillment.OutcomeSkipped:
		res.Outcome = RunRetryScheduled
		res.Error = firstNonEmpty(tick.ErrorMessage, tick.ErrorCode, "delivery pending")
	default:
		res.Outcome = RunFailed
		res.Error = firstNonEmpty(tick.ErrorMessage, tick.ErrorCode, string(tick.Outcome))
	}
	return r.advance(ctx, sch, res)
}

func (r *Runner) resolveUSD(sch *entity.RecurringSchedule) (int64, float64, error) {
	if sch.USDMinor != nil && *sch.USDMinor > 0 {
		return *sch.USDMinor, 0, nil
	}
	return r.fx.ToUSD(sch.AmountMinor, sch.Currency)
}

// runOrderID 同一计划同一到期时间生成同一订单 ID
func runOrderID(sch *entity.RecurringSchedule) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(model.RecurringJobKey(sch.ID, sch.NextRunAt))).String()
}

// resume 上次运行在生成订单后中断，按已落库的授权与投递记录续跑：
//
//	无授权记录          -> 重新预授权（幂等键不变）
//	授权失败/撤销       -> 取消订单
//	投递失败过          -> 交回重试管道（下一次 try，按任务键去重）
//	未投递或已投递成功  -> 交给 Orchestrator 执行 try 1，已成功的只补扣款
func (r *Runner) resume(ctx context.Context, sch *entity.RecurringSchedule, order *entity.Order, res *RunResult) error {
	ctx = logger.WithOrderID(ctx, order.ID)
	res.OrderID = order.ID

	status := model.OrderStatus(order.Status)
	switch {
	case status == model.OrderStatusFulfilled:
		res.Outcome = RunDelivered
		return r.advance(ctx, sch, res)
	case status.Terminal():
		res.Outcome = RunFailed
		res.Error = "order " + order.Status
		return r.advance(ctx, sch, res)
	case len(order.Lines) == 0:
		return errorutil.NonRetriable("recurring order has no lines")
	}
	line := &order.Lines[0]
	r.logger.Infof(ctx, "[Runner] resuming interrupted run, order is %s", order.Status)

	auth, err := r.payments.GetLatestByOrder(ctx, order.ID)
	if errors.Is(err, rppayment.ErrNotFound) {
		usdMinor, _, err := r.resolveUSD(sch)
		if line.DisplayMinor != nil {
			usdMinor, err = *line.DisplayMinor, nil
		}
		if err != nil {
			res.Outcome = RunFailed
			res.Error = err.Error()
			return r.advance(ctx, sch, res)
		}
		return r.proceed(ctx, sch, order, line, usdMinor, res)
	}
	if err != nil {
		return errorutil.RetriableWrap(err, "load payment authorization")
	}
	if !model.PaymentStatus(auth.Status).Active() {
		r.paymentFailed(ctx, order.ID, firstNonEmpty(auth.ErrorMessage, auth.ErrorCode, auth.Status), res)
		return r.advance(ctx, sch, res)
	}

	attempt := &model.AttemptJob{
		OrderID:            order.ID,
		OrderLineID:        line.ID,
		TryNumber:          1,
		PaymentProvider:    auth.Provider,
		PaymentProviderRef: auth.ProviderRef,
	}
	prior, err := r.deliveries.Get(ctx, line.ID, model.ExternalAttemptID(order.ID, line.ID))
	if err != nil && !errors.Is(err, rpdelivery.ErrNotFound) {
		return errorutil.RetriableWrap(err, "load delivery log")
	}
	if prior == nil || model.DeliveryStatus(prior.Status).Succeeded() {
		return r.firstAttempt(ctx, sch, attempt, res)
	}

	attempt.TryNumber = prior.TryNumber + 1
	if _, err := r.scheduler.ScheduleRetry(ctx, attempt); err != nil {
		return errorutil.RetriableWrap(err, "hand off interrupted run")
	}
	res.Outcome = RunRetryScheduled
	res.Error = firstNonEmpty(prior.ErrorMessage, prior.ErrorCode, "delivery pending")
	return r.advance(ctx, sch, res)
}

func (r *Runner) materialize(sch *entity.RecurringSchedule, orderID string, usdMinor int64, rate float64) (*entity.Order, *entity.OrderLine) {
	customerID := sch.CustomerID
	display := usdMinor
	line := entity.OrderLine{
		ID:              uuid.NewSHA1(uuid.NameSpaceOID, []byte(orderID+":line:1")).String(),
		ProductID:       sch.ProductID,
		VariantID:       sch.VariantID,
		Operator:        sch.Operator,
		Destination:     sch.Destination,
		Quantity:        1,
		UnitMinor:       sch.AmountMinor,
		DisplayMinor:    &display,
		DisplayCurrency: "USD",
		FXRate:          rate,
	}
	order := &entity.Order{
		ID:         orderID,
		CustomerID: &customerID,
		Status:     string(model.OrderStatusCreated),
		TotalMinor: sch.AmountMinor,
		Currency:   sch.Currency,
		Source:     entity.OrderSourceRecurring,
		ScheduleID: sch.ID,
		Lines:      []entity.OrderLine{line},
	}
	return order, &order.Lines[0]
}

// authorize 离线预授权并落库；渠道调用失败按授权失败处理
func (r *Runner) authorize(ctx context.Context, sch *entity.RecurringSchedule, order *entity.Order, usdMinor int64) (*payment.Authorization, error) {
	payCtx, cancel := context.WithTimeout(ctx, r.paymentTimeout)
	auth, err := r.payment.Authorize(payCtx, &payment.AuthorizeRequest{
		OrderID:          order.ID,
		IdempotencyKey:   "recurring-" + sch.ID + "-" + strconv.FormatInt(sch.NextRunAt.Unix(), 10),
		AmountMinor:      usdMinor,
		Currency:         "USD",
		CustomerRef:      sch.PaymentCustomerRef,
		PaymentMethodRef: sch.PaymentMethodRef,
		OffSession:       true,
	})
	cancel()
	if err != nil {
		r.logger.Warnf(ctx, "[Runner] off-session authorization errored: %v", err)
		auth = &payment.Authorization{Status: payment.StatusFailed, ErrorCode: "AUTHORIZE_ERROR", ErrorMessage: err.Error()}
	}

	status := model.PaymentStatusPending
	if !auth.Capturable() {
		status = model.PaymentStatusFailed
	}
	rec := &entity.PaymentAuthorization{
		ID:           uuid.NewString(),
		OrderID:      order.ID,
		Provider:     r.payment.Name(),
		ProviderRef:  auth.ProviderRef,
		AmountMinor:  usdMinor,
		Currency:     "USD",
		Status:       string(status),
		ErrorCode:    auth.ErrorCode,
		ErrorMessage: auth.ErrorMessage,
	}
	if err := r.payments.Create(ctx, rec); err != nil {
		return nil, errorutil.RetriableWrap(err, "save payment authorization")
	}
	return auth, nil
}

// advance 记录本次运行并推进计划；一次性计划停用
func (r *Runner) advance(ctx context.Context, sch *entity.RecurringSchedule, res *RunResult) error {
	update := rprecurring.RunUpdate{
		Succeeded: res.Outcome == RunDelivered,
		LastRunAt: res.At,
		LastError: res.Error,
	}

	anchor := sch.NextRunAt
	if sch.StartAt != nil {
		anchor = *sch.StartAt
	}
	after := sch.NextRunAt
	if res.At.After(after) {
		after = res.At
	}
	next, active, err := NextRunAt(model.Cadence(sch.Cadence), anchor, after)
	switch {
	case err != nil:
		r.logger.Errorf(ctx, "[Runner] schedule %s: %v, deactivating", sch.ID, err)
		update.Deactivate = true
	case !active:
		update.Deactivate = true
	default:
		update.NextRunAt = &next
	}

	if summary, err := json.Marshal(res); err == nil {
		update.Summary = summary
	}
	if err := r.schedules.SaveRun(ctx, sch.ID, update); err != nil {
		return errorutil.NonRetriableWrap(err, "save schedule run")
	}
	r.logger.Infof(ctx, "[Runner] schedule %s run %s: order=%s next=%v deactivated=%v",
		sch.ID, res.Outcome, res.OrderID, update.NextRunAt, update.Deactivate)
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
