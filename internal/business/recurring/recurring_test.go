package recurring

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/business/fulfillment"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/business/retry"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/entity"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rpdelivery"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rporder"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rppayment"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rprecurring"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/repotest"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/fx"
	redisinfra "github.com/Ajmal023/Afghan-Topup-sub000/pkg/infra/redis"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/payment"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/provider"
)

type memQueue struct {
	mu   sync.Mutex
	jobs []string
}

func (q *memQueue) Publish(queue string, data []byte, ttl, delay time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, queue)
	return uuid.NewString(), nil
}

func (q *memQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type harness struct {
	schedules  rprecurring.RecurringRepository
	orders     rporder.OrderRepository
	deliveries rpdelivery.DeliveryRepository
	pay        *payment.MockAdapter
	prov       *provider.MockAdapter
	queue      *memQueue
	enqueuer   *retry.Enqueuer
	runner     *Runner
}

func newHarness(t *testing.T, script provider.Script, now time.Time) *harness {
	t.Helper()
	db := repotest.NewDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		schedules:  rprecurring.NewRecurringRepository(db),
		orders:     rporder.NewOrderRepository(db),
		deliveries: rpdelivery.NewDeliveryRepository(db),
		pay:        payment.NewMockAdapter(),
		prov:       provider.NewMockAdapter("mock", script),
		queue:      &memQueue{},
	}
	payments := rppayment.NewPaymentRepository(db)
	h.enqueuer = retry.NewEnqueuer(h.queue, redisinfra.NewJobRegistry(rdb, time.Hour), time.Hour, logger.NewNop())
	sched := retry.NewScheduler(h.enqueuer, "topup_attempt", 5, time.Minute, logger.NewNop())
	orch := fulfillment.NewOrchestrator(
		h.orders, payments, h.deliveries,
		provider.NewRegistry("mock", nil, h.prov), h.pay,
		fulfillment.NewAttemptLock(redisinfra.NewLocker(rdb), 45*time.Second),
		sched, nil,
		fulfillment.Options{MaxTries: 5, ProviderTimeout: time.Second, PaymentTimeout: time.Second},
		logger.NewNop(),
	)
	h.runner = NewRunner(h.schedules, h.orders, payments, h.deliveries, h.pay,
		fx.NewConverter(map[string]float64{"AFN": 0.0142}), orch, sched, time.Second, logger.NewNop())
	h.runner.now = func() time.Time { return now }
	return h
}

func (h *harness) create(t *testing.T, cadence model.Cadence, next time.Time) *entity.RecurringSchedule {
	t.Helper()
	sch := &entity.RecurringSchedule{
		ID: uuid.NewString(), CustomerID: "c1", ProductID: "p1", VariantID: "v1", Operator: "roshan",
		Destination: "+93700000000", AmountMinor: 50000, Currency: "AFN",
		Cadence: string(cadence), NextRunAt: next, Active: true,
		PaymentCustomerRef: "cus_1", PaymentMethodRef: "pm_1",
	}
	require.NoError(t, h.schedules.Create(context.Background(), sch))
	return sch
}

func (h *harness) reload(t *testing.T, id string) *entity.RecurringSchedule {
	sch, err := h.schedules.Get(context.Background(), id)
	require.NoError(t, err)
	return sch
}

func TestMonthlyRunAdvancesWithLeapClamp(t *testing.T) {
	ctx := context.Background()
	due := day(2024, 1, 31)
	h := newHarness(t, nil, due.Add(5*time.Minute))
	sch := h.create(t, model.CadenceMonthly, due)

	res, err := h.runner.Run(ctx, &model.RecurringRunJob{ScheduleID: sch.ID, DueAt: due})
	require.NoError(t, err)
	assert.Equal(t, RunDelivered, res.Outcome)

	got := h.reload(t, sch.ID)
	assert.True(t, day(2024, 2, 29).Equal(got.NextRunAt), "next run %s", got.NextRunAt)
	assert.True(t, got.Active)
	assert.Equal(t, 1, got.RunCount)
	assert.Empty(t, got.LastError)
	assert.JSONEq(t, `"delivered"`, jsonField(t, got.LastRun, "outcome"))

	order, err := h.orders.GetByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusFulfilled), order.Status)
	assert.Equal(t, entity.OrderSourceRecurring, order.Source)
	require.Len(t, order.Lines, 1)
	require.NotNil(t, order.Lines[0].DisplayMinor)
	assert.Equal(t, int64(710), *order.Lines[0].DisplayMinor)
	assert.Equal(t, 1, h.pay.Captures())
}

func TestRedeliveredRunIsSkipped(t *testing.T) {
	ctx := context.Background()
	due := day(2024, 1, 31)
	h := newHarness(t, nil, due)
	sch := h.create(t, model.CadenceMonthly, due)
	job := &model.RecurringRunJob{ScheduleID: sch.ID, DueAt: due}

	_, err := h.runner.Run(ctx, job)
	require.NoError(t, err)
	res, err := h.runner.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, RunSkipped, res.Outcome)
	assert.Len(t, h.prov.Calls(), 1)
}

func TestDateCadenceDeactivatesEvenWhenDeliveryFails(t *testing.T) {
	ctx := context.Background()
	due := day(2024, 5, 1)
	h := newHarness(t, provider.Always(&provider.Outcome{Status: provider.StatusFailed, ErrorCode: provider.CodeNetwork, ErrorMessage: "unreachable"}), due)
	sch := h.create(t, model.CadenceDate, due)

	res, err := h.runner.Run(ctx, &model.RecurringRunJob{ScheduleID: sch.ID, DueAt: due})
	require.NoError(t, err)
	assert.Equal(t, RunRetryScheduled, res.Outcome)

	got := h.reload(t, sch.ID)
	assert.False(t, got.Active)
	assert.Equal(t, "unreachable", got.LastError)
	assert.Equal(t, 0, got.RunCount)
	require.NotNil(t, got.LastRunAt)
	// the line-level retry continues on its own
	assert.Equal(t, 1, h.queue.count())

	res, err = h.runner.Run(ctx, &model.RecurringRunJob{ScheduleID: sch.ID, DueAt: due})
	require.NoError(t, err)
	assert.Equal(t, RunSkipped, res.Outcome)
}

func TestOffSessionAuthFailureSkipsDelivery(t *testing.T) {
	ctx := context.Background()
	due := day(2024, 1, 31)
	h := newHarness(t, nil, due)
	h.pay.OffSessionStatus = payment.StatusRequiresAction
	sch := h.create(t, model.CadenceMonthly, due)

	res, err := h.runner.Run(ctx, &model.RecurringRunJob{ScheduleID: sch.ID, DueAt: due})
	require.NoError(t, err)
	assert.Equal(t, RunPaymentFailed, res.Outcome)

	assert.Empty(t, h.prov.Calls())
	assert.Equal(t, 0, h.queue.count())

	got := h.reload(t, sch.ID)
	assert.Contains(t, got.LastError, "payment authorization failed")
	assert.True(t, day(2024, 2, 29).Equal(got.NextRunAt))
	assert.Equal(t, 0, got.RunCount)

	order, err := h.orders.GetByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusCancelled), order.Status)
}

// interrupt 模拟上次运行在生成订单（可选：预授权）之后崩溃
func (h *harness) interrupt(t *testing.T, sch *entity.RecurringSchedule, authorize bool) (*entity.Order, *entity.OrderLine) {
	t.Helper()
	ctx := context.Background()
	usdMinor, rate, err := h.runner.resolveUSD(sch)
	require.NoError(t, err)
	order, line := h.runner.materialize(sch, runOrderID(sch), usdMinor, rate)
	require.NoError(t, h.orders.Create(ctx, order))
	if authorize {
		auth, err := h.runner.authorize(ctx, sch, order, usdMinor)
		require.NoError(t, err)
		require.True(t, auth.Capturable())
	}
	return order, line
}

func (h *harness) seedDelivery(t *testing.T, order *entity.Order, line *entity.OrderLine, status model.DeliveryStatus) {
	t.Helper()
	require.NoError(t, h.deliveries.Upsert(context.Background(), &entity.DeliveryAttemptLog{
		OrderID: order.ID, OrderLineID: line.ID, ExternalAttemptID: model.ExternalAttemptID(order.ID, line.ID),
		Provider: "mock", TryNumber: 1, Status: string(status), ProviderTxnID: "tx-1",
	}))
}

func TestInterruptedRunAfterAcceptedDeliveryCapturesInsteadOfCancelling(t *testing.T) {
	ctx := context.Background()
	due := day(2024, 1, 31)
	h := newHarness(t, nil, due)
	sch := h.create(t, model.CadenceMonthly, due)
	order, line := h.interrupt(t, sch, true)
	h.seedDelivery(t, order, line, model.DeliveryStatusAccepted)

	res, err := h.runner.Run(ctx, &model.RecurringRunJob{ScheduleID: sch.ID, DueAt: due})
	require.NoError(t, err)
	assert.Equal(t, RunDelivered, res.Outcome)
	assert.Equal(t, order.ID, res.OrderID)

	assert.Empty(t, h.prov.Calls())
	assert.Equal(t, 1, h.pay.Captures())
	assert.Equal(t, 0, h.pay.Cancels())

	got, err := h.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusFulfilled), got.Status)

	sch = h.reload(t, sch.ID)
	assert.Equal(t, 1, sch.RunCount)
	assert.True(t, day(2024, 2, 29).Equal(sch.NextRunAt))
}

func TestInterruptedRunAfterFailedDeliveryHandsOffToRetry(t *testing.T) {
	ctx := context.Background()
	due := day(2024, 1, 31)
	h := newHarness(t, nil, due)
	sch := h.create(t, model.CadenceMonthly, due)
	order, line := h.interrupt(t, sch, true)
	h.seedDelivery(t, order, line, model.DeliveryStatusFailed)

	res, err := h.runner.Run(ctx, &model.RecurringRunJob{ScheduleID: sch.ID, DueAt: due})
	require.NoError(t, err)
	assert.Equal(t, RunRetryScheduled, res.Outcome)

	assert.Empty(t, h.prov.Calls())
	assert.Equal(t, 1, h.queue.count())
	assert.Equal(t, 0, h.pay.Cancels())

	got, err := h.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusCreated), got.Status)
}

func TestInterruptedRunBeforeAuthorizationAuthorizesAndDelivers(t *testing.T) {
	ctx := context.Background()
	due := day(2024, 1, 31)
	h := newHarness(t, nil, due)
	sch := h.create(t, model.CadenceMonthly, due)
	order, _ := h.interrupt(t, sch, false)

	res, err := h.runner.Run(ctx, &model.RecurringRunJob{ScheduleID: sch.ID, DueAt: due})
	require.NoError(t, err)
	assert.Equal(t, RunDelivered, res.Outcome)
	assert.Len(t, h.prov.Calls(), 1)
	assert.Equal(t, 1, h.pay.Captures())

	got, err := h.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusFulfilled), got.Status)
}

type hangingPay struct {
	*payment.MockAdapter
}

func (p hangingPay) Authorize(ctx context.Context, req *payment.AuthorizeRequest) (*payment.Authorization, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestHungAuthorizationTimesOut(t *testing.T) {
	ctx := context.Background()
	due := day(2024, 1, 31)
	h := newHarness(t, nil, due)
	sch := h.create(t, model.CadenceMonthly, due)
	h.runner.payment = hangingPay{h.pay}
	h.runner.paymentTimeout = 50 * time.Millisecond

	start := time.Now()
	res, err := h.runner.Run(ctx, &model.RecurringRunJob{ScheduleID: sch.ID, DueAt: due})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, RunPaymentFailed, res.Outcome)
	assert.Contains(t, res.Error, "deadline")
	assert.Empty(t, h.prov.Calls())
}

func TestInactiveScheduleIsSkipped(t *testing.T) {
	ctx := context.Background()
	due := day(2024, 1, 31)
	h := newHarness(t, nil, due)
	sch := h.create(t, model.CadenceMonthly, due)
	require.NoError(t, h.schedules.SaveRun(ctx, sch.ID, rprecurring.RunUpdate{Deactivate: true, LastRunAt: due}))

	res, err := h.runner.Run(ctx, &model.RecurringRunJob{ScheduleID: sch.ID, DueAt: due})
	require.NoError(t, err)
	assert.Equal(t, RunSkipped, res.Outcome)
	assert.Empty(t, h.prov.Calls())

	res, err = h.runner.Run(ctx, &model.RecurringRunJob{ScheduleID: "missing", DueAt: due})
	require.NoError(t, err)
	assert.Equal(t, RunSkipped, res.Outcome)
}

func TestScannerEnqueuesOncePerDueInstance(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 31, 0, 10, 0, 0, time.UTC)
	h := newHarness(t, nil, now)
	h.create(t, model.CadenceMonthly, day(2024, 1, 31))
	h.create(t, model.CadenceWeekly, day(2024, 1, 30))
	h.create(t, model.CadenceWeekly, day(2024, 2, 5))

	scanner := NewScanner(h.schedules, h.enqueuer, "recurring_run", 500, logger.NewNop())
	scanner.now = func() time.Time { return now }

	n, err := scanner.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = scanner.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, h.queue.count())
}

func jsonField(t *testing.T, raw []byte, field string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	return string(m[field])
}
