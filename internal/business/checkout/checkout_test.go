package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/business/fulfillment"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/business/retry"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rpdelivery"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rporder"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rppayment"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/repotest"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/fx"
	redisinfra "github.com/Ajmal023/Afghan-Topup-sub000/pkg/infra/redis"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/payment"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/provider"
)

type nopQueue struct{ published int }

func (q *nopQueue) Publish(queue string, data []byte, ttl, delay time.Duration) (string, error) {
	q.published++
	return uuid.NewString(), nil
}

type fixture struct {
	svc      *Service
	orders   rporder.OrderRepository
	payments rppayment.PaymentRepository
	pay      *payment.MockAdapter
	prov     *provider.MockAdapter
	queue    *nopQueue
}

func newFixture(t *testing.T, script provider.Script) *fixture {
	t.Helper()
	db := repotest.NewDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		orders:   rporder.NewOrderRepository(db),
		payments: rppayment.NewPaymentRepository(db),
		pay:      payment.NewMockAdapter(),
		prov:     provider.NewMockAdapter("mock", script),
		queue:    &nopQueue{},
	}
	enq := retry.NewEnqueuer(f.queue, redisinfra.NewJobRegistry(rdb, time.Hour), time.Hour, logger.NewNop())
	sched := retry.NewScheduler(enq, "topup_attempt", 5, time.Minute, logger.NewNop())
	orch := fulfillment.NewOrchestrator(
		f.orders, f.payments, rpdelivery.NewDeliveryRepository(db),
		provider.NewRegistry("mock", nil, f.prov), f.pay,
		fulfillment.NewAttemptLock(redisinfra.NewLocker(rdb), 45*time.Second),
		sched, nil,
		fulfillment.Options{MaxTries: 5, ProviderTimeout: time.Second, PaymentTimeout: time.Second},
		logger.NewNop(),
	)
	f.svc = NewService(f.orders, f.payments, f.pay, fx.NewConverter(map[string]float64{"AFN": 0.0142}),
		orch, sched, time.Second, logger.NewNop())
	return f
}

func validInput() *StartInput {
	return &StartInput{
		GuestEmail:  "guest@example.com",
		ProductID:   "p1",
		Operator:    "roshan",
		Destination: "+93700000000",
		AmountMinor: 10000,
		Currency:    "AFN",
	}
}

func TestStartCreatesOrderAndAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, err := f.svc.Start(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, int64(142), res.AmountMinor)
	assert.NotEmpty(t, res.ClientSecret)

	order, err := f.orders.GetByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusCreated), order.Status)
	assert.Nil(t, order.CustomerID)
	assert.Equal(t, "guest@example.com", order.GuestEmail)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, res.OrderLineID, order.Lines[0].ID)

	auth, err := f.payments.GetLatestByOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, string(model.PaymentStatusCreated), auth.Status)
	assert.Equal(t, int64(142), auth.AmountMinor)
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t, nil)

	in := validInput()
	in.Destination = "0700"
	_, err := f.svc.Start(context.Background(), in)
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "Destination", verrs[0].Field())

	in = validInput()
	in.GuestEmail = ""
	_, err = f.svc.Start(context.Background(), in)
	assert.ErrorIs(t, err, ErrNoContact)

	in = validInput()
	in.Currency = "XYZ"
	_, err = f.svc.Start(context.Background(), in)
	assert.Error(t, err)
}

func TestStartDeclinedCancelsOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.pay.AuthorizeStatus = payment.StatusFailed

	_, err := f.svc.Start(ctx, validInput())
	assert.ErrorIs(t, err, ErrPaymentNotAuthorized)
}

func TestCompleteDeliversAndCaptures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	started, err := f.svc.Start(ctx, validInput())
	require.NoError(t, err)

	res, err := f.svc.Complete(ctx, started.OrderID)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.OutcomeDelivered, res.Outcome)
	assert.Equal(t, 1, f.pay.Captures())
	assert.Len(t, f.prov.Calls(), 1)

	order, err := f.orders.GetByID(ctx, started.OrderID)
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusFulfilled), order.Status)

	_, err = f.svc.Complete(ctx, started.OrderID)
	assert.ErrorIs(t, err, ErrNotPending)
	assert.Len(t, f.prov.Calls(), 1)
}

func TestCompleteRetryableFailureSchedulesRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, provider.Always(&provider.Outcome{Status: provider.StatusFailed, ErrorCode: provider.CodeUpstream, ErrorMessage: "busy"}))

	started, err := f.svc.Start(ctx, validInput())
	require.NoError(t, err)

	res, err := f.svc.Complete(ctx, started.OrderID)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.OutcomeRetryScheduled, res.Outcome)
	assert.Equal(t, "busy", res.Message)
	assert.Equal(t, 1, f.queue.published)

	auth, err := f.payments.GetLatestByOrder(ctx, started.OrderID)
	require.NoError(t, err)
	assert.Equal(t, string(model.PaymentStatusPending), auth.Status)
}

func TestSecondCompleteDoesNotRedeliver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, provider.Always(&provider.Outcome{Status: provider.StatusFailed, ErrorCode: provider.CodeUpstream, ErrorMessage: "busy"}))

	started, err := f.svc.Start(ctx, validInput())
	require.NoError(t, err)

	res, err := f.svc.Complete(ctx, started.OrderID)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.OutcomeRetryScheduled, res.Outcome)

	_, err = f.svc.Complete(ctx, started.OrderID)
	assert.ErrorIs(t, err, ErrNotPending)
	assert.Len(t, f.prov.Calls(), 1)
	assert.Equal(t, 1, f.queue.published)
}

func TestCompleteWithoutConfirmedPaymentCancels(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.pay.AuthorizeStatus = payment.StatusRequiresPaymentMethod

	started, err := f.svc.Start(ctx, validInput())
	require.NoError(t, err)

	res, err := f.svc.Complete(ctx, started.OrderID)
	require.ErrorIs(t, err, ErrPaymentNotAuthorized)
	assert.Equal(t, fulfillment.OutcomeFailedTerminal, res.Outcome)
	assert.Empty(t, f.prov.Calls())

	order, err := f.orders.GetByID(ctx, started.OrderID)
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusCancelled), order.Status)

	auth, err := f.payments.GetLatestByOrder(ctx, started.OrderID)
	require.NoError(t, err)
	assert.Equal(t, string(model.PaymentStatusFailed), auth.Status)
}

func TestCompleteUnknownOrder(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Complete(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
