package rporder

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/entity"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rpaudit"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/repotest"
)

func newOrder(id string) *entity.Order {
	return &entity.Order{
		ID:         id,
		TotalMinor: 50000,
		Currency:   "AFN",
		Lines: []entity.OrderLine{{
			ID:          id + "-l1",
			ProductID:   "p1",
			VariantID:   "v1",
			Operator:    "roshan",
			Destination: "+93700000000",
			Quantity:    1,
			UnitMinor:   50000,
		}},
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(repotest.NewDB(t))

	require.NoError(t, repo.Create(ctx, newOrder("o1")))

	got, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusCreated), got.Status)
	require.Len(t, got.Lines, 1)

	line, err := repo.GetLine(ctx, "o1", "o1-l1")
	require.NoError(t, err)
	assert.Equal(t, "+93700000000", line.Destination)

	_, err = repo.GetLine(ctx, "other", "o1-l1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionIsValidatedAndAudited(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB(t)
	repo := NewOrderRepository(db)
	require.NoError(t, repo.Create(ctx, newOrder("o1")))

	_, err := repo.Transition(ctx, "o1", model.OrderStatusFulfilled, "test", "")
	var te *model.TransitionError
	assert.ErrorAs(t, err, &te)

	o, err := repo.Transition(ctx, "o1", model.OrderStatusPaid, "test", "captured")
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusPaid), o.Status)

	// same state is a no-op and writes no audit row
	_, err = repo.Transition(ctx, "o1", model.OrderStatusPaid, "test", "")
	require.NoError(t, err)

	_, err = repo.Transition(ctx, "o1", model.OrderStatusFulfilled, "test", "")
	require.NoError(t, err)

	logs, err := rpaudit.NewAuditRepository(db).ListByResource(ctx, entity.AuditResourceOrder, "o1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.JSONEq(t, `{"status":"created"}`, string(logs[0].Before))
	assert.JSONEq(t, `{"status":"fulfilled"}`, string(logs[1].After))

	_, err = repo.Transition(ctx, "o1", model.OrderStatusCancelled, "test", "")
	assert.Error(t, err)
}

func TestSetMessage(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(repotest.NewDB(t))
	require.NoError(t, repo.Create(ctx, newOrder("o1")))

	require.NoError(t, repo.SetMessage(ctx, "o1", "provider rejected"))
	o, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "provider rejected", o.LastMessage)

	assert.ErrorIs(t, repo.SetMessage(ctx, "nope", "x"), ErrNotFound)
}

func TestSetMessageTruncatesOnRuneBoundary(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(repotest.NewDB(t))
	require.NoError(t, repo.Create(ctx, newOrder("o1")))

	require.NoError(t, repo.SetMessage(ctx, "o1", strings.Repeat("شبکه قطع است ", 100)))
	o, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(o.LastMessage))
	assert.Equal(t, 512, utf8.RuneCountInString(o.LastMessage))
}
