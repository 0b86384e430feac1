package rppayment

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/entity"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/repotest"
)

func TestActiveAuthorizationIsUnique(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository(repotest.NewDB(t))

	first := &entity.PaymentAuthorization{ID: "a1", OrderID: "o1", Provider: "stripe", ProviderRef: "pi_1",
		AmountMinor: 700, Currency: "USD", Status: string(model.PaymentStatusPending)}
	require.NoError(t, repo.Create(ctx, first))

	second := &entity.PaymentAuthorization{ID: "a2", OrderID: "o1", Provider: "stripe", ProviderRef: "pi_2",
		AmountMinor: 700, Currency: "USD", Status: string(model.PaymentStatusPending)}
	assert.ErrorIs(t, repo.Create(ctx, second), ErrActiveExists)

	got, err := repo.GetActiveByOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)

	got, err = repo.GetByProviderRef(ctx, "stripe", "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)
}

func TestTransition(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository(repotest.NewDB(t))
	require.NoError(t, repo.Create(ctx, &entity.PaymentAuthorization{ID: "a1", OrderID: "o1", Provider: "stripe",
		ProviderRef: "pi_1", AmountMinor: 700, Currency: "USD", Status: string(model.PaymentStatusPending)}))

	got, err := repo.Transition(ctx, "a1", model.PaymentStatusCancelled, &Failure{Code: "MAX_RETRIES", Message: "gave up"}, "test")
	require.NoError(t, err)
	assert.Equal(t, string(model.PaymentStatusCancelled), got.Status)
	assert.Equal(t, "MAX_RETRIES", got.ErrorCode)

	_, err = repo.GetActiveByOrder(ctx, "o1")
	assert.ErrorIs(t, err, ErrNotFound)

	latest, err := repo.GetLatestByOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "gave up", latest.ErrorMessage)

	_, err = repo.Transition(ctx, "a1", model.PaymentStatusSucceeded, nil, "test")
	var te *model.TransitionError
	assert.ErrorAs(t, err, &te)
}

func TestFailureMessageIsTruncated(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository(repotest.NewDB(t))

	long := strings.Repeat("карта отклонена ", 100)
	require.NoError(t, repo.Create(ctx, &entity.PaymentAuthorization{ID: "a1", OrderID: "o1", Provider: "stripe",
		AmountMinor: 700, Currency: "USD", Status: string(model.PaymentStatusFailed), ErrorMessage: long}))
	require.NoError(t, repo.Create(ctx, &entity.PaymentAuthorization{ID: "a2", OrderID: "o2", Provider: "stripe",
		ProviderRef: "pi_2", AmountMinor: 700, Currency: "USD", Status: string(model.PaymentStatusPending)}))

	got, err := repo.Transition(ctx, "a2", model.PaymentStatusFailed, &Failure{Code: "card_declined", Message: long}, "test")
	require.NoError(t, err)
	assert.Equal(t, 512, utf8.RuneCountInString(got.ErrorMessage))

	for _, orderID := range []string{"o1", "o2"} {
		a, err := repo.GetLatestByOrder(ctx, orderID)
		require.NoError(t, err)
		assert.True(t, utf8.ValidString(a.ErrorMessage))
		assert.Equal(t, 512, utf8.RuneCountInString(a.ErrorMessage))
	}
}
