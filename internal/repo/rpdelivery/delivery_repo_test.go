package rpdelivery

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/entity"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/repotest"
)

func TestUpsertKeepsOneRowPerAttemptID(t *testing.T) {
	ctx := context.Background()
	repo := NewDeliveryRepository(repotest.NewDB(t))

	extID := model.ExternalAttemptID("o1", "l1")
	require.NoError(t, repo.Upsert(ctx, &entity.DeliveryAttemptLog{
		OrderID: "o1", OrderLineID: "l1", ExternalAttemptID: extID, Provider: "mock",
		TryNumber: 1, Status: string(model.DeliveryStatusFailed), ErrorCode: "NETWORK",
	}))
	require.NoError(t, repo.Upsert(ctx, &entity.DeliveryAttemptLog{
		OrderID: "o1", OrderLineID: "l1", ExternalAttemptID: extID, Provider: "mock",
		TryNumber: 2, Status: string(model.DeliveryStatusAccepted), ProviderTxnID: "tx-9",
		LastAttemptedAt: time.Now().Add(time.Second),
	}))

	logs, err := repo.ListByLine(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 2, logs[0].TryNumber)
	assert.Equal(t, string(model.DeliveryStatusAccepted), logs[0].Status)
	assert.Equal(t, "", logs[0].ErrorCode)
	assert.Equal(t, "tx-9", logs[0].ProviderTxnID)

	latest, err := repo.LatestByOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, extID, latest.ExternalAttemptID)

	_, err = repo.LatestByOrder(ctx, "o2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertTruncatesLongErrorMessage(t *testing.T) {
	ctx := context.Background()
	repo := NewDeliveryRepository(repotest.NewDB(t))

	extID := model.ExternalAttemptID("o1", "l1")
	require.NoError(t, repo.Upsert(ctx, &entity.DeliveryAttemptLog{
		OrderID: "o1", OrderLineID: "l1", ExternalAttemptID: extID, Provider: "mock",
		TryNumber: 1, Status: string(model.DeliveryStatusFailed), ErrorCode: "NETWORK",
		ErrorMessage: strings.Repeat("运营商网关超时", 200),
	}))

	got, err := repo.Get(ctx, "l1", extID)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(got.ErrorMessage))
	assert.Equal(t, 512, utf8.RuneCountInString(got.ErrorMessage))
}
