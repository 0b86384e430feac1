package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestLockIsExclusiveAndTokenBound(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestClient(t)
	locker := NewLocker(rdb)

	first, err := locker.Acquire(ctx, "topup:lock:o1:l1", 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := locker.Acquire(ctx, "topup:lock:o1:l1", 30*time.Second)
	require.NoError(t, err)
	assert.Nil(t, second)

	// expired lock taken by someone else must not be released by the old holder
	mr.FastForward(31 * time.Second)
	third, err := locker.Acquire(ctx, "topup:lock:o1:l1", 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, third)

	released, err := locker.Release(ctx, first)
	require.NoError(t, err)
	assert.False(t, released)

	released, err = locker.Release(ctx, third)
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, mr.Exists("topup:lock:o1:l1"))
}

func TestRegistryReserveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestClient(t)
	reg := NewJobRegistry(rdb, time.Hour)

	rec := &JobRecord{Key: "topup:o1:l1:try2", Kind: "topup_attempt", OrderID: "o1", OrderLineID: "l1", TryNumber: 2, RunAt: time.Now().Add(time.Minute)}
	ok, err := reg.Reserve(ctx, rec)
	require.NoError(t, err)
	assert.True(t, ok)

	dup := *rec
	ok, err = reg.Reserve(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, reg.Update(ctx, rec.Key, func(r *JobRecord) { r.JobID = "job-1" }))
	require.NoError(t, reg.MarkStatus(ctx, rec.Key, JobStatusActive))

	got, err := reg.Get(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, JobStatusActive, got.Status)

	_, err = reg.Get(ctx, "topup:none")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, reg.MarkStatus(ctx, "topup:none", JobStatusDone), ErrJobNotFound)
}

func TestRegistryListFilters(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestClient(t)
	reg := NewJobRegistry(rdb, time.Minute)
	now := time.Now()

	for _, rec := range []*JobRecord{
		{Key: "topup:o1:l1:try3", Kind: "topup_attempt", OrderID: "o1", OrderLineID: "l1", TryNumber: 3, RunAt: now.Add(2 * time.Minute)},
		{Key: "topup:o1:l1:try2", Kind: "topup_attempt", OrderID: "o1", OrderLineID: "l1", TryNumber: 2, RunAt: now.Add(time.Minute)},
		{Key: "topup:o2:l9:try2", Kind: "topup_attempt", OrderID: "o2", OrderLineID: "l9", TryNumber: 2, RunAt: now.Add(time.Minute)},
		{Key: "recurring:s1:100", Kind: "recurring_run", ScheduleID: "s1", RunAt: now},
	} {
		_, err := reg.Reserve(ctx, rec)
		require.NoError(t, err)
	}
	require.NoError(t, reg.MarkStatus(ctx, "topup:o2:l9:try2", JobStatusDone))

	recs, err := reg.List(ctx, JobFilter{OrderID: "o1"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 2, recs[0].TryNumber)
	assert.Equal(t, 3, recs[1].TryNumber)

	recs, err = reg.List(ctx, JobFilter{Kind: "topup_attempt"})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = reg.List(ctx, JobFilter{Kind: "topup_attempt", IncludeDone: true})
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	require.NoError(t, reg.Delete(ctx, "recurring:s1:100"))
	recs, err = reg.List(ctx, JobFilter{Kind: "recurring_run"})
	require.NoError(t, err)
	assert.Empty(t, recs)

	// expired records fall out of the listing
	mr.FastForward(10 * time.Minute)
	recs, err = reg.List(ctx, JobFilter{IncludeDone: true})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestPubSubWait(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestClient(t)
	ps := NewPubSub(rdb)

	sub, err := ps.Subscribe(ctx, "order:status:o1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, ps.Publish(ctx, "order:status:o1", &StatusNotification{OrderID: "o1", State: "delivered"}))

	n, err := Wait(ctx, sub, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "delivered", n.State)

	_, err = Wait(ctx, sub, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestClient(t)
	store := NewIdempotencyStore(rdb, time.Hour)
	key := store.Key("checkout", "abc")
	assert.Equal(t, "idem:checkout:abc", key)

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Save(ctx, key, &CachedResponse{Status: 201, Body: []byte(`{"id":"o1"}`)}))
	require.NoError(t, store.Save(ctx, key, &CachedResponse{Status: 500, Body: []byte(`{}`)}))

	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 201, got.Status)
	assert.JSONEq(t, `{"id":"o1"}`, string(got.Body))
}

func TestRegistryReserveLeavesNothingWhenIndexWriteFails(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestClient(t)
	reg := NewJobRegistry(rdb, time.Hour)

	// wrong type on the index key makes ZADD fail
	require.NoError(t, mr.Set(jobIndexKey, "corrupt"))

	rec := &JobRecord{Key: "topup:o1:l1:try2", Kind: "topup_attempt", OrderID: "o1", TryNumber: 2, RunAt: time.Now().Add(time.Minute)}
	ok, err := reg.Reserve(ctx, rec)
	require.Error(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(rec.Key))

	mr.Del(jobIndexKey)
	ok, err = reg.Reserve(ctx, rec)
	require.NoError(t, err)
	assert.True(t, ok)

	recs, err := reg.List(ctx, JobFilter{OrderID: "o1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec.Key, recs[0].Key)
	assert.True(t, mr.TTL(rec.Key) > time.Minute)
}
