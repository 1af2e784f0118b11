package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldvine/fieldvine/pkg/subscriptions"
)

func newTestCache(t *testing.T) (*PortalCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewPortalCacheWithClient(client), mr
}

func samplePortalModel() []*subscriptions.CustomerSubscription {
	return []*subscriptions.CustomerSubscription{
		{
			Subscription: &subscriptions.Subscription{
				ID:                 1,
				BusinessID:         10,
				CustomerID:         20,
				SubscriptionNumber: "SUB-00001",
				Status:             subscriptions.StatusActive,
				Frequency:          subscriptions.FrequencyWeekly,
				BillingModel:       subscriptions.BillingPrepay,
				PricePerVisit:      decimal.NewFromInt(50),
				Timezone:           "UTC",
			},
			Upcoming: []subscriptions.UpcomingVisit{
				{ScheduleEntryID: 11, ScheduledDate: time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC), Version: 1},
			},
		},
	}
}

func TestPortalCache_RoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, ok, err := cache.GetCustomerSubscriptions(ctx, 10, 20, 3)
	require.NoError(t, err)
	assert.False(t, ok, "cold cache must miss")

	require.NoError(t, cache.SetCustomerSubscriptions(ctx, 10, 20, 3, samplePortalModel()))

	got, ok, err := cache.GetCustomerSubscriptions(ctx, 10, 20, 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "SUB-00001", got[0].Subscription.SubscriptionNumber)
	require.Len(t, got[0].Upcoming, 1)
	assert.Equal(t, int64(11), got[0].Upcoming[0].ScheduleEntryID)
}

func TestPortalCache_KeyedByUpcomingCount(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetCustomerSubscriptions(ctx, 10, 20, 3, samplePortalModel()))

	_, ok, err := cache.GetCustomerSubscriptions(ctx, 10, 20, 5)
	require.NoError(t, err)
	assert.False(t, ok, "a different upcoming count is a different key")
}

func TestPortalCache_InvalidateCustomer(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetCustomerSubscriptions(ctx, 10, 20, 3, samplePortalModel()))
	require.NoError(t, cache.SetCustomerSubscriptions(ctx, 10, 20, 5, samplePortalModel()))
	require.NoError(t, cache.SetCustomerSubscriptions(ctx, 10, 21, 3, samplePortalModel()))

	require.NoError(t, cache.InvalidateCustomer(ctx, 10, 20))

	_, ok, err := cache.GetCustomerSubscriptions(ctx, 10, 20, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = cache.GetCustomerSubscriptions(ctx, 10, 20, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	// The neighboring customer's entry survives.
	_, ok, err = cache.GetCustomerSubscriptions(ctx, 10, 21, 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPortalCache_InvalidateMissingCustomerIsNoop(t *testing.T) {
	cache, _ := newTestCache(t)
	assert.NoError(t, cache.InvalidateCustomer(context.Background(), 10, 999))
}

func TestPortalCache_CorruptEntryTreatedAsMiss(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("portal:10:20:3", "not json"))

	_, ok, err := cache.GetCustomerSubscriptions(ctx, 10, 20, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	// The bad entry was dropped.
	assert.False(t, mr.Exists("portal:10:20:3"))
}

func TestPortalCache_EntriesExpire(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetCustomerSubscriptions(ctx, 10, 20, 3, samplePortalModel()))

	mr.FastForward(PortalCacheTTL + time.Second)

	_, ok, err := cache.GetCustomerSubscriptions(ctx, 10, 20, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}
