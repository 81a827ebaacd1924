package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/artisan-checkout/internal/domain/payment"
)

func setupTestRedis(t *testing.T) (*IdempotencyCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewIdempotencyCache(client, time.Minute), mr
}

func TestIdempotencyCache_Miss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	o, err := cache.Get(context.Background(), "user-1", "k1")
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestIdempotencyCache_PutGet(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	want := &payment.GatewayOrder{ID: "order_abc", Amount: 55000, Currency: "INR"}
	require.NoError(t, cache.Put(ctx, "user-1", "k1", want))

	got, err := cache.Get(ctx, "user-1", "k1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Equal(t, time.Minute, mr.TTL(cacheKey("user-1", "k1")))
}

func TestIdempotencyCache_ScopedByUser(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "user-1", "k1", &payment.GatewayOrder{ID: "order_abc", Amount: 100}))

	got, err := cache.Get(ctx, "user-2", "k1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIdempotencyCache_Expires(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "user-1", "k1", &payment.GatewayOrder{ID: "order_abc", Amount: 100}))
	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, "user-1", "k1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIdempotencyCache_CorruptEntry(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(cacheKey("user-1", "k1"), "not json"))

	_, err := cache.Get(context.Background(), "user-1", "k1")
	require.Error(t, err)
}

func TestIdempotencyCache_Unavailable(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, err := cache.Get(context.Background(), "user-1", "k1")
	require.Error(t, err)
	require.Error(t, cache.Ping(context.Background()))
}

func TestIdempotencyCache_Ledger(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	got, err := cache.Lookup(ctx, "order_abc")
	require.NoError(t, err)
	assert.Nil(t, got)

	want := &payment.GatewayOrder{ID: "order_abc", Amount: 55000, Currency: "INR"}
	require.NoError(t, cache.Record(ctx, want))

	got, err = cache.Lookup(ctx, "order_abc")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, LedgerTTL, mr.TTL(ledgerKey("order_abc")))

	idem, err := cache.Get(ctx, "user-1", "order_abc")
	require.NoError(t, err)
	assert.Nil(t, idem, "ledger entries do not answer idempotency lookups")
}
