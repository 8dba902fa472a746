package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/foodmarket/internal/domain/cart"
	"github.com/xenking/foodmarket/internal/storage/memory"
)

type countingRepo struct {
	cart.Repository
	gets    int
	saveErr error
	// afterGet runs once, after the backing read and before the result is
	// returned to the cache.
	afterGet func()
}

func (r *countingRepo) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	r.gets++
	c, err := r.Repository.Get(ctx, userID)
	if hook := r.afterGet; hook != nil {
		r.afterGet = nil
		hook()
	}
	return c, err
}

func (r *countingRepo) Save(ctx context.Context, c *cart.Cart) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	return r.Repository.Save(ctx, c)
}

func newCache(t *testing.T) (*CartCache, *countingRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	next := &countingRepo{Repository: memory.NewCartRepository()}
	return NewCartCache(next, client, time.Minute), next, mr
}

func sampleCart(userID string) *cart.Cart {
	return &cart.Cart{
		UserID: userID,
		Items: []cart.Item{
			{ID: "jollof", Name: "Jollof", Price: decimal.RequireFromString("6.50"), RestaurantID: "r1", Quantity: 2},
		},
	}
}

func TestCartCache_ReadThrough(t *testing.T) {
	cache, next, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, next.Repository.Save(ctx, sampleCart("u1")))

	first, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(key("u1")))
	assert.Equal(t, time.Minute, mr.TTL(key("u1")))

	second, err := cache.Get(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, next.gets)
	assert.Equal(t, first.Version, second.Version)
	assert.True(t, decimal.RequireFromString("6.5").Equal(second.Items[0].Price))
}

func TestCartCache_MissingCartNotCached(t *testing.T) {
	cache, _, mr := newCache(t)

	_, err := cache.Get(context.Background(), "nobody")
	require.ErrorIs(t, err, cart.ErrNotFound)
	assert.False(t, mr.Exists(key("nobody")))
}

func TestCartCache_WriteThrough(t *testing.T) {
	cache, next, _ := newCache(t)
	ctx := context.Background()

	c := sampleCart("u1")
	require.NoError(t, cache.Save(ctx, c))
	assert.EqualValues(t, 1, c.Version)

	got, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, next.gets)
	assert.EqualValues(t, 1, got.Version)
}

func TestCartCache_FailedWriteEvicts(t *testing.T) {
	cache, next, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, sampleCart("u1")))
	require.True(t, mr.Exists(key("u1")))

	next.saveErr = errors.New("db write failed")
	c := sampleCart("u1")
	c.Version = 1
	require.Error(t, cache.Save(ctx, c))
	assert.False(t, mr.Exists(key("u1")))
}

func TestCartCache_ConflictPassesThrough(t *testing.T) {
	cache, _, _ := newCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, sampleCart("u1")))
	require.ErrorIs(t, cache.Save(ctx, sampleCart("u1")), cart.ErrConflict)
}

func TestCartCache_ClearCachesEmptyCart(t *testing.T) {
	cache, next, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, sampleCart("u1")))
	require.NoError(t, cache.Clear(ctx, "u1"))
	assert.Equal(t, "2", mr.HGet(key("u1"), fieldVersion))

	gets := next.gets
	got, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.EqualValues(t, 2, got.Version)
	assert.Equal(t, gets, next.gets)
}

func TestCartCache_ClearMissingCart(t *testing.T) {
	cache, _, mr := newCache(t)

	require.NoError(t, cache.Clear(context.Background(), "nobody"))
	assert.False(t, mr.Exists(key("nobody")))
}

func TestCartCache_StaleFillAfterClear(t *testing.T) {
	cache, next, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, sampleCart("u1")))
	mr.Del(key("u1"))

	// The reader loads version 1 from the store, checkout clears the cart,
	// then the reader tries to cache what it loaded.
	next.afterGet = func() {
		require.NoError(t, cache.Clear(ctx, "u1"))
	}
	stale, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, stale.Items, 1)

	stored, err := next.Repository.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, stored.Items)

	got, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.Equal(t, stored.Version, got.Version)
}

func TestCartCache_OlderVersionNeverOverwrites(t *testing.T) {
	cache, _, mr := newCache(t)
	ctx := context.Background()

	c := sampleCart("u1")
	require.NoError(t, cache.Save(ctx, c))
	c.Items[0].Quantity = 5
	require.NoError(t, cache.Save(ctx, c))
	require.EqualValues(t, 2, c.Version)

	old := sampleCart("u1")
	old.Version = 1
	cache.store(ctx, old)

	assert.Equal(t, "2", mr.HGet(key("u1"), fieldVersion))
	got, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Items[0].Quantity)
}

func TestCartCache_RedisDownFallsBack(t *testing.T) {
	cache, next, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, next.Repository.Save(ctx, sampleCart("u1")))
	mr.Close()

	got, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)

	c := got
	c.Items[0].Quantity = 3
	require.NoError(t, cache.Save(ctx, c))
}

func TestCartCache_CorruptEntryIsReloaded(t *testing.T) {
	cache, next, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, next.Repository.Save(ctx, sampleCart("u1")))
	mr.HSet(key("u1"), fieldVersion, "1", fieldCart, "{not json")

	got, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
	assert.Equal(t, 1, next.gets)
}
