// Package redis caches carts in Redis in front of the primary store.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/foodmarket/internal/domain/cart"
)

// DefaultTTL bounds how long a cached cart survives without writes.
const DefaultTTL = 30 * time.Minute

const (
	keyPrefix    = "foodmarket:cart:"
	fieldVersion = "version"
	fieldCart    = "cart"
)

// storeScript writes an entry unless the cached one is at least as new.
// KEYS[1] cart key; ARGV[1] version, ARGV[2] payload, ARGV[3] ttl in ms.
var storeScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'version'))
if cur and cur >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'cart', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

type cachedCart struct {
	Items     []cart.Item `json:"items"`
	Version   int64       `json:"version"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

var _ cart.Repository = (*CartCache)(nil)

// CartCache is a read-through, write-through cart.Repository. The wrapped
// repository stays authoritative: version checks happen there, and a failed
// write evicts the cached entry. Cache fills never replace a newer version,
// so a slow reader cannot resurrect a cart that was written or cleared after
// it loaded. Redis errors never fail a request.
type CartCache struct {
	next   cart.Repository
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCartCache wraps next with a Redis cache.
func NewCartCache(next cart.Repository, client redis.UniversalClient, ttl time.Duration) *CartCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CartCache{next: next, client: client, ttl: ttl}
}

func key(userID string) string { return keyPrefix + userID }

// Get serves the cart from Redis, falling back to the wrapped repository.
func (c *CartCache) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	raw, err := c.client.HGet(ctx, key(userID), fieldCart).Bytes()
	switch {
	case err == nil:
		var cc cachedCart
		if jerr := json.Unmarshal(raw, &cc); jerr == nil {
			return &cart.Cart{
				UserID:    userID,
				Items:     cart.CloneItems(cc.Items),
				Version:   cc.Version,
				UpdatedAt: cc.UpdatedAt,
			}, nil
		}
		c.evict(ctx, userID)
	case !errors.Is(err, redis.Nil):
		zctx.From(ctx).Warn("Cart cache read failed", zap.String("user_id", userID), zap.Error(err))
	}

	stored, err := c.next.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, stored)
	return stored, nil
}

// Save writes through to the wrapped repository and refreshes the cache.
func (c *CartCache) Save(ctx context.Context, cr *cart.Cart) error {
	if err := c.next.Save(ctx, cr); err != nil {
		c.evict(ctx, cr.UserID)
		return err
	}
	c.store(ctx, cr)
	return nil
}

// Clear empties the cart and caches the emptied version in place of the
// previous entry.
func (c *CartCache) Clear(ctx context.Context, userID string) error {
	if err := c.next.Clear(ctx, userID); err != nil {
		c.evict(ctx, userID)
		return err
	}
	cleared, err := c.next.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, cart.ErrNotFound) {
			zctx.From(ctx).Warn("Cart reload after clear failed", zap.String("user_id", userID), zap.Error(err))
		}
		c.evict(ctx, userID)
		return nil
	}
	c.store(ctx, cleared)
	return nil
}

func (c *CartCache) store(ctx context.Context, cr *cart.Cart) {
	raw, err := json.Marshal(cachedCart{Items: cart.CloneItems(cr.Items), Version: cr.Version, UpdatedAt: cr.UpdatedAt})
	if err != nil {
		return
	}
	keys := []string{key(cr.UserID)}
	if err := storeScript.Run(ctx, c.client, keys, cr.Version, raw, c.ttl.Milliseconds()).Err(); err != nil {
		zctx.From(ctx).Warn("Cart cache write failed", zap.String("user_id", cr.UserID), zap.Error(err))
		c.evict(ctx, cr.UserID)
	}
}

func (c *CartCache) evict(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, key(userID)).Err(); err != nil {
		zctx.From(ctx).Warn("Cart cache eviction failed", zap.String("user_id", userID), zap.Error(err))
	}
}
