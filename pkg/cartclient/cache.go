// Package cartclient is a client for the cart API with an optimistic local
// cache.
//
// Mutations are applied to the local view first and then written to the
// server. When the write fails, the local view is rolled back to its state
// before the mutation. On success the local view is replaced by the server's
// answer, which remains the source of truth.
package cartclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Item is a cart line as seen by the client.
type Item struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	RestaurantID   string          `json:"restaurantId"`
	RestaurantName string          `json:"restaurantName"`
	Image          string          `json:"image,omitempty"`
	Category       string          `json:"category,omitempty"`
	Description    string          `json:"description,omitempty"`
	Quantity       int             `json:"quantity"`
}

// Action is a cart line update.
type Action string

const (
	Increment Action = "increment"
	Decrement Action = "decrement"
	Remove    Action = "remove"
)

// Remote is the durable cart store.
type Remote interface {
	Read(ctx context.Context) ([]Item, error)
	Add(ctx context.Context, it Item) ([]Item, error)
	Update(ctx context.Context, itemID string, action Action) ([]Item, error)
	Clear(ctx context.Context) error
}

// ErrItemNotInCart is returned when updating an item the local view does
// not hold.
var ErrItemNotInCart = errors.New("item is not in the cart")

// CrossRestaurantError rejects adding an item from a different restaurant
// than the one already in the cart. No request is sent.
type CrossRestaurantError struct {
	InCart string
	Adding string
}

func (e *CrossRestaurantError) Error() string {
	return fmt.Sprintf("your cart already contains items from %s; clear it before adding items from %s", e.InCart, e.Adding)
}

// Cache mirrors one user's cart.
type Cache struct {
	remote Remote

	// writes serializes mutations so a rollback restores exactly the state
	// its own mutation replaced.
	writes sync.Mutex

	mu     sync.RWMutex
	items  []Item
	loaded bool
}

// New creates an empty, unloaded Cache.
func New(remote Remote) *Cache {
	return &Cache{remote: remote}
}

// Items returns a copy of the local view.
func (c *Cache) Items() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneItems(c.items)
}

// Loaded reports whether the view was ever synchronised with the server.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Subtotal sums price times quantity over the local view.
func (c *Cache) Subtotal() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sum := decimal.Zero
	for _, it := range c.items {
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// Refresh replaces the local view with the server's cart.
func (c *Cache) Refresh(ctx context.Context) error {
	c.writes.Lock()
	defer c.writes.Unlock()

	items, err := c.remote.Read(ctx)
	if err != nil {
		return errors.Wrap(err, "read cart")
	}
	c.set(items)
	return nil
}

// Add optimistically adds one unit of it and writes it to the server.
func (c *Cache) Add(ctx context.Context, it Item) error {
	return c.mutate(ctx, func(items []Item) ([]Item, error) {
		if len(items) > 0 && items[0].RestaurantID != it.RestaurantID {
			return nil, &CrossRestaurantError{
				InCart: restaurantName(items[0]),
				Adding: restaurantName(it),
			}
		}
		if i := indexOf(items, it.ID); i >= 0 {
			items[i].Quantity++
			return items, nil
		}
		it.Quantity = 1
		return append(items, it), nil
	}, func(ctx context.Context) ([]Item, error) {
		return c.remote.Add(ctx, it)
	})
}

// Update optimistically applies action to itemID and writes it to the
// server.
func (c *Cache) Update(ctx context.Context, itemID string, action Action) error {
	return c.mutate(ctx, func(items []Item) ([]Item, error) {
		i := indexOf(items, itemID)
		if i < 0 {
			return nil, ErrItemNotInCart
		}
		switch action {
		case Increment:
			items[i].Quantity++
		case Decrement:
			items[i].Quantity--
			if items[i].Quantity <= 0 {
				items = append(items[:i], items[i+1:]...)
			}
		case Remove:
			items = append(items[:i], items[i+1:]...)
		default:
			return nil, errors.Errorf("unknown action %q", action)
		}
		return items, nil
	}, func(ctx context.Context) ([]Item, error) {
		return c.remote.Update(ctx, itemID, action)
	})
}

// Clear optimistically empties the cart and clears it on the server.
func (c *Cache) Clear(ctx context.Context) error {
	return c.mutate(ctx, func([]Item) ([]Item, error) {
		return []Item{}, nil
	}, func(ctx context.Context) ([]Item, error) {
		if err := c.remote.Clear(ctx); err != nil {
			return nil, err
		}
		return []Item{}, nil
	})
}

// mutate applies local to a copy of the view, publishes it, runs write and
// either adopts the server result or restores the previous view.
func (c *Cache) mutate(
	ctx context.Context,
	local func([]Item) ([]Item, error),
	write func(context.Context) ([]Item, error),
) error {
	c.writes.Lock()
	defer c.writes.Unlock()

	before := c.Items()
	next, err := local(cloneItems(before))
	if err != nil {
		return err
	}
	c.set(next)

	items, err := write(ctx)
	if err != nil {
		c.restore(before)
		return err
	}
	c.set(items)
	return nil
}

func (c *Cache) set(items []Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = cloneItems(items)
	c.loaded = true
}

func (c *Cache) restore(items []Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = items
}

func indexOf(items []Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func restaurantName(it Item) string {
	if it.RestaurantName != "" {
		return it.RestaurantName
	}
	return "restaurant " + it.RestaurantID
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
