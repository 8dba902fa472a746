package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Defaults applied to optional item fields on first add.
const (
	DefaultImage    = "/images/placeholder.png"
	DefaultCategory = "General"
)

var (
	// ErrNotFound is returned when the cart, or the item inside it, does not exist.
	ErrNotFound = errors.New("cart item not found")
	// ErrConflict is returned when a cart was modified concurrently and the
	// write is based on a stale version.
	ErrConflict = errors.New("cart was modified concurrently")
)

// Cart is the per-user pre-checkout collection of items from one restaurant.
type Cart struct {
	UserID string
	Items  []Item
	// Version increases on every successful write; zero means the cart has
	// never been stored.
	Version   int64
	UpdatedAt time.Time
}

// Item is a single line in a cart or order.
type Item struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	RestaurantID   string          `json:"restaurantId"`
	RestaurantName string          `json:"restaurantName"`
	Image          string          `json:"image"`
	Category       string          `json:"category"`
	Description    string          `json:"description"`
	Quantity       int             `json:"quantity"`
}

// LineTotal returns price * quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// IsEmpty reports whether the cart holds no items. A nil cart is empty.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// RestaurantID returns the restaurant of the first item, or "" for an empty cart.
func (c *Cart) RestaurantID() string {
	if c.IsEmpty() {
		return ""
	}
	return c.Items[0].RestaurantID
}

// Subtotal sums price * quantity over all items.
func Subtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// CloneItems returns a deep copy of items. Items contain only value fields,
// so a copied slice is fully detached from the source.
func CloneItems(items []Item) []Item {
	if items == nil {
		return []Item{}
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// ValidationError describes a malformed item payload or update request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CrossRestaurantError is returned when an item from another restaurant is
// added to a non-empty cart.
type CrossRestaurantError struct {
	CartRestaurantID   string
	CartRestaurantName string
	ItemRestaurantID   string
	ItemRestaurantName string
}

func (e *CrossRestaurantError) Error() string {
	return fmt.Sprintf("your cart already contains items from %s; clear it before adding items from %s",
		displayName(e.CartRestaurantName, e.CartRestaurantID),
		displayName(e.ItemRestaurantName, e.ItemRestaurantID),
	)
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	if id != "" {
		return "restaurant " + id
	}
	return "another restaurant"
}

// Repository persists carts keyed by user id.
type Repository interface {
	// Get returns the stored cart, or ErrNotFound if none exists yet.
	Get(ctx context.Context, userID string) (*Cart, error)
	// Save writes c.Items if the stored version still equals c.Version
	// (zero meaning "not stored yet"). On success c.Version is advanced.
	// A stale version yields ErrConflict.
	Save(ctx context.Context, c *Cart) error
	// Clear empties the cart regardless of its version. Clearing a missing
	// cart is not an error.
	Clear(ctx context.Context, userID string) error
}
