package notification

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodmarket/internal/domain/cart"
)

var (
	// ErrNotFound is returned when a notification does not exist or belongs
	// to another restaurant.
	ErrNotFound = errors.New("notification not found")
	// ErrDuplicate is returned by Repository.Create when a notification for
	// the same order and restaurant already exists.
	ErrDuplicate = errors.New("notification already exists")
)

// Notification is a restaurant-scoped alert about a new order.
type Notification struct {
	ID           string
	RestaurantID string
	OrderID      string
	Message      string
	Detail       Detail
	Read         bool
	CreatedAt    time.Time
}

// Detail is the slice of the order relevant to one restaurant.
type Detail struct {
	CustomerID string          `json:"customerId"`
	Items      []cart.Item     `json:"items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Total      decimal.Decimal `json:"total"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Repository persists notifications.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	// ListByRestaurant returns notifications newest first.
	ListByRestaurant(ctx context.Context, restaurantID string, unreadOnly bool) ([]Notification, error)
	// MarkRead sets the read flag on a notification owned by restaurantID.
	// It returns ErrNotFound when no such notification exists.
	MarkRead(ctx context.Context, restaurantID, id string) error
}

// Publisher forwards persisted notifications to an event stream.
type Publisher interface {
	Publish(ctx context.Context, n *Notification) error
}
