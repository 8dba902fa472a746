package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodmarket/internal/domain/cart"
)

var (
	// ErrNotFound is returned when an order does not exist or is not visible
	// to the caller.
	ErrNotFound = errors.New("order not found")
	// ErrForbidden is returned when the caller may not modify the order.
	ErrForbidden = errors.New("not allowed to modify this order")
	// ErrDuplicateReference is returned by Repository.Create when an order
	// with the same payment reference already exists.
	ErrDuplicateReference = errors.New("order with this payment reference already exists")
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusPreparing Status = "preparing"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// ParseStatus validates s against the known statuses.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusCompleted, StatusPreparing, StatusInTransit,
		StatusDelivered, StatusCancelled, StatusFailed:
		return st, nil
	}
	return "", &InvalidStatusError{Status: s}
}

// InvalidStatusError indicates an unknown status value.
type InvalidStatusError struct {
	Status string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("unknown order status %q", e.Status)
}

// Order is a placed purchase. Items and charges never change after creation.
type Order struct {
	ID     string
	UserID string
	Items  []cart.Item
	Charges
	PaymentReference string
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasRestaurant reports whether any line item belongs to restaurantID.
func (o *Order) HasRestaurant(restaurantID string) bool {
	for _, it := range o.Items {
		if it.RestaurantID == restaurantID {
			return true
		}
	}
	return false
}

// ShortID returns the first eight characters of the order id.
func (o *Order) ShortID() string {
	if len(o.ID) <= 8 {
		return o.ID
	}
	return o.ID[:8]
}

// Charges are the monetary fields of an order.
type Charges struct {
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	ServiceFee  decimal.Decimal
	Tax         decimal.Decimal
	Tip         decimal.Decimal
	Donation    decimal.Decimal
	Total       decimal.Decimal
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores a new order. It returns ErrDuplicateReference when the
	// payment reference is already taken.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// GetByReference returns ErrNotFound when no order carries reference.
	GetByReference(ctx context.Context, reference string) (*Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// ListByRestaurant returns orders containing at least one line item of
	// the restaurant, newest first.
	ListByRestaurant(ctx context.Context, restaurantID string) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status, updatedAt time.Time) error
}
