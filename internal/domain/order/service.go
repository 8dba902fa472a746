package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/foodmarket/internal/domain/auth"
)

// Service implements order queries and restaurant-side status changes.
type Service struct {
	orders Repository
	policy Policy
	now    func() time.Time
}

// NewService creates an order Service enforcing the given transition policy.
func NewService(orders Repository, policy Policy) *Service {
	return &Service{
		orders: orders,
		policy: policy,
		now:    time.Now,
	}
}

// ListForUser returns the user's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list user orders")
	}
	return orders, nil
}

// ListForRestaurant returns every order containing at least one of the
// restaurant's items, newest first.
func (s *Service) ListForRestaurant(ctx context.Context, restaurantID string) ([]Order, error) {
	orders, err := s.orders.ListByRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, errors.Wrap(err, "list restaurant orders")
	}
	return orders, nil
}

// Get returns an order visible to the caller: its owner, a restaurant with
// items in it, or an admin. Invisible orders are reported as ErrNotFound.
func (s *Service) Get(ctx context.Context, caller *auth.Identity, id string) (*Order, error) {
	o, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.IsAdmin() || o.UserID == caller.Subject || caller.ManagesRestaurant(restaurantOf(caller, o)) {
		return o, nil
	}
	return nil, ErrNotFound
}

// UpdateStatus moves an order to status. Only admins and restaurants owning
// at least one line item may do so.
func (s *Service) UpdateStatus(ctx context.Context, caller *auth.Identity, id string, status Status) (*Order, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}

	o, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !caller.ManagesRestaurant(restaurantOf(caller, o)) {
		return nil, ErrForbidden
	}
	if o.Status == status {
		return o, nil
	}
	if !s.policy.Allows(o.Status, status) {
		return nil, &TransitionError{From: o.Status, To: status}
	}

	now := s.now().UTC()
	if err := s.orders.UpdateStatus(ctx, o.ID, status, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "update order status")
	}
	o.Status = status
	o.UpdatedAt = now
	return o, nil
}

func (s *Service) get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// restaurantOf returns the caller's restaurant id when the order contains
// items from it, and "" otherwise.
func restaurantOf(caller *auth.Identity, o *Order) string {
	if caller == nil || caller.RestaurantID == "" || !o.HasRestaurant(caller.RestaurantID) {
		return ""
	}
	return caller.RestaurantID
}
