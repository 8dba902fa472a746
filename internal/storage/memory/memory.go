// Package memory implements the marketplace repositories in process memory.
// It backs local development and handler tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xenking/foodmarket/internal/domain/cart"
	"github.com/xenking/foodmarket/internal/domain/notification"
	"github.com/xenking/foodmarket/internal/domain/order"
)

var (
	_ cart.Repository         = (*CartRepository)(nil)
	_ order.Repository        = (*OrderRepository)(nil)
	_ notification.Repository = (*NotificationRepository)(nil)
)

// CartRepository stores carts keyed by user id.
type CartRepository struct {
	mu sync.RWMutex
	m  map[string]*cart.Cart
}

// NewCartRepository returns an empty CartRepository.
func NewCartRepository() *CartRepository {
	return &CartRepository{m: make(map[string]*cart.Cart)}
}

// Get returns a copy of the stored cart.
func (r *CartRepository) Get(_ context.Context, userID string) (*cart.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.m[userID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return copyCart(c), nil
}

// Save stores c when its version matches the stored one.
func (r *CartRepository) Save(_ context.Context, c *cart.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var current int64
	if stored, ok := r.m[c.UserID]; ok {
		current = stored.Version
	}
	if current != c.Version {
		return cart.ErrConflict
	}
	c.Version++
	r.m[c.UserID] = copyCart(c)
	return nil
}

// Clear empties the cart if it exists.
func (r *CartRepository) Clear(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.m[userID]; ok {
		c.Items = []cart.Item{}
		c.Version++
		c.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func copyCart(c *cart.Cart) *cart.Cart {
	cp := *c
	cp.Items = cart.CloneItems(c.Items)
	return &cp
}

// OrderRepository stores orders with a unique payment reference.
type OrderRepository struct {
	mu    sync.RWMutex
	m     map[string]*order.Order
	byRef map[string]string
}

// NewOrderRepository returns an empty OrderRepository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{m: make(map[string]*order.Order), byRef: make(map[string]string)}
}

// Create stores o unless its payment reference is taken.
func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byRef[o.PaymentReference]; ok {
		return order.ErrDuplicateReference
	}
	r.m[o.ID] = copyOrder(o)
	r.byRef[o.PaymentReference] = o.ID
	return nil
}

// Get returns a copy of the order.
func (r *OrderRepository) Get(_ context.Context, id string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.m[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return copyOrder(o), nil
}

// GetByReference returns the order committed for reference.
func (r *OrderRepository) GetByReference(ctx context.Context, reference string) (*order.Order, error) {
	r.mu.RLock()
	id, ok := r.byRef[reference]
	r.mu.RUnlock()
	if !ok {
		return nil, order.ErrNotFound
	}
	return r.Get(ctx, id)
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	return r.list(func(o *order.Order) bool { return o.UserID == userID }), nil
}

// ListByRestaurant returns orders containing the restaurant, newest first.
func (r *OrderRepository) ListByRestaurant(_ context.Context, restaurantID string) ([]order.Order, error) {
	return r.list(func(o *order.Order) bool { return o.HasRestaurant(restaurantID) }), nil
}

// UpdateStatus sets the order status.
func (r *OrderRepository) UpdateStatus(_ context.Context, id string, status order.Status, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.m[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = updatedAt
	return nil
}

func (r *OrderRepository) list(match func(*order.Order) bool) []order.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]order.Order, 0)
	for _, o := range r.m {
		if match(o) {
			out = append(out, *copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func copyOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = cart.CloneItems(o.Items)
	return &cp
}

type notificationKey struct {
	orderID      string
	restaurantID string
}

// NotificationRepository stores notifications, one per order and restaurant.
type NotificationRepository struct {
	mu   sync.RWMutex
	m    map[string]*notification.Notification
	keys map[notificationKey]struct{}
}

// NewNotificationRepository returns an empty NotificationRepository.
func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{
		m:    make(map[string]*notification.Notification),
		keys: make(map[notificationKey]struct{}),
	}
}

// Create stores n unless the restaurant was already notified of the order.
func (r *NotificationRepository) Create(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := notificationKey{orderID: n.OrderID, restaurantID: n.RestaurantID}
	if _, ok := r.keys[key]; ok {
		return notification.ErrDuplicate
	}
	r.keys[key] = struct{}{}
	r.m[n.ID] = copyNotification(n)
	return nil
}

// ListByRestaurant returns the restaurant's notifications, newest first.
func (r *NotificationRepository) ListByRestaurant(_ context.Context, restaurantID string, unreadOnly bool) ([]notification.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]notification.Notification, 0)
	for _, n := range r.m {
		if n.RestaurantID != restaurantID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, *copyNotification(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MarkRead flags the notification as read.
func (r *NotificationRepository) MarkRead(_ context.Context, restaurantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.m[id]
	if !ok || n.RestaurantID != restaurantID {
		return notification.ErrNotFound
	}
	n.Read = true
	return nil
}

func copyNotification(n *notification.Notification) *notification.Notification {
	cp := *n
	cp.Detail.Items = cart.CloneItems(n.Detail.Items)
	return &cp
}
