package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/foodmarket/internal/domain/cart"
	"github.com/xenking/foodmarket/internal/domain/order"
)

// maxConcurrentWrites bounds the number of notifications persisted in parallel.
const maxConcurrentWrites = 8

// Service creates and serves restaurant notifications.
type Service struct {
	repo      Repository
	publisher Publisher
	newID     func() string
	now       func() time.Time
}

// NewService creates a notification Service. publisher may be nil.
func NewService(repo Repository, publisher Publisher) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		newID:     func() string { return uuid.New().String() },
		now:       time.Now,
	}
}

// Partition groups items by restaurant id, keeping the order in which each
// restaurant first appears.
func Partition(items []cart.Item) (restaurants []string, byRestaurant map[string][]cart.Item) {
	byRestaurant = make(map[string][]cart.Item)
	for _, it := range items {
		if _, ok := byRestaurant[it.RestaurantID]; !ok {
			restaurants = append(restaurants, it.RestaurantID)
		}
		byRestaurant[it.RestaurantID] = append(byRestaurant[it.RestaurantID], it)
	}
	return restaurants, byRestaurant
}

// Build returns one notification per restaurant touched by o, without
// persisting anything.
func (s *Service) Build(o *order.Order) []Notification {
	restaurants, byRestaurant := Partition(o.Items)
	now := s.now().UTC()

	out := make([]Notification, 0, len(restaurants))
	for _, rid := range restaurants {
		items := byRestaurant[rid]
		out = append(out, Notification{
			ID:           s.newID(),
			RestaurantID: rid,
			OrderID:      o.ID,
			Message:      fmt.Sprintf("New order #%s", o.ShortID()),
			Detail: Detail{
				CustomerID: o.UserID,
				Items:      cart.CloneItems(items),
				Subtotal:   cart.Subtotal(items),
				Total:      o.Total,
				CreatedAt:  o.CreatedAt,
			},
			CreatedAt: now,
		})
	}
	return out
}

// FanOut persists one notification per restaurant in o. Each write is
// independent: a failure is logged and does not prevent the others. It
// returns the notifications that were stored.
func (s *Service) FanOut(ctx context.Context, o *order.Order) []Notification {
	lg := zctx.From(ctx)
	pending := s.Build(o)

	var (
		mu      sync.Mutex
		created = make([]Notification, 0, len(pending))
		failed  int
	)
	var g errgroup.Group
	g.SetLimit(maxConcurrentWrites)
	for i := range pending {
		n := &pending[i]
		g.Go(func() error {
			if err := s.repo.Create(ctx, n); err != nil {
				if errors.Is(err, ErrDuplicate) {
					return nil
				}
				mu.Lock()
				failed++
				mu.Unlock()
				lg.Warn("Notification not stored",
					zap.String("order_id", n.OrderID),
					zap.String("restaurant_id", n.RestaurantID),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			created = append(created, *n)
			mu.Unlock()

			if s.publisher != nil {
				if err := s.publisher.Publish(ctx, n); err != nil {
					lg.Warn("Notification not published",
						zap.String("notification_id", n.ID),
						zap.String("restaurant_id", n.RestaurantID),
						zap.Error(err),
					)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if failed > 0 {
		lg.Warn("Partial notification fan-out",
			zap.String("order_id", o.ID),
			zap.Int("failed", failed),
			zap.Int("expected", len(pending)),
		)
	}
	return created
}

// ListForRestaurant returns the restaurant's notifications, newest first.
func (s *Service) ListForRestaurant(ctx context.Context, restaurantID string, unreadOnly bool) ([]Notification, error) {
	list, err := s.repo.ListByRestaurant(ctx, restaurantID, unreadOnly)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	return list, nil
}

// MarkRead flags a notification as read. Marking an already read
// notification succeeds.
func (s *Service) MarkRead(ctx context.Context, restaurantID, id string) error {
	if err := s.repo.MarkRead(ctx, restaurantID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrap(err, "mark notification read")
	}
	return nil
}
