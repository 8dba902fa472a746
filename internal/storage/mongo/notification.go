package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/foodmarket/internal/domain/notification"
)

type notificationDoc struct {
	ID           string    `bson:"_id"`
	RestaurantID string    `bson:"restaurant_id"`
	OrderID      string    `bson:"order_id"`
	Message      string    `bson:"message"`
	Detail       detailDoc `bson:"detail"`
	Read         bool      `bson:"read"`
	CreatedAt    time.Time `bson:"created_at"`
}

type detailDoc struct {
	CustomerID string               `bson:"customer_id"`
	Items      []itemDoc            `bson:"items"`
	Subtotal   primitive.Decimal128 `bson:"subtotal"`
	Total      primitive.Decimal128 `bson:"total"`
	CreatedAt  time.Time            `bson:"created_at"`
}

var _ notification.Repository = (*NotificationRepository)(nil)

// NotificationRepository implements notification.Repository on MongoDB.
type NotificationRepository struct {
	col *mongo.Collection
}

// NewNotificationRepository returns a NotificationRepository using db's
// notifications collection.
func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{col: db.Collection(NotificationsCollection)}
}

// Create stores n. The unique (order_id, restaurant_id) index rejects a
// second notification for the same pair.
func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	items, err := toItemDocs(n.Detail.Items)
	if err != nil {
		return err
	}
	subtotal, err := toDecimal128(n.Detail.Subtotal)
	if err != nil {
		return err
	}
	total, err := toDecimal128(n.Detail.Total)
	if err != nil {
		return err
	}

	_, err = r.col.InsertOne(ctx, notificationDoc{
		ID:           n.ID,
		RestaurantID: n.RestaurantID,
		OrderID:      n.OrderID,
		Message:      n.Message,
		Detail: detailDoc{
			CustomerID: n.Detail.CustomerID,
			Items:      items,
			Subtotal:   subtotal,
			Total:      total,
			CreatedAt:  n.Detail.CreatedAt,
		},
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return notification.ErrDuplicate
		}
		return fmt.Errorf("creating notification for order %q: %w", n.OrderID, err)
	}
	return nil
}

// ListByRestaurant returns the restaurant's notifications, newest first.
func (r *NotificationRepository) ListByRestaurant(ctx context.Context, restaurantID string, unreadOnly bool) ([]notification.Notification, error) {
	filter := bson.D{{Key: "restaurant_id", Value: restaurantID}}
	if unreadOnly {
		filter = append(filter, bson.E{Key: "read", Value: false})
	}
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("listing notifications of restaurant %q: %w", restaurantID, err)
	}
	var docs []notificationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding notifications: %w", err)
	}

	out := make([]notification.Notification, 0, len(docs))
	for _, d := range docs {
		items, err := fromItemDocs(d.Detail.Items)
		if err != nil {
			return nil, err
		}
		subtotal, err := fromDecimal128(d.Detail.Subtotal)
		if err != nil {
			return nil, err
		}
		total, err := fromDecimal128(d.Detail.Total)
		if err != nil {
			return nil, err
		}
		out = append(out, notification.Notification{
			ID:           d.ID,
			RestaurantID: d.RestaurantID,
			OrderID:      d.OrderID,
			Message:      d.Message,
			Detail: notification.Detail{
				CustomerID: d.Detail.CustomerID,
				Items:      items,
				Subtotal:   subtotal,
				Total:      total,
				CreatedAt:  d.Detail.CreatedAt,
			},
			Read:      d.Read,
			CreatedAt: d.CreatedAt,
		})
	}
	return out, nil
}

// MarkRead flags the notification as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, restaurantID, id string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "restaurant_id", Value: restaurantID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "read", Value: true}}}},
	)
	if err != nil {
		return fmt.Errorf("marking notification %q read: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return notification.ErrNotFound
	}
	return nil
}
