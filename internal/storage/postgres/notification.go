package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodmarket/internal/domain/notification"
)

const (
	notificationColumns = `id, restaurant_id, order_id, message, detail, read, created_at`

	createNotificationSQL = `INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	listNotificationsSQL = `SELECT ` + notificationColumns + ` FROM notifications
		WHERE restaurant_id = $1 AND (NOT $2 OR NOT read)
		ORDER BY created_at DESC`

	markNotificationReadSQL = `UPDATE notifications SET read = TRUE
		WHERE id = $1 AND restaurant_id = $2`

	orderRestaurantConstraint = "notifications_order_restaurant_key"
)

var _ notification.Repository = (*NotificationRepository)(nil)

// NotificationRepository implements notification.Repository backed by
// PostgreSQL.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository returns a NotificationRepository that uses the
// given pool.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Create stores n. A second notification for the same order and restaurant
// yields notification.ErrDuplicate.
func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	detailJSON, err := json.Marshal(n.Detail)
	if err != nil {
		return fmt.Errorf("marshaling notification detail: %w", err)
	}

	_, err = r.pool.Exec(ctx, createNotificationSQL,
		n.ID, n.RestaurantID, n.OrderID, n.Message, detailJSON, n.Read, n.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, orderRestaurantConstraint) {
			return notification.ErrDuplicate
		}
		return fmt.Errorf("creating notification for order %q: %w", n.OrderID, err)
	}
	return nil
}

// ListByRestaurant returns the restaurant's notifications, newest first.
func (r *NotificationRepository) ListByRestaurant(ctx context.Context, restaurantID string, unreadOnly bool) ([]notification.Notification, error) {
	rows, err := r.pool.Query(ctx, listNotificationsSQL, restaurantID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("listing notifications of restaurant %q: %w", restaurantID, err)
	}
	return pgx.CollectRows(rows, scanNotification)
}

// MarkRead flags the notification as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, restaurantID, id string) error {
	tag, err := r.pool.Exec(ctx, markNotificationReadSQL, id, restaurantID)
	if err != nil {
		return fmt.Errorf("marking notification %q read: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func scanNotification(row pgx.CollectableRow) (notification.Notification, error) {
	var (
		n      notification.Notification
		detail []byte
	)
	if err := row.Scan(&n.ID, &n.RestaurantID, &n.OrderID, &n.Message, &detail, &n.Read, &n.CreatedAt); err != nil {
		return n, err
	}
	if err := json.Unmarshal(detail, &n.Detail); err != nil {
		return n, fmt.Errorf("unmarshaling notification detail: %w", err)
	}
	return n, nil
}
