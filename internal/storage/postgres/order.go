package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodmarket/internal/domain/order"
)

const (
	orderColumns = `id, user_id, items, subtotal, delivery_fee, service_fee, tax, tip, donation, total,
		payment_reference, status, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	getOrderSQL            = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderByReferenceSQL = `SELECT ` + orderColumns + ` FROM orders WHERE payment_reference = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC`

	listOrdersByRestaurantSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE items @> jsonb_build_array(jsonb_build_object('restaurantId', $1::text))
		ORDER BY created_at DESC`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`

	paymentReferenceConstraint = "orders_payment_reference_key"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The order items are serialized to JSON for
// storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, itemsJSON,
		o.Subtotal, o.DeliveryFee, o.ServiceFee, o.Tax, o.Tip, o.Donation, o.Total,
		o.PaymentReference, string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, paymentReferenceConstraint) {
			return order.ErrDuplicateReference
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	return nil
}

// Get returns a single order by id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.one(ctx, getOrderSQL, id)
}

// GetByReference returns the order committed for a payment reference.
func (r *OrderRepository) GetByReference(ctx context.Context, reference string) (*order.Order, error) {
	return r.one(ctx, getOrderByReferenceSQL, reference)
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListByRestaurant returns orders with at least one item of the restaurant.
func (r *OrderRepository) ListByRestaurant(ctx context.Context, restaurantID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByRestaurantSQL, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of restaurant %q: %w", restaurantID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus sets the order status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status, updatedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(status), updatedAt)
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) one(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		items  []byte
		status string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &items,
		&o.Subtotal, &o.DeliveryFee, &o.ServiceFee, &o.Tax, &o.Tip, &o.Donation, &o.Total,
		&o.PaymentReference, &status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	o.Status = order.Status(status)
	return o, nil
}
