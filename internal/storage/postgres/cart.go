package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodmarket/internal/domain/cart"
)

const (
	getCartSQL = `SELECT items, version, updated_at FROM carts WHERE user_id = $1`

	insertCartSQL = `INSERT INTO carts (user_id, items, version, updated_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (user_id) DO NOTHING`

	updateCartSQL = `UPDATE carts SET items = $2, version = version + 1, updated_at = $3
		WHERE user_id = $1 AND version = $4`

	clearCartSQL = `UPDATE carts SET items = '[]'::jsonb, version = version + 1, updated_at = now()
		WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Items are
// stored as a JSONB array and writes are guarded by the version column.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the user's cart or cart.ErrNotFound.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	var (
		c   = cart.Cart{UserID: userID}
		raw []byte
	)
	err := r.pool.QueryRow(ctx, getCartSQL, userID).Scan(&raw, &c.Version, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart %q: %w", userID, err)
	}
	if err := json.Unmarshal(raw, &c.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling cart items: %w", err)
	}
	if c.Items == nil {
		c.Items = []cart.Item{}
	}
	return &c, nil
}

// Save writes the cart if its version is still current.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	itemsJSON, err := json.Marshal(cart.CloneItems(c.Items))
	if err != nil {
		return fmt.Errorf("marshaling cart items: %w", err)
	}

	var tag pgconn.CommandTag
	if c.Version == 0 {
		tag, err = r.pool.Exec(ctx, insertCartSQL, c.UserID, itemsJSON, c.UpdatedAt)
	} else {
		tag, err = r.pool.Exec(ctx, updateCartSQL, c.UserID, itemsJSON, c.UpdatedAt, c.Version)
	}
	if err != nil {
		return fmt.Errorf("saving cart %q: %w", c.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrConflict
	}

	c.Version++
	return nil
}

// Clear empties the cart. A missing cart is left missing.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart %q: %w", userID, err)
	}
	return nil
}
