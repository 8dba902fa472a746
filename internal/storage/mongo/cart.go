package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/xenking/foodmarket/internal/domain/cart"
)

type cartDoc struct {
	UserID    string    `bson:"_id"`
	Items     []itemDoc `bson:"items"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updated_at"`
}

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository on a MongoDB collection keyed by
// user id.
type CartRepository struct {
	col *mongo.Collection
}

// NewCartRepository returns a CartRepository using db's carts collection.
func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{col: db.Collection(CartsCollection)}
}

// Get returns the user's cart or cart.ErrNotFound.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	var doc cartDoc
	if err := r.col.FindOne(ctx, bson.D{{Key: "_id", Value: userID}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart %q: %w", userID, err)
	}
	items, err := fromItemDocs(doc.Items)
	if err != nil {
		return nil, err
	}
	return &cart.Cart{UserID: doc.UserID, Items: items, Version: doc.Version, UpdatedAt: doc.UpdatedAt}, nil
}

// Save writes the cart if its version is still current.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	items, err := toItemDocs(c.Items)
	if err != nil {
		return err
	}

	if c.Version == 0 {
		_, err := r.col.InsertOne(ctx, cartDoc{UserID: c.UserID, Items: items, Version: 1, UpdatedAt: c.UpdatedAt})
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return cart.ErrConflict
			}
			return fmt.Errorf("inserting cart %q: %w", c.UserID, err)
		}
		c.Version = 1
		return nil
	}

	res, err := r.col.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: c.UserID}, {Key: "version", Value: c.Version}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "items", Value: items}, {Key: "updated_at", Value: c.UpdatedAt}}},
			{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
		},
	)
	if err != nil {
		return fmt.Errorf("updating cart %q: %w", c.UserID, err)
	}
	if res.MatchedCount == 0 {
		return cart.ErrConflict
	}
	c.Version++
	return nil
}

// Clear empties the cart. A missing cart is left missing.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: userID}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "items", Value: bson.A{}}, {Key: "updated_at", Value: time.Now().UTC()}}},
			{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
		},
	)
	if err != nil {
		return fmt.Errorf("clearing cart %q: %w", userID, err)
	}
	return nil
}
