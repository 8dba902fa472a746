// Package mongo implements the marketplace repositories on MongoDB.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/foodmarket/internal/domain/cart"
)

// Collection names.
const (
	CartsCollection         = "carts"
	OrdersCollection        = "orders"
	NotificationsCollection = "notifications"
)

// Connect opens a client and verifies the server is reachable.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOpts := options.Client().ApplyURI(uri).
		SetConnectTimeout(5 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the repositories rely on, including the
// unique payment reference and (order, restaurant) notification keys.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		OrdersCollection: {
			{
				Keys:    bson.D{{Key: "payment_reference", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("payment_reference_unique"),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "items.restaurant_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		NotificationsCollection: {
			{
				Keys:    bson.D{{Key: "order_id", Value: 1}, {Key: "restaurant_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("order_restaurant_unique"),
			},
			{Keys: bson.D{{Key: "restaurant_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("creating %s indexes: %w", coll, err)
		}
	}
	return nil
}

// itemDoc is the stored form of a cart or order line.
type itemDoc struct {
	ID             string               `bson:"id"`
	Name           string               `bson:"name"`
	Price          primitive.Decimal128 `bson:"price"`
	RestaurantID   string               `bson:"restaurant_id"`
	RestaurantName string               `bson:"restaurant_name"`
	Image          string               `bson:"image"`
	Category       string               `bson:"category"`
	Description    string               `bson:"description"`
	Quantity       int                  `bson:"quantity"`
}

func toItemDocs(items []cart.Item) ([]itemDoc, error) {
	out := make([]itemDoc, len(items))
	for i, it := range items {
		price, err := toDecimal128(it.Price)
		if err != nil {
			return nil, err
		}
		out[i] = itemDoc{
			ID:             it.ID,
			Name:           it.Name,
			Price:          price,
			RestaurantID:   it.RestaurantID,
			RestaurantName: it.RestaurantName,
			Image:          it.Image,
			Category:       it.Category,
			Description:    it.Description,
			Quantity:       it.Quantity,
		}
	}
	return out, nil
}

func fromItemDocs(docs []itemDoc) ([]cart.Item, error) {
	out := make([]cart.Item, len(docs))
	for i, d := range docs {
		price, err := fromDecimal128(d.Price)
		if err != nil {
			return nil, err
		}
		out[i] = cart.Item{
			ID:             d.ID,
			Name:           d.Name,
			Price:          price,
			RestaurantID:   d.RestaurantID,
			RestaurantName: d.RestaurantName,
			Image:          d.Image,
			Category:       d.Category,
			Description:    d.Description,
			Quantity:       d.Quantity,
		}
	}
	return out, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("converting %s to decimal128: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing decimal128 %s: %w", v, err)
	}
	return d, nil
}
