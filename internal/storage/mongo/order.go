package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/foodmarket/internal/domain/order"
)

type orderDoc struct {
	ID               string               `bson:"_id"`
	UserID           string               `bson:"user_id"`
	Items            []itemDoc            `bson:"items"`
	Subtotal         primitive.Decimal128 `bson:"subtotal"`
	DeliveryFee      primitive.Decimal128 `bson:"delivery_fee"`
	ServiceFee       primitive.Decimal128 `bson:"service_fee"`
	Tax              primitive.Decimal128 `bson:"tax"`
	Tip              primitive.Decimal128 `bson:"tip"`
	Donation         primitive.Decimal128 `bson:"donation"`
	Total            primitive.Decimal128 `bson:"total"`
	PaymentReference string               `bson:"payment_reference"`
	Status           string               `bson:"status"`
	CreatedAt        time.Time            `bson:"created_at"`
	UpdatedAt        time.Time            `bson:"updated_at"`
}

func newOrderDoc(o *order.Order) (*orderDoc, error) {
	items, err := toItemDocs(o.Items)
	if err != nil {
		return nil, err
	}
	doc := &orderDoc{
		ID:               o.ID,
		UserID:           o.UserID,
		Items:            items,
		PaymentReference: o.PaymentReference,
		Status:           string(o.Status),
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
	money := []struct {
		dst *primitive.Decimal128
		src decimal.Decimal
	}{
		{&doc.Subtotal, o.Subtotal},
		{&doc.DeliveryFee, o.DeliveryFee},
		{&doc.ServiceFee, o.ServiceFee},
		{&doc.Tax, o.Tax},
		{&doc.Tip, o.Tip},
		{&doc.Donation, o.Donation},
		{&doc.Total, o.Total},
	}
	for _, m := range money {
		if *m.dst, err = toDecimal128(m.src); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (d *orderDoc) toOrder() (*order.Order, error) {
	items, err := fromItemDocs(d.Items)
	if err != nil {
		return nil, err
	}
	o := &order.Order{
		ID:               d.ID,
		UserID:           d.UserID,
		Items:            items,
		PaymentReference: d.PaymentReference,
		Status:           order.Status(d.Status),
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	money := []struct {
		dst *decimal.Decimal
		src primitive.Decimal128
	}{
		{&o.Subtotal, d.Subtotal},
		{&o.DeliveryFee, d.DeliveryFee},
		{&o.ServiceFee, d.ServiceFee},
		{&o.Tax, d.Tax},
		{&o.Tip, d.Tip},
		{&o.Donation, d.Donation},
		{&o.Total, d.Total},
	}
	for _, m := range money {
		if *m.dst, err = fromDecimal128(m.src); err != nil {
			return nil, err
		}
	}
	return o, nil
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository on MongoDB.
type OrderRepository struct {
	col *mongo.Collection
}

// NewOrderRepository returns an OrderRepository using db's orders collection.
func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{col: db.Collection(OrdersCollection)}
}

// Create stores o. The unique payment_reference index rejects duplicates.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	doc, err := newOrderDoc(o)
	if err != nil {
		return err
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return order.ErrDuplicateReference
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns a single order by id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.one(ctx, bson.D{{Key: "_id", Value: id}})
}

// GetByReference returns the order committed for reference.
func (r *OrderRepository) GetByReference(ctx context.Context, reference string) (*order.Order, error) {
	return r.one(ctx, bson.D{{Key: "payment_reference", Value: reference}})
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return r.list(ctx, bson.D{{Key: "user_id", Value: userID}})
}

// ListByRestaurant returns orders with at least one item of the restaurant.
func (r *OrderRepository) ListByRestaurant(ctx context.Context, restaurantID string) ([]order.Order, error) {
	return r.list(ctx, bson.D{{Key: "items.restaurant_id", Value: restaurantID}})
}

// UpdateStatus sets the order status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status, updatedAt time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: string(status)},
			{Key: "updated_at", Value: updatedAt},
		}}},
	)
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) one(ctx context.Context, filter bson.D) (*order.Order, error) {
	var doc orderDoc
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return doc.toOrder()
}

func (r *OrderRepository) list(ctx context.Context, filter bson.D) ([]order.Order, error) {
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding orders: %w", err)
	}
	out := make([]order.Order, 0, len(docs))
	for i := range docs {
		o, err := docs[i].toOrder()
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}
