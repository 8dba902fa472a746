//go:build integration

package mongo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/xenking/foodmarket/internal/domain/cart"
	"github.com/xenking/foodmarket/internal/domain/notification"
	"github.com/xenking/foodmarket/internal/domain/order"
)

func startMongo(t *testing.T) *mongo.Database {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)

	client, err := Connect(ctx, fmt.Sprintf("mongodb://%s:%s", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("foodmarket_test")
	require.NoError(t, EnsureIndexes(ctx, db))
	return db
}

func TestRepositories(t *testing.T) {
	db := startMongo(t)
	ctx := context.Background()

	t.Run("cart versioning", func(t *testing.T) {
		repo := NewCartRepository(db)

		_, err := repo.Get(ctx, "u1")
		require.ErrorIs(t, err, cart.ErrNotFound)

		c := &cart.Cart{UserID: "u1", Items: []cart.Item{{ID: "a", Price: decimal.RequireFromString("6.50"), Quantity: 1}}}
		require.NoError(t, repo.Save(ctx, c))
		require.ErrorIs(t, repo.Save(ctx, &cart.Cart{UserID: "u1"}), cart.ErrConflict)

		got, err := repo.Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("6.5").Equal(got.Items[0].Price))

		got.Items[0].Quantity = 2
		require.NoError(t, repo.Save(ctx, got))
		require.ErrorIs(t, repo.Save(ctx, &cart.Cart{UserID: "u1", Version: 1}), cart.ErrConflict)

		require.NoError(t, repo.Clear(ctx, "u1"))
		require.NoError(t, repo.Clear(ctx, "nobody"))
		got, err = repo.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, got.Items)
	})

	t.Run("orders", func(t *testing.T) {
		repo := NewOrderRepository(db)
		items := []cart.Item{{ID: "a", Price: decimal.NewFromInt(500), Quantity: 2, RestaurantID: "r1"}}
		o := &order.Order{
			ID: "o1", UserID: "u1", Items: items, Charges: order.DefaultFees().Price(items),
			PaymentReference: "ref-1", Status: order.StatusCompleted,
			CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		}
		require.NoError(t, repo.Create(ctx, o))

		dup := *o
		dup.ID = "o2"
		require.ErrorIs(t, repo.Create(ctx, &dup), order.ErrDuplicateReference)

		got, err := repo.GetByReference(ctx, "ref-1")
		require.NoError(t, err)
		assert.True(t, o.Total.Equal(got.Total))

		byR1, err := repo.ListByRestaurant(ctx, "r1")
		require.NoError(t, err)
		assert.Len(t, byR1, 1)

		require.NoError(t, repo.UpdateStatus(ctx, "o1", order.StatusPreparing, time.Now()))
		require.ErrorIs(t, repo.UpdateStatus(ctx, "missing", order.StatusPreparing, time.Now()), order.ErrNotFound)
	})

	t.Run("notifications", func(t *testing.T) {
		repo := NewNotificationRepository(db)
		n := &notification.Notification{ID: "n1", RestaurantID: "r1", OrderID: "o1", CreatedAt: time.Now().UTC()}
		require.NoError(t, repo.Create(ctx, n))

		dup := *n
		dup.ID = "n2"
		require.ErrorIs(t, repo.Create(ctx, &dup), notification.ErrDuplicate)

		require.ErrorIs(t, repo.MarkRead(ctx, "r2", "n1"), notification.ErrNotFound)
		require.NoError(t, repo.MarkRead(ctx, "r1", "n1"))
		require.NoError(t, repo.MarkRead(ctx, "r1", "n1"))

		unread, err := repo.ListByRestaurant(ctx, "r1", true)
		require.NoError(t, err)
		assert.Empty(t, unread)
	})
}
