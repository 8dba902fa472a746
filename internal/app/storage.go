package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/xenking/foodmarket/internal/domain/cart"
	"github.com/xenking/foodmarket/internal/domain/notification"
	"github.com/xenking/foodmarket/internal/domain/order"
	"github.com/xenking/foodmarket/internal/storage/memory"
	"github.com/xenking/foodmarket/internal/storage/mongo"
	"github.com/xenking/foodmarket/internal/storage/postgres"
	rediscache "github.com/xenking/foodmarket/internal/storage/redis"
	"github.com/xenking/foodmarket/pkg/health"
)

// stores groups the repositories of the selected driver.
type stores struct {
	carts         cart.Repository
	orders        order.Repository
	notifications notification.Repository
	closers       []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores connects the configured document store and optional cart cache
// and registers their readiness checks.
func openStores(ctx context.Context, lg *zap.Logger, cfg *Config, h *health.Health) (*stores, error) {
	s := &stores{}

	switch cfg.Storage.Driver {
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		s.closers = append(s.closers, pool.Close)
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			s.close()
			return nil, errors.Wrap(err, "run migrations")
		}
		h.Register(health.Readiness, "postgres", health.PingCheck(pool), health.WithTimeout(5*time.Second))

		s.carts = postgres.NewCartRepository(pool)
		s.orders = postgres.NewOrderRepository(pool)
		s.notifications = postgres.NewNotificationRepository(pool)

	case DriverMongo:
		client, err := mongo.Connect(ctx, cfg.Storage.MongoURI)
		if err != nil {
			return nil, errors.Wrap(err, "connect mongo")
		}
		s.closers = append(s.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				lg.Warn("Mongo disconnect", zap.Error(err))
			}
		})
		db := client.Database(cfg.Storage.MongoDatabase)
		if err := mongo.EnsureIndexes(ctx, db); err != nil {
			s.close()
			return nil, errors.Wrap(err, "ensure indexes")
		}
		h.Register(health.Readiness, "mongo", func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		}, health.WithTimeout(5*time.Second))

		s.carts = mongo.NewCartRepository(db)
		s.orders = mongo.NewOrderRepository(db)
		s.notifications = mongo.NewNotificationRepository(db)

	case DriverMemory:
		lg.Warn("Using in-memory storage; data is lost on restart")
		s.carts = memory.NewCartRepository()
		s.orders = memory.NewOrderRepository()
		s.notifications = memory.NewNotificationRepository()

	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, func() { _ = rdb.Close() })
		h.Register(health.Readiness, "redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		s.carts = rediscache.NewCartCache(s.carts, rdb, cfg.Redis.TTL)
		lg.Info("Cart cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}

	return s, nil
}
