package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodmarket/internal/domain/order"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (FOOD_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage   StorageConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	Gateway   GatewayConfig
	Fees      FeesConfig
	Orders    OrdersConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// StorageConfig selects and configures the document store.
type StorageConfig struct {
	Driver        string `default:"postgres" usage:"Document store: postgres, mongo or memory"`
	DatabaseURL   string `usage:"PostgreSQL connection URL (FOOD_STORAGE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	MongoURI      string `usage:"MongoDB connection URI" flag:"mongo-uri"`
	MongoDatabase string `default:"foodmarket" usage:"MongoDB database name" flag:"mongo-database"`
}

// RedisConfig enables the cart cache when Addr is set.
type RedisConfig struct {
	Addr     string        `usage:"Redis address for the cart cache (empty disables it)" flag:"redis-addr"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database"`
	TTL      time.Duration `default:"30m" usage:"Cart cache entry lifetime"`
}

// KafkaConfig enables notification publishing when Brokers is set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers for notification events (empty disables publishing)"`
	Topic   string   `default:"restaurant-notifications" usage:"Notification topic"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Secret string `usage:"HS256 secret for bearer tokens (FOOD_AUTH_SECRET)" flag:"auth-secret"`
	Issuer string `default:"foodmarket" usage:"Required token issuer (empty disables the check)"`
}

// GatewayConfig configures the payment gateway client.
type GatewayConfig struct {
	BaseURL     string        `default:"https://api.paystack.co" usage:"Payment gateway API root"`
	SecretKey   string        `usage:"Payment gateway secret key (FOOD_GATEWAY_SECRET_KEY)" flag:"gateway-secret"`
	Currency    string        `default:"NGN" usage:"Transaction currency"`
	Channels    []string      `default:"card" usage:"Allowed payment channels"`
	CallbackURL string        `usage:"URL the gateway redirects to after payment"`
	Timeout     time.Duration `default:"10s" usage:"Gateway request timeout"`
}

// FeesConfig holds the flat charges added to every order, as decimal
// strings.
type FeesConfig struct {
	Delivery string `default:"30" usage:"Delivery fee"`
	Service  string `default:"40" usage:"Service fee"`
	Tax      string `default:"300" usage:"Tax"`
	Tip      string `default:"400" usage:"Tip"`
	Donation string `default:"2" usage:"Donation"`
}

// Schedule parses the configured fees.
func (f FeesConfig) Schedule() (order.FeeSchedule, error) {
	var (
		s   order.FeeSchedule
		err error
	)
	for _, fee := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"delivery", f.Delivery, &s.Delivery},
		{"service", f.Service, &s.Service},
		{"tax", f.Tax, &s.Tax},
		{"tip", f.Tip, &s.Tip},
		{"donation", f.Donation, &s.Donation},
	} {
		if *fee.dst, err = decimal.NewFromString(fee.raw); err != nil {
			return order.FeeSchedule{}, errors.Wrapf(err, "parse %s fee", fee.name)
		}
		if fee.dst.IsNegative() {
			return order.FeeSchedule{}, errors.Errorf("%s fee must not be negative", fee.name)
		}
	}
	return s, nil
}

// OrdersConfig controls order status changes.
type OrdersConfig struct {
	Transitions string `default:"forward" usage:"Status transition policy: forward or unrestricted"`
}

// RateLimitConfig controls the per-caller sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "FOOD",
		Files:     []string{"config.yaml", "/etc/foodmarket/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required: set FOOD_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	case DriverMongo:
		if c.Storage.MongoURI == "" {
			return errors.New("mongo URI is required: set FOOD_STORAGE_MONGO_URI")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Auth.Secret == "" {
		return errors.New("auth secret is required: set FOOD_AUTH_SECRET")
	}
	if c.Gateway.SecretKey == "" {
		return errors.New("gateway secret key is required: set FOOD_GATEWAY_SECRET_KEY")
	}
	if _, err := c.Fees.Schedule(); err != nil {
		return errors.Wrap(err, "fees")
	}
	if _, err := order.ParsePolicy(c.Orders.Transitions); err != nil {
		return errors.Wrap(err, "orders")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's FOOD_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Storage.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.Storage.DatabaseURL = v
		}
	}
	if c.Storage.MongoURI == "" {
		if v := os.Getenv("MONGODB_URI"); v != "" {
			c.Storage.MongoURI = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
