// Command seed-db prepares a development database: it applies the schema,
// fills a demo cart and prints bearer tokens for a customer, the owners of
// every seeded restaurant and an admin.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodmarket/internal/auth/jwt"
	"github.com/xenking/foodmarket/internal/domain/auth"
	"github.com/xenking/foodmarket/internal/domain/cart"
	"github.com/xenking/foodmarket/internal/storage/postgres"
)

type menuItemJSON struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	RestaurantID   string          `json:"restaurantId"`
	RestaurantName string          `json:"restaurantName"`
	Image          string          `json:"image"`
	Category       string          `json:"category"`
	Description    string          `json:"description"`
}

type options struct {
	databaseURL string
	menuFile    string
	userID      string
	restaurant  string
	secret      string
	issuer      string
	ttl         time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.menuFile, "menu-file", "db/seed/menu.json", "path to menu JSON file")
	flag.StringVar(&opts.userID, "user", "demo-customer", "customer whose cart is filled")
	flag.StringVar(&opts.restaurant, "restaurant", "mama-put", "restaurant whose items go into the demo cart")
	flag.StringVar(&opts.secret, "auth-secret", "", "HS256 token secret (or FOOD_AUTH_SECRET env)")
	flag.StringVar(&opts.issuer, "issuer", "foodmarket", "token issuer")
	flag.DurationVar(&opts.ttl, "ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.secret == "" {
		opts.secret = os.Getenv("FOOD_AUTH_SECRET")
	}
	if opts.secret == "" {
		slog.Error("auth secret is required: set --auth-secret or FOOD_AUTH_SECRET")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	menu, err := readMenu(opts.menuFile)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCart(ctx, cart.NewService(postgres.NewCartRepository(pool)), opts, menu); err != nil {
		return errors.Wrap(err, "seed cart")
	}

	return printTokens(opts, menu)
}

func readMenu(path string) ([]menuItemJSON, error) {
	slog.Info("reading menu file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read menu file")
	}
	var menu []menuItemJSON
	if err := json.Unmarshal(data, &menu); err != nil {
		return nil, errors.Wrap(err, "parse menu JSON")
	}
	return menu, nil
}

func seedCart(ctx context.Context, carts *cart.Service, opts options, menu []menuItemJSON) error {
	if err := carts.Clear(ctx, opts.userID); err != nil {
		return err
	}
	for _, m := range menu {
		if m.RestaurantID != opts.restaurant {
			continue
		}
		items, err := carts.Add(ctx, opts.userID, cart.NewItem{
			ID:             m.ID,
			Name:           m.Name,
			Price:          decimal.NewNullDecimal(m.Price),
			RestaurantID:   m.RestaurantID,
			RestaurantName: m.RestaurantName,
			Image:          m.Image,
			Category:       m.Category,
			Description:    m.Description,
		})
		if err != nil {
			return errors.Wrapf(err, "add %s", m.ID)
		}
		slog.Info("added cart item",
			slog.String("user", opts.userID),
			slog.String("id", m.ID),
			slog.Int("lines", len(items)),
		)
	}
	return nil
}

func printTokens(opts options, menu []menuItemJSON) error {
	v, err := jwt.NewVerifier(opts.secret, opts.issuer)
	if err != nil {
		return err
	}

	ids := []auth.Identity{
		{Subject: opts.userID, Email: opts.userID + "@example.com", Role: auth.RoleCustomer},
		{Subject: "admin", Role: auth.RoleAdmin},
	}
	seen := map[string]bool{}
	for _, m := range menu {
		if seen[m.RestaurantID] {
			continue
		}
		seen[m.RestaurantID] = true
		ids = append(ids, auth.Identity{
			Subject:      "owner-" + m.RestaurantID,
			Role:         auth.RoleRestaurant,
			RestaurantID: m.RestaurantID,
		})
	}

	for _, id := range ids {
		token, err := v.Issue(id, opts.ttl)
		if err != nil {
			return errors.Wrapf(err, "issue token for %s", id.Subject)
		}
		fmt.Printf("%s\t%s\t%s\n", id.Role, id.Subject, token)
	}
	return nil
}
