package cart

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Action is an update applied to a single cart line.
type Action string

const (
	ActionIncrement Action = "increment"
	ActionDecrement Action = "decrement"
	ActionRemove    Action = "remove"
)

// NewItem is the add-to-cart payload. Price is nullable so that a missing
// price can be told apart from a free item.
type NewItem struct {
	ID             string
	Name           string
	Price          decimal.NullDecimal
	RestaurantID   string
	RestaurantName string
	Image          string
	Category       string
	Description    string
}

func (n NewItem) validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	if strings.TrimSpace(n.Name) == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if !n.Price.Valid {
		return &ValidationError{Field: "price", Reason: "must be a number"}
	}
	if n.Price.Decimal.IsNegative() {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	return nil
}

func (n NewItem) toItem() Item {
	it := Item{
		ID:             n.ID,
		Name:           n.Name,
		Price:          n.Price.Decimal,
		RestaurantID:   n.RestaurantID,
		RestaurantName: n.RestaurantName,
		Image:          n.Image,
		Category:       n.Category,
		Description:    n.Description,
		Quantity:       1,
	}
	if it.Image == "" {
		it.Image = DefaultImage
	}
	if it.Category == "" {
		it.Category = DefaultCategory
	}
	return it
}

// Service implements the cart operations for a single authenticated user.
// The caller's identity is resolved by the transport layer.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a cart Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Read returns the caller's items, or an empty list if no cart exists yet.
func (s *Service) Read(ctx context.Context, userID string) ([]Item, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return CloneItems(c.Items), nil
}

// Add puts one unit of item into the caller's cart. An item already in the
// cart has its quantity incremented. Items from a restaurant other than the
// one already in a non-empty cart are rejected with *CrossRestaurantError and
// the cart is left untouched.
func (s *Service) Add(ctx context.Context, userID string, item NewItem) ([]Item, error) {
	if err := item.validate(); err != nil {
		return nil, err
	}

	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !c.IsEmpty() && c.RestaurantID() != item.RestaurantID {
		first := c.Items[0]
		return nil, &CrossRestaurantError{
			CartRestaurantID:   first.RestaurantID,
			CartRestaurantName: first.RestaurantName,
			ItemRestaurantID:   item.RestaurantID,
			ItemRestaurantName: item.RestaurantName,
		}
	}

	if i := indexOf(c.Items, item.ID); i >= 0 {
		c.Items[i].Quantity++
	} else {
		c.Items = append(c.Items, item.toItem())
	}

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return CloneItems(c.Items), nil
}

// Update applies action to the line with the given item id. Decrementing a
// quantity-1 line removes it.
func (s *Service) Update(ctx context.Context, userID, itemID string, action Action) ([]Item, error) {
	switch action {
	case ActionIncrement, ActionDecrement, ActionRemove:
	default:
		return nil, &ValidationError{Field: "action", Reason: "must be one of increment, decrement, remove"}
	}

	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get cart")
	}

	i := indexOf(c.Items, itemID)
	if i < 0 {
		return nil, ErrNotFound
	}

	switch action {
	case ActionIncrement:
		c.Items[i].Quantity++
	case ActionDecrement:
		c.Items[i].Quantity--
		if c.Items[i].Quantity <= 0 {
			c.Items = removeAt(c.Items, i)
		}
	case ActionRemove:
		c.Items = removeAt(c.Items, i)
	}

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return CloneItems(c.Items), nil
}

// Clear empties the caller's cart. Clearing an empty or missing cart succeeds.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.repo.Clear(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// load returns the stored cart or a fresh unsaved one.
func (s *Service) load(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.repo.Get(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		return &Cart{UserID: userID, Items: []Item{}}, nil
	case err != nil:
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, c *Cart) error {
	c.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, c); err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrConflict
		}
		return errors.Wrap(err, "save cart")
	}
	return nil
}

func indexOf(items []Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func removeAt(items []Item, i int) []Item {
	out := make([]Item, 0, len(items)-1)
	out = append(out, items[:i]...)
	return append(out, items[i+1:]...)
}
