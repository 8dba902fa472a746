package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrUnauthenticated is returned when a bearer token is missing, malformed,
// expired or otherwise fails verification.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden is returned when a verified identity lacks the role an
// operation requires.
var ErrForbidden = errors.New("forbidden")

// Role enumerates the marketplace actor kinds.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleRestaurant Role = "restaurant"
	RoleAdmin      Role = "admin"
)

// Identity is the verified subject behind a request.
type Identity struct {
	Subject string
	Email   string
	Role    Role
	// RestaurantID is set for restaurant accounts only.
	RestaurantID string
}

// IsAdmin reports whether the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// ManagesRestaurant reports whether the identity acts on behalf of the given
// restaurant.
func (i *Identity) ManagesRestaurant(restaurantID string) bool {
	return i != nil && i.Role == RoleRestaurant && i.RestaurantID != "" && i.RestaurantID == restaurantID
}

// Verifier resolves a bearer token into a verified identity. Implementations
// return ErrUnauthenticated (possibly wrapped) for every rejected token.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
