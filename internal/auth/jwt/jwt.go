// Package jwt verifies and issues HS256 bearer tokens for marketplace users.
package jwt

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/foodmarket/internal/domain/auth"
)

// Claims is the typed token payload.
type Claims struct {
	Email        string    `json:"email,omitempty"`
	Role         auth.Role `json:"role"`
	RestaurantID string    `json:"restaurant_id,omitempty"`
	jwt.RegisteredClaims
}

// Verifier implements auth.Verifier for tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

var _ auth.Verifier = (*Verifier)(nil)

// NewVerifier creates a Verifier. When issuer is non-empty, tokens must carry
// a matching iss claim.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify parses token and returns the identity it carries.
func (v *Verifier) Verify(_ context.Context, token string) (*auth.Identity, error) {
	if token == "" {
		return nil, auth.ErrUnauthenticated
	}

	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, errors.Wrapf(auth.ErrUnauthenticated, "parse token: %v", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, auth.ErrUnauthenticated
	}

	role := claims.Role
	switch role {
	case "":
		role = auth.RoleCustomer
	case auth.RoleCustomer, auth.RoleAdmin:
	case auth.RoleRestaurant:
		if claims.RestaurantID == "" {
			return nil, errors.Wrap(auth.ErrUnauthenticated, "restaurant token without restaurant_id")
		}
	default:
		return nil, errors.Wrapf(auth.ErrUnauthenticated, "unknown role %q", role)
	}

	return &auth.Identity{
		Subject:      claims.Subject,
		Email:        claims.Email,
		Role:         role,
		RestaurantID: claims.RestaurantID,
	}, nil
}

// Issue signs a token for id that expires after ttl.
func (v *Verifier) Issue(id auth.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:        id.Email,
		Role:         id.Role,
		RestaurantID: id.RestaurantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}
