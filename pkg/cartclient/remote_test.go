package cartclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/foodmarket/internal/auth/jwt"
	"github.com/xenking/foodmarket/internal/domain/auth"
	"github.com/xenking/foodmarket/internal/domain/cart"
	"github.com/xenking/foodmarket/internal/domain/checkout"
	"github.com/xenking/foodmarket/internal/domain/notification"
	"github.com/xenking/foodmarket/internal/domain/order"
	"github.com/xenking/foodmarket/internal/handler"
	"github.com/xenking/foodmarket/internal/storage/memory"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

// newServer runs the real API on in-memory storage and returns its URL and
// a token for user u1.
func newServer(t *testing.T) (string, string) {
	t.Helper()

	v, err := jwt.NewVerifier("client-secret", "")
	require.NoError(t, err)
	token, err := v.Issue(auth.Identity{Subject: "u1"}, time.Hour)
	require.NoError(t, err)

	carts := memory.NewCartRepository()
	orders := memory.NewOrderRepository()
	notifications := notification.NewService(memory.NewNotificationRepository(), nil)
	co, err := checkout.NewService(carts, orders, nil, notifications, checkout.Config{Fees: order.DefaultFees()})
	require.NoError(t, err)

	mux := http.NewServeMux()
	handler.New(cart.NewService(carts), co, order.NewService(orders, order.PolicyForward), notifications).
		Register(mux, v)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL, token
}

func TestHTTPRemote(t *testing.T) {
	ctx := context.Background()
	url, token := newServer(t)
	c := New(NewHTTPRemote(url, token, nil))

	require.NoError(t, c.Refresh(ctx))
	assert.Empty(t, c.Items())
	assert.True(t, c.Loaded())

	require.NoError(t, c.Add(ctx, dish("a", 500, "r1")))
	require.NoError(t, c.Add(ctx, dish("a", 500, "r1")))
	require.NoError(t, c.Add(ctx, dish("b", 300, "r1")))
	assert.Equal(t, "1300", c.Subtotal().String())
	assert.Equal(t, "General", c.Items()[0].Category)

	require.NoError(t, c.Update(ctx, "a", Decrement))
	assert.Equal(t, 1, c.Items()[0].Quantity)

	require.NoError(t, c.Clear(ctx))
	assert.Empty(t, c.Items())

	fresh := New(NewHTTPRemote(url, token, nil))
	require.NoError(t, fresh.Refresh(ctx))
	assert.Empty(t, fresh.Items())
}

func TestHTTPRemote_ServerRejectionRollsBack(t *testing.T) {
	ctx := context.Background()
	url, token := newServer(t)
	c := New(NewHTTPRemote(url, token, nil))

	bad := dish("x", 10, "r1")
	bad.Name = ""
	err := c.Add(ctx, bad)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Code)
	assert.Contains(t, apiErr.Message, "name")
	assert.Empty(t, c.Items())
}

func TestHTTPRemote_Unauthenticated(t *testing.T) {
	url, _ := newServer(t)
	_, err := NewHTTPRemote(url, "bogus", nil).Read(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Code)
}

func TestHTTPRemote_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := NewHTTPRemote(srv.URL, "t", srv.Client()).Read(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Code)
	assert.Equal(t, "Bad Gateway", apiErr.Message)
}
