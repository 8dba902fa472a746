// Package handler exposes the marketplace over HTTP.
package handler

import (
	"net/http"

	"github.com/xenking/foodmarket/internal/domain/auth"
	"github.com/xenking/foodmarket/internal/domain/cart"
	"github.com/xenking/foodmarket/internal/domain/checkout"
	"github.com/xenking/foodmarket/internal/domain/notification"
	"github.com/xenking/foodmarket/internal/domain/order"
	"github.com/xenking/foodmarket/pkg/httpmiddleware"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the /api routes.
type Handler struct {
	carts         *cart.Service
	checkout      *checkout.Service
	orders        *order.Service
	notifications *notification.Service
}

// New creates a Handler.
func New(
	carts *cart.Service,
	checkout *checkout.Service,
	orders *order.Service,
	notifications *notification.Service,
) *Handler {
	return &Handler{
		carts:         carts,
		checkout:      checkout,
		orders:        orders,
		notifications: notifications,
	}
}

// Register mounts every API route on mux. Each route authenticates the
// bearer token with v and then runs the extra middlewares, which therefore
// see the caller identity.
func (h *Handler) Register(mux *http.ServeMux, v auth.Verifier, extra ...httpmiddleware.Middleware) {
	chain := append([]httpmiddleware.Middleware{Authenticate(v)}, extra...)
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, httpmiddleware.Wrap(fn, chain...))
	}

	route("GET /api/cart", h.readCart)
	route("POST /api/cart", h.addToCart)
	route("PATCH /api/cart", h.updateCart)
	route("DELETE /api/cart", h.clearCart)

	route("GET /api/payment/quote", h.quote)
	route("POST /api/payment", h.payment)

	route("GET /api/orders", h.listOrders)
	route("GET /api/orders/{id}", h.getOrder)

	route("GET /api/restaurant/orders", h.listRestaurantOrders)
	route("PUT /api/restaurant/orders", h.updateOrderStatus)
	route("GET /api/restaurant/notifications", h.listNotifications)
	route("PATCH /api/restaurant/notifications/{id}", h.markNotificationRead)
}

// restaurantScope resolves the restaurant a request acts for. Restaurant
// accounts always act for their own restaurant; admins pick one with the
// restaurantId query parameter.
func restaurantScope(id *auth.Identity, r *http.Request) (string, error) {
	switch {
	case id.Role == auth.RoleRestaurant && id.RestaurantID != "":
		return id.RestaurantID, nil
	case id.IsAdmin():
		rid := r.URL.Query().Get("restaurantId")
		if rid == "" {
			return "", &badRequestError{msg: "restaurantId query parameter is required"}
		}
		return rid, nil
	default:
		return "", auth.ErrForbidden
	}
}
