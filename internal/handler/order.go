package handler

import (
	"net/http"

	"github.com/xenking/foodmarket/internal/domain/order"
)

type updateStatusRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListForUser(r.Context(), identity(r).Subject)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"orders": toOrders(list)})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), identity(r), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, toOrder(o))
}

func (h *Handler) listRestaurantOrders(w http.ResponseWriter, r *http.Request) {
	rid, err := restaurantScope(identity(r), r)
	if err != nil {
		fail(w, r, err)
		return
	}
	list, err := h.orders.ListForRestaurant(r.Context(), rid)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"orders": toOrders(list)})
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.OrderID == "" {
		fail(w, r, &badRequestError{msg: "orderId is required"})
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), identity(r), req.OrderID, order.Status(req.Status))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, toOrder(o))
}
