package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/xenking/foodmarket/internal/domain/cart"
)

type addItemRequest struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Price          decimal.NullDecimal `json:"price"`
	RestaurantID   string              `json:"restaurantId"`
	RestaurantName string              `json:"restaurantName"`
	Image          string              `json:"image"`
	Category       string              `json:"category"`
	Description    string              `json:"description"`
}

type updateItemRequest struct {
	ItemID string `json:"itemId"`
	Action string `json:"action"`
}

func (h *Handler) readCart(w http.ResponseWriter, r *http.Request) {
	items, err := h.carts.Read(r.Context(), identity(r).Subject)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, toCart(items))
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	items, err := h.carts.Add(r.Context(), identity(r).Subject, cart.NewItem{
		ID:             req.ID,
		Name:           req.Name,
		Price:          req.Price,
		RestaurantID:   req.RestaurantID,
		RestaurantName: req.RestaurantName,
		Image:          req.Image,
		Category:       req.Category,
		Description:    req.Description,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, toCart(items))
}

func (h *Handler) updateCart(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.ItemID == "" {
		fail(w, r, &cart.ValidationError{Field: "itemId", Reason: "required"})
		return
	}
	items, err := h.carts.Update(r.Context(), identity(r).Subject, req.ItemID, cart.Action(req.Action))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, toCart(items))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), identity(r).Subject); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
