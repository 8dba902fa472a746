package handler

import (
	"net/http"
	"strconv"
)

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	rid, err := restaurantScope(identity(r), r)
	if err != nil {
		fail(w, r, err)
		return
	}
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	list, err := h.notifications.ListForRestaurant(r.Context(), rid, unread)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"notifications": toNotifications(list)})
}

func (h *Handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	rid, err := restaurantScope(identity(r), r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.notifications.MarkRead(r.Context(), rid, r.PathValue("id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
