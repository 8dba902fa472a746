package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/foodmarket/internal/domain/cart"
	"github.com/xenking/foodmarket/internal/domain/notification"
	"github.com/xenking/foodmarket/internal/domain/order"
)

// money renders a decimal as a bare JSON number.
type money decimal.Decimal

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).String()), nil
}

type itemJSON struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Price          money  `json:"price"`
	RestaurantID   string `json:"restaurantId"`
	RestaurantName string `json:"restaurantName"`
	Image          string `json:"image"`
	Category       string `json:"category"`
	Description    string `json:"description"`
	Quantity       int    `json:"quantity"`
}

func toItems(items []cart.Item) []itemJSON {
	out := make([]itemJSON, len(items))
	for i, it := range items {
		out[i] = itemJSON{
			ID:             it.ID,
			Name:           it.Name,
			Price:          money(it.Price),
			RestaurantID:   it.RestaurantID,
			RestaurantName: it.RestaurantName,
			Image:          it.Image,
			Category:       it.Category,
			Description:    it.Description,
			Quantity:       it.Quantity,
		}
	}
	return out
}

type cartJSON struct {
	Items    []itemJSON `json:"items"`
	Subtotal money      `json:"subtotal"`
}

func toCart(items []cart.Item) cartJSON {
	return cartJSON{Items: toItems(items), Subtotal: money(cart.Subtotal(items))}
}

type chargesJSON struct {
	Subtotal    money `json:"subtotal"`
	DeliveryFee money `json:"deliveryFee"`
	ServiceFee  money `json:"serviceFee"`
	Tax         money `json:"tax"`
	Tip         money `json:"tip"`
	Donation    money `json:"donation"`
	Total       money `json:"total"`
}

func toCharges(c order.Charges) chargesJSON {
	return chargesJSON{
		Subtotal:    money(c.Subtotal),
		DeliveryFee: money(c.DeliveryFee),
		ServiceFee:  money(c.ServiceFee),
		Tax:         money(c.Tax),
		Tip:         money(c.Tip),
		Donation:    money(c.Donation),
		Total:       money(c.Total),
	}
}

type orderJSON struct {
	ID     string     `json:"id"`
	UserID string     `json:"userId"`
	Items  []itemJSON `json:"items"`
	chargesJSON
	PaymentReference string    `json:"paymentReference"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func toOrder(o *order.Order) orderJSON {
	return orderJSON{
		ID:               o.ID,
		UserID:           o.UserID,
		Items:            toItems(o.Items),
		chargesJSON:      toCharges(o.Charges),
		PaymentReference: o.PaymentReference,
		Status:           string(o.Status),
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func toOrders(list []order.Order) []orderJSON {
	out := make([]orderJSON, len(list))
	for i := range list {
		out[i] = toOrder(&list[i])
	}
	return out
}

type notificationJSON struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurantId"`
	OrderID      string    `json:"orderId"`
	Message      string    `json:"message"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"createdAt"`
	Details      struct {
		CustomerID string     `json:"customerId"`
		Items      []itemJSON `json:"items"`
		Subtotal   money      `json:"subtotal"`
		Total      money      `json:"total"`
		CreatedAt  time.Time  `json:"createdAt"`
	} `json:"details"`
}

func toNotifications(list []notification.Notification) []notificationJSON {
	out := make([]notificationJSON, len(list))
	for i, n := range list {
		v := &out[i]
		v.ID = n.ID
		v.RestaurantID = n.RestaurantID
		v.OrderID = n.OrderID
		v.Message = n.Message
		v.Read = n.Read
		v.CreatedAt = n.CreatedAt
		v.Details.CustomerID = n.Detail.CustomerID
		v.Details.Items = toItems(n.Detail.Items)
		v.Details.Subtotal = money(n.Detail.Subtotal)
		v.Details.Total = money(n.Detail.Total)
		v.Details.CreatedAt = n.Detail.CreatedAt
	}
	return out
}

// decode reads a JSON body into v. Unknown fields are ignored.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &badRequestError{msg: "request body is empty", err: err}
		}
		return &badRequestError{msg: "malformed request body", err: err}
	}
	return nil
}

func respond(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Warn("Write response", zap.Error(err))
	}
}
