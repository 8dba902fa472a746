package handler

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/foodmarket/internal/domain/checkout"
)

// paymentRequest starts a payment when Reference is empty and confirms one
// otherwise.
type paymentRequest struct {
	Amount    decimal.NullDecimal `json:"amount"`
	Email     string              `json:"email"`
	Reference string              `json:"reference"`
}

type sessionJSON struct {
	AuthorizationURL string `json:"authorizationUrl"`
	AccessCode       string `json:"accessCode"`
	Reference        string `json:"reference"`
}

type quoteJSON struct {
	Items []itemJSON `json:"items"`
	chargesJSON
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	q, err := h.checkout.Quote(r.Context(), identity(r).Subject)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, quoteJSON{
		Items:       toItems(q.Items),
		chargesJSON: toCharges(q.Charges),
	})
}

func (h *Handler) payment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	id := identity(r)

	if ref := strings.TrimSpace(req.Reference); ref != "" {
		o, err := h.checkout.VerifyAndCommit(r.Context(), id.Subject, ref)
		if err != nil {
			fail(w, r, err)
			return
		}
		respond(w, r, http.StatusOK, map[string]string{"orderId": o.ID})
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = id.Email
	}
	sess, err := h.checkout.Initiate(r.Context(), id.Subject, checkout.InitiateRequest{
		Amount: req.Amount.Decimal,
		Email:  email,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, sessionJSON{
		AuthorizationURL: sess.AuthorizationURL,
		AccessCode:       sess.AccessCode,
		Reference:        sess.Reference,
	})
}
