package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/foodmarket/internal/domain/auth"
	"github.com/xenking/foodmarket/internal/domain/cart"
	"github.com/xenking/foodmarket/internal/domain/checkout"
	"github.com/xenking/foodmarket/internal/domain/notification"
	"github.com/xenking/foodmarket/internal/domain/order"
	"github.com/xenking/foodmarket/pkg/httpmiddleware"
)

// badRequestError reports an undecodable or incomplete request body.
type badRequestError struct {
	msg string
	err error
}

func (e *badRequestError) Error() string { return e.msg }

func (e *badRequestError) Unwrap() error { return e.err }

// statusOf maps a domain error to its HTTP status and client message.
// Messages of unexpected errors are not exposed.
func statusOf(err error) (int, string) {
	var (
		validation *cart.ValidationError
		cross      *cart.CrossRestaurantError
		invalidReq *checkout.InvalidRequestError
		gateway    *checkout.GatewayError
		badStatus  *order.InvalidStatusError
		transition *order.TransitionError
		badRequest *badRequestError
	)
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, order.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Error()
	case errors.As(err, &invalidReq):
		return http.StatusBadRequest, invalidReq.Error()
	case errors.As(err, &badStatus):
		return http.StatusBadRequest, badStatus.Error()
	case errors.As(err, &badRequest):
		return http.StatusBadRequest, badRequest.Error()
	case errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusBadRequest, checkout.ErrEmptyCart.Error()
	case errors.As(err, &cross):
		return http.StatusConflict, cross.Error()
	case errors.As(err, &transition):
		return http.StatusConflict, transition.Error()
	case errors.Is(err, cart.ErrConflict):
		return http.StatusConflict, cart.ErrConflict.Error()
	case errors.Is(err, cart.ErrNotFound):
		return http.StatusNotFound, cart.ErrNotFound.Error()
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, order.ErrNotFound.Error()
	case errors.Is(err, notification.ErrNotFound):
		return http.StatusNotFound, notification.ErrNotFound.Error()
	case errors.Is(err, checkout.ErrVerificationFailed):
		return http.StatusPaymentRequired, checkout.ErrVerificationFailed.Error()
	case errors.As(err, &gateway):
		return http.StatusBadGateway, gateway.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// fail writes err as an API error. Server-side failures are logged with
// their cause.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusOf(err)
	lg := zctx.From(r.Context())
	switch {
	case code >= http.StatusInternalServerError:
		lg.Error("Request failed", zap.Int("status", code), zap.Error(err))
	case code == http.StatusPaymentRequired:
		lg.Warn("Payment not verified", zap.Error(err))
	}
	httpmiddleware.WriteError(w, code, msg)
}
