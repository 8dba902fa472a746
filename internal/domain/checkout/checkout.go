package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodmarket/internal/domain/notification"
	"github.com/xenking/foodmarket/internal/domain/order"
)

// StatusSuccess is the only gateway verification status treated as paid.
const StatusSuccess = "success"

var (
	// ErrEmptyCart is returned when checkout is attempted with no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrVerificationFailed matches every *VerificationError.
	ErrVerificationFailed = errors.New("payment verification failed")
)

// InvalidRequestError indicates a missing or malformed checkout field.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// GatewayError wraps a non-success response from the payment gateway.
// Message carries the gateway's own explanation when it provided one.
type GatewayError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Message == "" {
		return "payment gateway error"
	}
	return "payment gateway error: " + e.Message
}

func (e *GatewayError) Unwrap() error { return e.Err }

// VerificationError reports a payment reference that the gateway did not
// confirm as settled.
type VerificationError struct {
	Reference string
	Reason    string
	Err       error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("payment %s not verified: %s", e.Reference, e.Reason)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Is makes every VerificationError match ErrVerificationFailed.
func (e *VerificationError) Is(target error) bool {
	return target == ErrVerificationFailed
}

// InitializeParams describes a transaction to open with the gateway.
type InitializeParams struct {
	Amount      decimal.Decimal
	Email       string
	Currency    string
	Channels    []string
	CallbackURL string
	Metadata    map[string]string
}

// Session is the gateway's answer to a transaction initialisation.
type Session struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// Verification is the gateway's view of a transaction.
type Verification struct {
	Reference string
	Status    string
	Amount    decimal.Decimal
	Currency  string
	PaidAt    time.Time
	Message   string
}

// Gateway is the external payment provider.
type Gateway interface {
	InitializeTransaction(ctx context.Context, p InitializeParams) (*Session, error)
	VerifyTransaction(ctx context.Context, reference string) (*Verification, error)
}

// Notifier fans a committed order out to its restaurants.
type Notifier interface {
	FanOut(ctx context.Context, o *order.Order) []notification.Notification
}
