package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/foodmarket/internal/domain/cart"
	"github.com/xenking/foodmarket/internal/domain/order"
)

const instrumentationName = "github.com/xenking/foodmarket/internal/domain/checkout"

// Config holds the gateway-facing settings of checkout.
type Config struct {
	Fees        order.FeeSchedule
	Currency    string
	Channels    []string
	CallbackURL string
}

// Option customises a Service.
type Option func(*Service)

// WithTracerProvider sets the tracer provider used for checkout spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider used for checkout counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter(instrumentationName) }
}

// InitiateRequest is the caller-supplied payment request. Amount already
// includes every fee.
type InitiateRequest struct {
	Amount decimal.Decimal
	Email  string
}

// Quote is the priced content of a cart.
type Quote struct {
	Items   []cart.Item
	Charges order.Charges
}

// Service drives a cart through payment into a committed order.
type Service struct {
	carts    cart.Repository
	orders   order.Repository
	gateway  Gateway
	notifier Notifier
	cfg      Config

	tracer trace.Tracer
	meter  metric.Meter

	committed      metric.Int64Counter
	verifyFailures metric.Int64Counter
	reconciliation metric.Int64Counter

	newID func() string
	now   func() time.Time
}

// NewService creates a checkout Service.
func NewService(
	carts cart.Repository,
	orders order.Repository,
	gateway Gateway,
	notifier Notifier,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		carts:    carts,
		orders:   orders,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		tracer:   otel.GetTracerProvider().Tracer(instrumentationName),
		meter:    otel.GetMeterProvider().Meter(instrumentationName),
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	var err error
	if s.committed, err = s.meter.Int64Counter("checkout.orders.committed",
		metric.WithDescription("Orders created from verified payments"),
	); err != nil {
		return nil, errors.Wrap(err, "create committed counter")
	}
	if s.verifyFailures, err = s.meter.Int64Counter("checkout.verification.failed",
		metric.WithDescription("Payment references the gateway did not confirm"),
	); err != nil {
		return nil, errors.Wrap(err, "create verification counter")
	}
	if s.reconciliation, err = s.meter.Int64Counter("checkout.reconciliation.required",
		metric.WithDescription("Verified payments that did not produce an order"),
	); err != nil {
		return nil, errors.Wrap(err, "create reconciliation counter")
	}
	return s, nil
}

// Quote prices the caller's current cart with the fee schedule.
func (s *Service) Quote(ctx context.Context, userID string) (*Quote, error) {
	c, err := s.nonEmptyCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Quote{Items: c.Items, Charges: s.cfg.Fees.Price(c.Items)}, nil
}

// Initiate opens a gateway transaction for the caller's non-empty cart.
func (s *Service) Initiate(ctx context.Context, userID string, req InitiateRequest) (_ *Session, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Initiate",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer func() { endSpan(span, rerr) }()

	if !req.Amount.IsPositive() {
		return nil, &InvalidRequestError{Field: "amount", Reason: "must be a positive number"}
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, &InvalidRequestError{Field: "amount", Reason: "must have at most two decimal places"}
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, &InvalidRequestError{Field: "email", Reason: "required"}
	}
	if _, err := s.nonEmptyCart(ctx, userID); err != nil {
		return nil, err
	}

	sess, err := s.gateway.InitializeTransaction(ctx, InitializeParams{
		Amount:      req.Amount,
		Email:       strings.TrimSpace(req.Email),
		Currency:    s.cfg.Currency,
		Channels:    s.cfg.Channels,
		CallbackURL: s.cfg.CallbackURL,
		Metadata:    map[string]string{"user_id": userID},
	})
	if err != nil {
		var gErr *GatewayError
		if errors.As(err, &gErr) {
			return nil, gErr
		}
		return nil, &GatewayError{Message: "payment gateway unavailable", Err: err}
	}

	zctx.From(ctx).Info("Payment initiated",
		zap.String("user_id", userID),
		zap.String("reference", sess.Reference),
		zap.String("amount", req.Amount.String()),
	)
	return sess, nil
}

// VerifyAndCommit confirms reference with the gateway and converts the
// caller's cart into an order.
//
// Nothing is written unless the gateway reports an explicit success. A
// reference that already produced an order for the same user returns that
// order, so retries never create duplicates. The order is stored before the
// cart is cleared; notification and cart-clear failures are logged only.
func (s *Service) VerifyAndCommit(ctx context.Context, userID, reference string) (_ *order.Order, rerr error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, &InvalidRequestError{Field: "reference", Reason: "required"}
	}

	ctx, span := s.tracer.Start(ctx, "checkout.VerifyAndCommit",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("payment.reference", reference),
		),
	)
	defer func() { endSpan(span, rerr) }()

	lg := zctx.From(ctx).With(
		zap.String("user_id", userID),
		zap.String("reference", reference),
	)

	v, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		s.verifyFailures.Add(ctx, 1)
		return nil, &VerificationError{Reference: reference, Reason: "gateway did not confirm payment", Err: err}
	}
	if v == nil || v.Status != StatusSuccess {
		s.verifyFailures.Add(ctx, 1)
		status := "unknown"
		if v != nil && v.Status != "" {
			status = v.Status
		}
		return nil, &VerificationError{Reference: reference, Reason: "gateway status " + status}
	}

	// Money has moved. From here on, every failure needs a reconciliation trail.
	lg = lg.With(zap.String("settled_amount", v.Amount.String()))

	existing, err := s.orders.GetByReference(ctx, reference)
	switch {
	case err == nil:
		return s.replay(ctx, lg, userID, existing)
	case !errors.Is(err, order.ErrNotFound):
		s.reconcile(ctx, lg, "lookup order by reference", err)
		return nil, errors.Wrap(err, "lookup order by reference")
	}

	c, err := s.carts.Get(ctx, userID)
	if err != nil && !errors.Is(err, cart.ErrNotFound) {
		s.reconcile(ctx, lg, "get cart", err)
		return nil, errors.Wrap(err, "get cart")
	}
	if c.IsEmpty() {
		s.reconcile(ctx, lg, "cart empty at verification", ErrEmptyCart)
		return nil, ErrEmptyCart
	}

	charges := s.cfg.Fees.Price(c.Items)
	if !v.Amount.Equal(charges.Total) {
		lg.Warn("Settled amount differs from order total",
			zap.String("order_total", charges.Total.String()),
		)
	}

	now := s.now().UTC()
	o := &order.Order{
		ID:               s.newID(),
		UserID:           userID,
		Items:            cart.CloneItems(c.Items),
		Charges:          charges,
		PaymentReference: reference,
		Status:           order.StatusCompleted,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		if errors.Is(err, order.ErrDuplicateReference) {
			// A concurrent commit for the same reference won the race.
			if winner, gerr := s.orders.GetByReference(ctx, reference); gerr == nil {
				return s.replay(ctx, lg, userID, winner)
			}
		}
		s.reconcile(ctx, lg, "create order", err)
		return nil, errors.Wrap(err, "create order")
	}
	s.committed.Add(ctx, 1)
	lg.Info("Order committed",
		zap.String("order_id", o.ID),
		zap.String("total", o.Total.String()),
		zap.Int("items", len(o.Items)),
	)

	if s.notifier != nil {
		s.notifier.FanOut(ctx, o)
	}

	if err := s.carts.Clear(ctx, userID); err != nil {
		lg.Error("Cart not cleared after order commit",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
	return o, nil
}

// replay handles a reference that already has an order.
func (s *Service) replay(ctx context.Context, lg *zap.Logger, userID string, existing *order.Order) (*order.Order, error) {
	if existing.UserID != userID {
		lg.Warn("Payment reference belongs to another user",
			zap.String("order_id", existing.ID),
		)
		return nil, &VerificationError{Reference: existing.PaymentReference, Reason: "reference already used"}
	}
	lg.Info("Payment reference already committed", zap.String("order_id", existing.ID))

	// Only a cart still holding the committed lines is left over from an
	// interrupted commit. Anything else was built after the order.
	current, err := s.carts.Get(ctx, userID)
	switch {
	case errors.Is(err, cart.ErrNotFound):
	case err != nil:
		lg.Warn("Cart not read on replay", zap.Error(err))
	case current.IsEmpty():
	case !sameLines(current.Items, existing.Items):
		lg.Info("Cart changed since order, keeping it", zap.Int("items", len(current.Items)))
	default:
		if err := s.carts.Clear(ctx, userID); err != nil {
			lg.Warn("Cart not cleared on replay", zap.Error(err))
		}
	}
	return existing, nil
}

// sameLines reports whether a and b hold the same item ids with the same
// quantities, in any order.
func sameLines(a, b []cart.Item) bool {
	if len(a) != len(b) {
		return false
	}
	qty := make(map[string]int, len(a))
	for _, it := range a {
		qty[it.ID] += it.Quantity
	}
	for _, it := range b {
		qty[it.ID] -= it.Quantity
	}
	for _, n := range qty {
		if n != 0 {
			return false
		}
	}
	return true
}

// reconcile records a verified payment that has no matching order.
func (s *Service) reconcile(ctx context.Context, lg *zap.Logger, stage string, err error) {
	s.reconciliation.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	lg.Error("Payment settled without order; manual reconciliation required",
		zap.String("stage", stage),
		zap.Error(err),
	)
}

func (s *Service) nonEmptyCart(ctx context.Context, userID string) (*cart.Cart, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, ErrEmptyCart
		}
		return nil, errors.Wrap(err, "get cart")
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}
	return c, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
