// Package paystack is a client for a Paystack-compatible payment gateway.
package paystack

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/foodmarket/internal/domain/checkout"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.paystack.co"

// maxBody caps how much of a gateway response is read.
const maxBody = 1 << 20

// minorUnits is the number of minor currency units per major unit.
var minorUnits = decimal.NewFromInt(100)

// Config configures a Client.
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
	// Transport overrides the underlying round tripper. It is still wrapped
	// with otelhttp.
	Transport http.RoundTripper
}

// Client implements checkout.Gateway over the gateway's REST API.
type Client struct {
	base   *url.URL
	secret string
	http   *http.Client
}

var _ checkout.Gateway = (*Client)(nil)

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("paystack secret key is empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	rt := cfg.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &Client{
		base:   base,
		secret: cfg.SecretKey,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: otelhttp.NewTransport(rt,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "paystack " + r.Method + " " + spanPath(r.URL.Path)
				}),
			),
		},
	}, nil
}

// InitializeTransaction opens a transaction and returns the hosted checkout
// session. Amounts are sent in minor units.
func (c *Client) InitializeTransaction(ctx context.Context, p checkout.InitializeParams) (*checkout.Session, error) {
	body := encodeInitialize(p)

	var sess checkout.Session
	err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "authorization_url":
				sess.AuthorizationURL, err = optString(d)
			case "access_code":
				sess.AccessCode, err = optString(d)
			case "reference":
				sess.Reference, err = optString(d)
			default:
				err = d.Skip()
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if sess.AuthorizationURL == "" || sess.Reference == "" {
		return nil, &checkout.GatewayError{Message: "incomplete initialize response"}
	}
	return &sess, nil
}

// VerifyTransaction fetches the current state of reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*checkout.Verification, error) {
	v := checkout.Verification{Reference: reference}
	err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "status":
				v.Status, err = optString(d)
			case "reference":
				v.Reference, err = optString(d)
			case "currency":
				v.Currency, err = optString(d)
			case "gateway_response":
				v.Message, err = optString(d)
			case "amount":
				v.Amount, err = decodeMinor(d)
			case "paid_at", "paidAt":
				var raw string
				if raw, err = optString(d); err == nil && raw != "" {
					if t, perr := time.Parse(time.RFC3339, raw); perr == nil {
						v.PaidAt = t
					}
				}
			default:
				err = d.Skip()
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// do sends a request and decodes the envelope {status, message, data}.
// Non-2xx responses and status=false become *checkout.GatewayError.
func (c *Client) do(ctx context.Context, method, path string, body []byte, data func(*jx.Decoder) error) error {
	u := *c.base
	u.Path += path

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	var (
		status  bool
		message string
	)
	decodeErr := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			if d.Next() != jx.Bool {
				return d.Skip()
			}
			v, err := d.Bool()
			status = v
			return err
		case "message":
			v, err := optString(d)
			message = v
			return err
		case "data":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			return data(d)
		default:
			return d.Skip()
		}
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !status {
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &checkout.GatewayError{StatusCode: resp.StatusCode, Message: message, Err: decodeErr}
	}
	if decodeErr != nil {
		return &checkout.GatewayError{StatusCode: resp.StatusCode, Message: "malformed gateway response", Err: decodeErr}
	}
	return nil
}

func encodeInitialize(p checkout.InitializeParams) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("amount", func(e *jx.Encoder) { e.Int64(toMinor(p.Amount)) })
		e.Field("email", func(e *jx.Encoder) { e.Str(p.Email) })
		if p.Currency != "" {
			e.Field("currency", func(e *jx.Encoder) { e.Str(p.Currency) })
		}
		if len(p.Channels) > 0 {
			e.Field("channels", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, ch := range p.Channels {
						e.Str(ch)
					}
				})
			})
		}
		if p.CallbackURL != "" {
			e.Field("callback_url", func(e *jx.Encoder) { e.Str(p.CallbackURL) })
		}
		if len(p.Metadata) > 0 {
			e.Field("metadata", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					for k, v := range p.Metadata {
						e.Field(k, func(e *jx.Encoder) { e.Str(v) })
					}
				})
			})
		}
	})
	return e.Bytes()
}

// toMinor converts to minor units, rounding half away from zero. Checkout
// rejects amounts finer than a minor unit before they get here.
func toMinor(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnits).Round(0).IntPart()
}

func decodeMinor(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() != jx.Number {
		return decimal.Zero, d.Skip()
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	v, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse amount")
	}
	return v.Div(minorUnits), nil
}

func optString(d *jx.Decoder) (string, error) {
	if d.Next() != jx.String {
		return "", d.Skip()
	}
	return d.Str()
}

// spanPath drops the reference from verify paths to keep span names bounded.
func spanPath(p string) string {
	if i := strings.Index(p, "/transaction/verify/"); i >= 0 {
		return p[:i] + "/transaction/verify/{reference}"
	}
	return p
}
