package cartclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cart api: %d %s", e.Code, e.Message)
}

// HTTPRemote talks to the cart endpoints of the API server.
type HTTPRemote struct {
	base   string
	token  string
	client *http.Client
}

var _ Remote = (*HTTPRemote)(nil)

// NewHTTPRemote creates a remote for baseURL (without the /api suffix)
// authenticating with token. A nil client uses an otelhttp-instrumented
// default.
func NewHTTPRemote(baseURL, token string, client *http.Client) *HTTPRemote {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTPRemote{
		base:   strings.TrimRight(baseURL, "/") + "/api/cart",
		token:  token,
		client: client,
	}
}

type cartResponse struct {
	Items []Item `json:"items"`
}

// Read implements Remote.
func (r *HTTPRemote) Read(ctx context.Context) ([]Item, error) {
	return r.items(ctx, http.MethodGet, nil)
}

// Add implements Remote.
func (r *HTTPRemote) Add(ctx context.Context, it Item) ([]Item, error) {
	return r.items(ctx, http.MethodPost, it)
}

// Update implements Remote.
func (r *HTTPRemote) Update(ctx context.Context, itemID string, action Action) ([]Item, error) {
	return r.items(ctx, http.MethodPatch, map[string]string{
		"itemId": itemID,
		"action": string(action),
	})
}

// Clear implements Remote.
func (r *HTTPRemote) Clear(ctx context.Context) error {
	return r.do(ctx, http.MethodDelete, nil, nil)
}

func (r *HTTPRemote) items(ctx context.Context, method string, body any) ([]Item, error) {
	var resp cartResponse
	if err := r.do(ctx, method, body, &resp); err != nil {
		return nil, err
	}
	if resp.Items == nil {
		resp.Items = []Item{}
	}
	return resp.Items, nil
}

func (r *HTTPRemote) do(ctx context.Context, method string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.base, rd)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Code: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		apiErr.Code = resp.StatusCode
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
