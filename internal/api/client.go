package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront-sync/internal/domain"
	"storefront-sync/internal/observability"
)

// TokenProvider supplies the current bearer credential. It returns
// domain.ErrNoSession when no valid session is held.
type TokenProvider func() (string, error)

// Client talks to the storefront backend. All authenticated calls carry a
// bearer header from the token provider; 401/403 responses are reported to
// the auth-failure hook so the session can be forced to expired.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	token         TokenProvider
	onAuthFailure func()
}

// NewClient creates a storefront API client
func NewClient(baseURL string, timeout time.Duration, token TokenProvider) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		token: token,
	}
}

// OnAuthFailure registers the hook run when the server rejects the
// credential. Must be set before the client is shared.
func (c *Client) OnAuthFailure(fn func()) {
	c.onAuthFailure = fn
}

// Envelope is the common response wrapper of every storefront endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// LoginResult carries the issued token and the user it belongs to.
type LoginResult struct {
	Envelope
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

// CartPayload is the authoritative cart as the server holds it.
type CartPayload struct {
	Envelope
	Cart struct {
		CartID string            `json:"cart_id"`
		Status domain.CartStatus `json:"status"`
		Lines  []domain.CartLine `json:"lines"`
	} `json:"cart"`
}

// LinePayload is returned by item mutations and carries the settled line.
type LinePayload struct {
	Envelope
	Line domain.CartLine `json:"line"`
}

// SearchPayload is one page of catalog search results.
type SearchPayload struct {
	Envelope
	Products   []domain.Product `json:"products"`
	Page       int              `json:"page"`
	TotalPages int              `json:"total_pages"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}

	var result LoginResult
	if err := c.do(ctx, "login", http.MethodPost, "/api/auth/login", body, false, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetCart fetches the authoritative cart for the session user.
// "No cart yet" surfaces as domain.ErrNotFound; the caller maps it to an
// empty mirror.
func (c *Client) GetCart(ctx context.Context) (*CartPayload, error) {
	var result CartPayload
	if err := c.do(ctx, "get_cart", http.MethodGet, "/api/cart", nil, true, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AddItem upserts a line, sending the absolute target quantity.
func (c *Client) AddItem(ctx context.Context, productID string, quantity int, price float64) (*LinePayload, error) {
	body := map[string]any{
		"productId": productID,
		"quantity":  quantity,
		"price":     price,
	}

	var result LinePayload
	if err := c.do(ctx, "add_item", http.MethodPost, "/api/cart/items", body, true, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteItem removes a line by id.
func (c *Client) DeleteItem(ctx context.Context, lineID string) error {
	var result Envelope
	return c.do(ctx, "delete_item", http.MethodDelete, "/api/cart/items/"+url.PathEscape(lineID), nil, true, &result)
}

// UpdateQuantity sets the quantity of an existing line.
func (c *Client) UpdateQuantity(ctx context.Context, lineID string, quantity int) error {
	body := map[string]int{"quantity": quantity}

	var result Envelope
	return c.do(ctx, "update_quantity", http.MethodPut, "/api/cart/items/"+url.PathEscape(lineID), body, true, &result)
}

// SearchProducts queries the catalog. Reads are unauthenticated.
func (c *Client) SearchProducts(ctx context.Context, query string, page int) (*SearchPayload, error) {
	path := "/api/products?q=" + url.QueryEscape(query) + "&page=" + strconv.Itoa(page)

	var result SearchPayload
	if err := c.do(ctx, "search_products", http.MethodGet, path, nil, false, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkAbandoning reports an interrupted checkout over the ordinary JSON
// endpoint.
func (c *Client) MarkAbandoning(ctx context.Context, sig domain.AbandonmentSignal) error {
	var result Envelope
	return c.do(ctx, "mark_abandoning", http.MethodPost, "/api/checkout/mark-abandoning", sig, false, &result)
}

// MarkAbandoningBeacon reports an interrupted checkout over the
// form-encoded beacon endpoint. It uses its own short deadline because the
// caller is tearing down and will not wait; the response body is ignored.
func (c *Client) MarkAbandoningBeacon(sig domain.AbandonmentSignal) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	form := url.Values{}
	form.Set("checkoutId", sig.CheckoutID)
	form.Set("cartId", sig.CartID)
	form.Set("reason", string(sig.Reason))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/checkout/mark-abandoning-beacon", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create beacon request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.APIRequestDuration.WithLabelValues("beacon", "0").Observe(time.Since(start).Seconds())
		return fmt.Errorf("%w: beacon send failed: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	observability.APIRequestDuration.WithLabelValues("beacon", strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())
	return domain.ClassifyStatus(resp.StatusCode)
}

// do issues one request and decodes the enveloped response into out.
func (c *Client) do(ctx context.Context, operation, method, path string, body any, authed bool, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if authed {
		token, err := c.token()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.APIRequestDuration.WithLabelValues(operation, "0").Observe(time.Since(start).Seconds())
		return fmt.Errorf("%w: %s: %v", domain.ErrNetwork, operation, err)
	}
	defer resp.Body.Close()

	observability.APIRequestDuration.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	if classErr := domain.ClassifyStatus(resp.StatusCode); classErr != nil {
		io.Copy(io.Discard, resp.Body)
		if errors.Is(classErr, domain.ErrAuth) && c.onAuthFailure != nil {
			c.onAuthFailure()
		}
		return fmt.Errorf("%w: %s returned %d", classErr, operation, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: undecodable body: %v", domain.ErrValidation, operation, err)
	}

	if env, ok := out.(interface{ ok() bool }); ok && !env.ok() {
		return fmt.Errorf("%s rejected by server", operation)
	}
	return nil
}

func (e *Envelope) ok() bool { return e.Success }
