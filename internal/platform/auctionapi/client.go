// Package auctionapi executes auction API endpoints over HTTP. It owns the
// application token lifecycle; user credentials are passed per call.
package auctionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/alanyoungcy/auctionkiosk/internal/clock"
	"github.com/alanyoungcy/auctionkiosk/internal/domain"
)

const (
	headerXAppToken   = "X-Xapp-Token"
	headerAccessToken = "X-Access-Token"

	// xappRefreshMargin renews the application token this long before the
	// server-reported expiry.
	xappRefreshMargin = time.Minute
	// xappFallbackTTL is used when the server omits or garbles expires_in.
	xappFallbackTTL = time.Hour
)

// ClientConfig holds connection parameters for the API client.
type ClientConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client is the HTTP client for the auction API.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	clock        clock.Clock

	mu         sync.Mutex
	xappToken  string
	xappExpiry time.Time
}

// NewClient creates a new auction API client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		clock:        clock.Real{},
	}
}

// WithClock replaces the clock used for token expiry. Intended for tests.
func (c *Client) WithClock(clk clock.Clock) *Client {
	c.clock = clk
	return c
}

// Request executes ep with the given credentials. Any HTTP status yields a
// Response; the error is reserved for transport failures, which wrap
// domain.ErrNetwork, and for context cancellation.
func (c *Client) Request(ctx context.Context, ep Endpoint, creds domain.Credentials) (*Response, error) {
	if ep.Auth == AuthUser && !creds.Authenticated() {
		return nil, fmt.Errorf("auctionapi: %s: %w", ep.Name, domain.ErrNotAuthenticated)
	}

	query := cloneValues(ep.Query)
	header := http.Header{}

	switch ep.Name {
	case NameXAuth, NameXApp:
		query.Set("client_id", c.clientID)
		query.Set("client_secret", c.clientSecret)
	}

	if ep.Auth != AuthNone {
		token, err := c.appToken(ctx)
		if err != nil {
			return nil, err
		}
		header.Set(headerXAppToken, token)
	}

	if ep.Auth == AuthUser {
		switch {
		case creds.AccessToken != "":
			header.Set(headerAccessToken, creds.AccessToken)
		case creds.PIN != nil:
			query.Set("auction_pin", creds.PIN.PIN)
			query.Set("number", creds.PIN.Number)
			query.Set("sale_id", creds.PIN.SaleID)
		}
	}

	resp, err := c.do(ctx, ep, query, header)
	if err != nil {
		return nil, err
	}

	// A rejected application token is dropped so the next call re-fetches it.
	if resp.StatusCode == http.StatusUnauthorized && ep.Auth != AuthNone {
		var body errorBody
		if json.Unmarshal(resp.Body, &body) == nil && body.Type == "invalid_xapp_token" {
			c.InvalidateAppToken()
		}
	}
	return resp, nil
}

// appToken returns a cached application token, fetching a new one when the
// cached token is missing or about to expire.
func (c *Client) appToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.xappToken != "" && now.Add(xappRefreshMargin).Before(c.xappExpiry) {
		return c.xappToken, nil
	}

	ep := XApp()
	query := url.Values{}
	query.Set("client_id", c.clientID)
	query.Set("client_secret", c.clientSecret)

	resp, err := c.do(ctx, ep, query, http.Header{})
	if err != nil {
		return "", fmt.Errorf("auctionapi: xapp token: %w", err)
	}
	if rej := resp.Rejection(); rej != nil {
		return "", fmt.Errorf("auctionapi: xapp token: %w", rej)
	}

	var tok xappTokenResponse
	if err := resp.Decode(&tok); err != nil {
		return "", fmt.Errorf("auctionapi: xapp token: %w", err)
	}
	if tok.Token == "" {
		return "", fmt.Errorf("auctionapi: xapp token: empty token")
	}

	expiry := now.Add(xappFallbackTTL)
	if t, err := time.Parse(time.RFC3339, tok.ExpiresIn); err == nil {
		expiry = t
	}
	c.xappToken = tok.Token
	c.xappExpiry = expiry
	return c.xappToken, nil
}

// InvalidateAppToken drops the cached application token so the next request
// fetches a fresh one.
func (c *Client) InvalidateAppToken() {
	c.mu.Lock()
	c.xappToken = ""
	c.xappExpiry = time.Time{}
	c.mu.Unlock()
}

// do builds, sends and reads one HTTP request.
func (c *Client) do(ctx context.Context, ep Endpoint, query url.Values, header http.Header) (*Response, error) {
	var bodyReader io.Reader
	if ep.Body != nil {
		jsonBody, err := json.Marshal(ep.Body)
		if err != nil {
			return nil, fmt.Errorf("auctionapi: %s: marshal request body: %w", ep.Name, err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	fullURL := c.baseURL + ep.Path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, ep.Method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("auctionapi: %s: create request: %w", ep.Name, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if ep.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("auctionapi: %s: %w: %w", ep.Name, domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("auctionapi: %s: read response: %w: %w", ep.Name, domain.ErrNetwork, err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
