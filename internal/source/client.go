package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nhle/ambrose/internal/model"
)

// Auth decorates an outgoing request with credentials.
type Auth func(req *http.Request)

// BasicAuth authenticates with a username and access token.
func BasicAuth(username, token string) Auth {
	return func(req *http.Request) {
		req.SetBasicAuth(username, token)
	}
}

// BearerAuth authenticates with an OAuth or personal access token.
func BearerAuth(token string) Auth {
	return func(req *http.Request) {
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// HeaderAuth sends the token in a custom header such as x-api-key.
func HeaderAuth(name, value string) Auth {
	return func(req *http.Request) {
		req.Header.Set(name, value)
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client is a thin read-only HTTP client shared by the provider adapters.
// It applies authentication and retries HTTP 429 responses with
// exponential backoff, honouring Retry-After. All other failures are
// returned immediately as a *ProviderError.
type Client struct {
	provider       model.ProviderType
	auth           Auth
	httpClient     *http.Client
	maxTries       uint
	initialBackoff time.Duration
	userAgent      string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMaxTries bounds the attempts made for a rate-limited request.
func WithMaxTries(n uint) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxTries = n
		}
	}
}

// WithInitialBackoff sets the first wait after a 429 without Retry-After.
func WithInitialBackoff(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.initialBackoff = d
		}
	}
}

// NewClient creates a client for the given provider.
func NewClient(provider model.ProviderType, auth Auth, opts ...ClientOption) *Client {
	c := &Client{
		provider: provider,
		auth:     auth,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxTries:       3,
		initialBackoff: time.Second,
		userAgent:      "ambrose",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the provider the client was created for.
func (c *Client) Provider() model.ProviderType {
	return c.provider
}

// Fetch performs a GET and returns the response whatever its status code,
// except that 429 responses are retried. Transport failures return a
// *ProviderError.
func (c *Client) Fetch(ctx context.Context, url string) (*Response, error) {
	var limited *ProviderError

	operation := func() (*Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(&ProviderError{Provider: c.provider, URL: url, Err: err})
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		if c.auth != nil {
			c.auth(req)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, backoff.Permanent(&ProviderError{Provider: c.provider, URL: url, Err: err})
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, backoff.Permanent(&ProviderError{
				Provider: c.provider, URL: url, StatusCode: resp.StatusCode,
				Err: fmt.Errorf("reading response body: %w", err),
			})
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			limited = &ProviderError{
				Provider: c.provider, URL: url, StatusCode: resp.StatusCode,
				Err: errors.New("rate limited"),
			}
			if secs, ok := retryAfterSeconds(resp.Header); ok {
				return nil, backoff.RetryAfter(secs)
			}
			return nil, limited
		}

		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initialBackoff
	eb.MaxInterval = 30 * time.Second

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) {
			return nil, pe
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &ProviderError{Provider: c.provider, URL: url, Err: ctxErr}
		}
		if limited != nil {
			return nil, limited
		}
		return nil, &ProviderError{Provider: c.provider, URL: url, Err: err}
	}
	return resp, nil
}

// GetJSON performs a GET and decodes a 2xx JSON response into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	resp, err := c.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{
			Provider: c.provider, URL: url, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("unexpected status: %s", truncate(resp.Body, 200)),
		}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &ProviderError{
			Provider: c.provider, URL: url, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("malformed payload: %w", err),
		}
	}
	return nil
}

// GetBody performs a GET and returns the raw body of a 2xx response.
func (c *Client) GetBody(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{
			Provider: c.provider, URL: url, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("unexpected status: %s", truncate(resp.Body, 200)),
		}
	}
	return resp.Body, nil
}

func retryAfterSeconds(h http.Header) (int, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return secs, true
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
